package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/activity"
	"github.com/zapdesk-io/zapdesk/internal/config"
	"github.com/zapdesk-io/zapdesk/internal/db"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/http/api"
	"github.com/zapdesk-io/zapdesk/internal/logging"
	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/ratelimit"
	"github.com/zapdesk-io/zapdesk/internal/reconciler"
	"github.com/zapdesk-io/zapdesk/internal/security"
	internalsettings "github.com/zapdesk-io/zapdesk/internal/settings"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// CreateUserParams holds inputs for the bootstrap user command.
type CreateUserParams struct {
	Username string
	Password string
	Name     string
	Email    string
	Master   bool
}

// CreateUser inserts a user account from the command line.
func CreateUser(ctx context.Context, configPath string, params CreateUserParams) error {
	username := strings.TrimSpace(params.Username)
	password := strings.TrimSpace(params.Password)
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}

	role := models.RoleUser
	if params.Master {
		role = models.RoleMaster
	}
	user := models.User{
		Username: username,
		Password: hash,
		Name:     strings.TrimSpace(params.Name),
		Email:    strings.TrimSpace(params.Email),
		Role:     role,
		Active:   true,
	}
	if errCreate := conn.WithContext(ctx).Create(&user).Error; errCreate != nil {
		return fmt.Errorf("create user: %w", errCreate)
	}

	log.Infof("created %s user %q (id=%d)", role, user.Username, user.ID)
	return nil
}

// RunServer boots the dashboard backend: database, gateway adapter,
// reconciler loop, retention cleaner and the HTTP surface.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errRefresh := internalsettings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial settings snapshot refresh failed")
	}

	client, errGateway := buildGateway(cfg, conn)
	if errGateway != nil {
		// Misconfigured vendor credentials must stop the boot, not limp along.
		return errGateway
	}

	rec := reconciler.New(conn, client)
	rec.Start(ctx)

	if cleaner := activity.NewRetentionCleaner(conn); cleaner != nil {
		cleaner.Start(ctx)
	}

	var limiter *ratelimit.LoginLimiter
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = ratelimit.NewLoginLimiter(redisClient)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api.RegisterRoutes(engine, api.Deps{
		DB:         conn,
		JWT:        cfg.JWT,
		Gateway:    client,
		Reconciler: rec,
		Recorder:   activity.NewRecorder(conn),
		Limiter:    limiter,
	})
	registerStatic(engine, cfg.Server.PublicDir)

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (provider=%s)", cfg.Server.Listen, client.Provider())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildGateway constructs the vendor client with the token resolver wired in.
func buildGateway(cfg *config.Config, conn *gorm.DB) (gateway.Client, error) {
	baseURL := cfg.Gateway.Evolution.BaseURL
	if strings.EqualFold(strings.TrimSpace(cfg.Gateway.Provider), gateway.ProviderUazapi) {
		baseURL = cfg.Gateway.Uazapi.BaseURL
	}
	return gateway.New(cfg.Gateway.Provider, gateway.Config{
		BaseURL:    baseURL,
		APIKey:     cfg.Gateway.Evolution.APIKey,
		AdminToken: cfg.Gateway.Uazapi.AdminToken,
		Tokens:     reconciler.NewTokenStore(conn),
	})
}

// registerStatic serves the dashboard bundle from publicDir with an SPA
// index fallback. API routes never fall through to the bundle.
func registerStatic(engine *gin.Engine, publicDir string) {
	publicDir = strings.TrimSpace(publicDir)
	if publicDir == "" {
		return
	}
	if _, errStat := os.Stat(publicDir); errStat != nil {
		log.WithError(errStat).Warn("public dir not found, static serving disabled")
		return
	}

	distFS := os.DirFS(publicDir)
	fileServer := http.FileServer(http.FS(distFS))
	indexHTML, errRead := os.ReadFile(path.Join(publicDir, "index.html"))
	if errRead != nil {
		log.WithError(errRead).Warn("index.html not found, static serving disabled")
		return
	}

	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		requestPath := c.Request.URL.Path
		if isAPIRoute(requestPath) {
			c.Status(http.StatusNotFound)
			return
		}
		cleanedPath := path.Clean("/" + requestPath)
		filePath := strings.TrimPrefix(cleanedPath, "/")
		if filePath != "" {
			fileInfo, errStat := fs.Stat(distFS, filePath)
			if errStat == nil && !fileInfo.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
			if strings.Contains(path.Base(filePath), ".") {
				c.Status(http.StatusNotFound)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
}

// isAPIRoute reports whether a path belongs to the JSON API surface.
func isAPIRoute(requestPath string) bool {
	return strings.HasPrefix(requestPath, "/api/") || requestPath == "/api" || requestPath == "/healthz"
}
