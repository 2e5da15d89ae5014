package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/config"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/reconciler"
	"github.com/zapdesk-io/zapdesk/internal/security"
)

// nullGateway satisfies gateway.Client with empty success results.
type nullGateway struct{}

func (nullGateway) Provider() string { return "evolution" }

func (nullGateway) ListInstances(context.Context) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: []any{}}, nil
}

func (nullGateway) CreateInstance(context.Context, string, gateway.CreateOptions) (gateway.Result, error) {
	return gateway.Result{StatusCode: 201, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) ConnectInstance(context.Context, string, string) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) GetInstanceStatus(context.Context, string) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) RestartInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) DisconnectInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) DeleteInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{StatusCode: 200, OK: true, Body: map[string]any{}}, nil
}

func (nullGateway) NormalizeInstance(map[string]any) gateway.NormalizedInstance {
	return gateway.NormalizedInstance{}
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.Session{}, &models.Instance{}, &models.UserInstance{}, &models.ActivityLog{}, &models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	client := nullGateway{}
	router := gin.New()
	RegisterRoutes(router, Deps{
		DB:         db,
		JWT:        config.JWTConfig{Secret: "test-secret", ExpiryHours: 1},
		Gateway:    client,
		Reconciler: reconciler.New(db, client),
	})
	return router, db
}

func createAccount(t *testing.T, db *gorm.DB, username, password, role string) models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{Username: username, Password: hash, Role: role, Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func login(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()
	payload := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode login response: %v", errDecode)
	}
	if resp.Token == "" {
		t.Fatal("login: empty token")
	}
	return resp.Token
}

func TestLoginIssuesSessionAndMeWorks(t *testing.T) {
	router, db := setupRouter(t)
	createAccount(t, db, "alice", "hunter2", models.RoleUser)

	token := login(t, router, "alice", "hunter2")

	var session models.Session
	if errFind := db.First(&session).Error; errFind != nil {
		t.Fatalf("expected a session row: %v", errFind)
	}
	if session.Token == token {
		t.Fatal("session row must store the opaque token, not the JWT")
	}
	if len(session.Token) != 64 {
		t.Fatalf("expected 64-char opaque session token, got %d chars", len(session.Token))
	}
	claims, errParse := security.ParseToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.SessionID != session.Token {
		t.Fatal("JWT sid claim must match the stored session token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "alice") {
		t.Fatalf("me: expected username in body, got %s", w.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, db := setupRouter(t)
	createAccount(t, db, "alice", "hunter2", models.RoleUser)

	payload := `{"username":"alice","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	router, db := setupRouter(t)
	createAccount(t, db, "alice", "hunter2", models.RoleUser)

	token := login(t, router, "alice", "hunter2")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	// The JWT is still cryptographically valid but its session row is gone.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", w.Code)
	}
}

func TestMasterRoutesRejectOrdinaryUser(t *testing.T) {
	router, db := setupRouter(t)
	createAccount(t, db, "bob", "hunter2", models.RoleUser)

	token := login(t, router, "bob", "hunter2")

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestMasterRoutesAllowMaster(t *testing.T) {
	router, db := setupRouter(t)
	createAccount(t, db, "root", "hunter2", models.RoleMaster)

	token := login(t, router, "root", "hunter2")

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/instances", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestInactiveUserCannotUseExistingSession(t *testing.T) {
	router, db := setupRouter(t)
	user := createAccount(t, db, "carol", "hunter2", models.RoleUser)

	token := login(t, router, "carol", "hunter2")

	if errUpdate := db.Model(&models.User{}).Where("id = ?", user.ID).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate user: %v", errUpdate)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
