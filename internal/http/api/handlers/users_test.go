package handlers

import (
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

	"github.com/zapdesk-io/zapdesk/internal/models"
)

func setupUserDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:users_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.Session{}, &models.Instance{}, &models.UserInstance{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newUserRouter(db *gorm.DB, actingUserID uint64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(db)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserIDKey, actingUserID)
		c.Set(ContextUserRoleKey, models.RoleMaster)
		c.Next()
	})
	router.GET("/api/users", handler.List)
	router.POST("/api/users", handler.Create)
	router.PUT("/api/users/:id", handler.Update)
	router.DELETE("/api/users/:id", handler.Delete)
	router.GET("/api/users/:id/instances", handler.ListBindings)
	router.PUT("/api/users/:id/instances/:instanceId", handler.UpsertBinding)
	router.DELETE("/api/users/:id/instances/:instanceId", handler.DeleteBinding)
	return router
}

func TestCreateUserAndDuplicateConflict(t *testing.T) {
	db := setupUserDB(t)
	router := newUserRouter(db, 1)

	payload := `{"username":"alice","password":"hunter2","role":"user"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	db := setupUserDB(t)
	router := newUserRouter(db, 1)

	payload := `{"username":"alice","password":"hunter2","role":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeactivateUserRevokesSessions(t *testing.T) {
	db := setupUserDB(t)
	user := models.User{Username: "alice", Password: "x", Role: models.RoleUser, Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	session := models.Session{UserID: user.ID, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	if errCreate := db.Create(&session).Error; errCreate != nil {
		t.Fatalf("create session: %v", errCreate)
	}
	router := newUserRouter(db, 99)

	payload := `{"active":false}`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/users/%d", user.ID), strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sessionCount int64
	db.Model(&models.Session{}).Count(&sessionCount)
	if sessionCount != 0 {
		t.Fatalf("expected sessions revoked, got %d", sessionCount)
	}
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	db := setupUserDB(t)
	user := models.User{Username: "root", Password: "x", Role: models.RoleMaster, Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	router := newUserRouter(db, user.ID)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/users/%d", user.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpsertBindingTwiceKeepsOneRow(t *testing.T) {
	db := setupUserDB(t)
	user := models.User{Username: "alice", Password: "x", Role: models.RoleUser, Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	instance := models.Instance{Name: "sales", Provider: "evolution", Status: "disconnected"}
	if errCreate := db.Create(&instance).Error; errCreate != nil {
		t.Fatalf("create instance: %v", errCreate)
	}
	router := newUserRouter(db, 99)

	url := fmt.Sprintf("/api/users/%d/instances/%d", user.ID, instance.ID)
	for _, payload := range []string{
		`{"can_connect":true}`,
		`{"can_connect":true,"can_restart":true}`,
	} {
		req := httptest.NewRequest(http.MethodPut, url, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	var bindings []models.UserInstance
	if errFind := db.Find(&bindings).Error; errFind != nil {
		t.Fatalf("find bindings: %v", errFind)
	}
	if len(bindings) != 1 {
		t.Fatalf("expected one binding row, got %d", len(bindings))
	}
	if !bindings[0].CanConnect || !bindings[0].CanRestart {
		t.Fatalf("expected updated capabilities, got %+v", bindings[0])
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/instances", user.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Bindings []struct {
			InstanceName string `json:"instance_name"`
			CanRestart   bool   `json:"can_restart"`
		} `json:"bindings"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if len(resp.Bindings) != 1 || resp.Bindings[0].InstanceName != "sales" || !resp.Bindings[0].CanRestart {
		t.Fatalf("unexpected bindings: %+v", resp.Bindings)
	}
}

func TestDeleteBindingNotFound(t *testing.T) {
	db := setupUserDB(t)
	router := newUserRouter(db, 99)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/5/instances/7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
