package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/zapdesk-io/zapdesk/internal/db"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/models"
)

// fakeClient is a scripted gateway.Client whose list result and normalizer
// come from the uazapi payload shapes.
type fakeClient struct {
	provider   string
	listResult gateway.Result
	listErr    error
	normalizer gateway.Client
}

func newFakeClient(t *testing.T, provider string) *fakeClient {
	t.Helper()
	normalizer, errNew := gateway.New(provider, gateway.Config{
		BaseURL:    "http://gateway.invalid",
		APIKey:     "key",
		AdminToken: "admin",
	})
	if errNew != nil {
		t.Fatalf("new normalizer: %v", errNew)
	}
	return &fakeClient{provider: provider, normalizer: normalizer}
}

func (f *fakeClient) Provider() string { return f.provider }
func (f *fakeClient) ListInstances(context.Context) (gateway.Result, error) {
	return f.listResult, f.listErr
}
func (f *fakeClient) CreateInstance(context.Context, string, gateway.CreateOptions) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) ConnectInstance(context.Context, string, string) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) GetInstanceStatus(context.Context, string) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) RestartInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) DisconnectInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) DeleteInstance(context.Context, string) (gateway.Result, error) {
	return gateway.Result{}, nil
}
func (f *fakeClient) NormalizeInstance(raw map[string]any) gateway.NormalizedInstance {
	return f.normalizer.NormalizeInstance(raw)
}

func setupReconcilerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:reconciler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestSyncInstancePreservesNumberWhenPayloadOmitsIt(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	rec := New(conn, newFakeClient(t, gateway.ProviderUazapi))
	ctx := context.Background()

	first := map[string]any{
		"name":     "sales",
		"status":   "connected",
		"instance": map[string]any{"owner": "+5511999999999"},
	}
	if errSync := rec.SyncInstance(ctx, first); errSync != nil {
		t.Fatalf("first sync: %v", errSync)
	}

	second := map[string]any{"name": "sales", "status": "disconnected"}
	if errSync := rec.SyncInstance(ctx, second); errSync != nil {
		t.Fatalf("second sync: %v", errSync)
	}

	var row models.Instance
	if errFind := conn.Where("name = ?", "sales").First(&row).Error; errFind != nil {
		t.Fatalf("load row: %v", errFind)
	}
	if row.Status != string(gateway.StatusDisconnected) {
		t.Errorf("status = %q, want disconnected after second sync", row.Status)
	}
	if row.Number == nil || *row.Number != "+5511999999999" {
		t.Errorf("number = %v, want preserved +5511999999999", row.Number)
	}
}

func TestSyncInstanceOverwritesProfileFields(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	rec := New(conn, newFakeClient(t, gateway.ProviderUazapi))
	ctx := context.Background()

	first := map[string]any{"name": "sales", "status": "connected", "profileName": "Old Name"}
	if errSync := rec.SyncInstance(ctx, first); errSync != nil {
		t.Fatalf("first sync: %v", errSync)
	}
	second := map[string]any{"name": "sales", "status": "connected", "profileName": "New Name"}
	if errSync := rec.SyncInstance(ctx, second); errSync != nil {
		t.Fatalf("second sync: %v", errSync)
	}

	var row models.Instance
	if errFind := conn.Where("name = ?", "sales").First(&row).Error; errFind != nil {
		t.Fatalf("load row: %v", errFind)
	}
	if row.ProfileName == nil || *row.ProfileName != "New Name" {
		t.Errorf("profile name = %v, want New Name", row.ProfileName)
	}
}

func TestSyncInstanceIsIdempotentOnName(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	rec := New(conn, newFakeClient(t, gateway.ProviderUazapi))
	ctx := context.Background()

	raw := map[string]any{"name": "sales", "status": "connecting"}
	for i := 0; i < 3; i++ {
		if errSync := rec.SyncInstance(ctx, raw); errSync != nil {
			t.Fatalf("sync %d: %v", i, errSync)
		}
	}

	var count int64
	if errCount := conn.Model(&models.Instance{}).Where("name = ?", "sales").Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}
}

func TestSyncInstancePersistsUazapiToken(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	rec := New(conn, newFakeClient(t, gateway.ProviderUazapi))
	ctx := context.Background()

	raw := map[string]any{"name": "sales", "status": "disconnected", "token": "inst-secret"}
	if errSync := rec.SyncInstance(ctx, raw); errSync != nil {
		t.Fatalf("sync: %v", errSync)
	}

	token, errToken := rec.UazapiToken(ctx, "sales")
	if errToken != nil {
		t.Fatalf("token lookup: %v", errToken)
	}
	if token != "inst-secret" {
		t.Fatalf("token = %q, want inst-secret", token)
	}

	// A later payload without a token must not erase the stored one.
	if errSync := rec.SyncInstance(ctx, map[string]any{"name": "sales", "status": "connected"}); errSync != nil {
		t.Fatalf("second sync: %v", errSync)
	}
	token, errToken = rec.UazapiToken(ctx, "sales")
	if errToken != nil {
		t.Fatalf("second token lookup: %v", errToken)
	}
	if token != "inst-secret" {
		t.Fatalf("token after second sync = %q, want inst-secret", token)
	}
}

func TestUazapiTokenAbsent(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	rec := New(conn, newFakeClient(t, gateway.ProviderUazapi))

	token, errToken := rec.UazapiToken(context.Background(), "ghost")
	if errToken != nil {
		t.Fatalf("token lookup: %v", errToken)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty for unknown instance", token)
	}
}

func TestSyncAllSkipsBadRecordsAndContinues(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	client := newFakeClient(t, gateway.ProviderUazapi)
	client.listResult = gateway.Result{
		StatusCode: 200,
		OK:         true,
		Body: []any{
			map[string]any{"status": "connected"}, // no name, skipped
			"not-an-object",                       // skipped
			map[string]any{"name": "sales", "status": "connected"},
			map[string]any{"name": "support", "status": "connecting"},
		},
	}
	rec := New(conn, client)

	if errSync := rec.SyncAll(context.Background()); errSync != nil {
		t.Fatalf("sync all: %v", errSync)
	}

	var count int64
	if errCount := conn.Model(&models.Instance{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 2 {
		t.Fatalf("row count = %d, want 2", count)
	}
}

func TestSyncAllSurfacesVendorFailure(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	client := newFakeClient(t, gateway.ProviderUazapi)
	client.listResult = gateway.Result{StatusCode: 503, OK: false, Body: "unavailable"}
	rec := New(conn, client)

	if errSync := rec.SyncAll(context.Background()); errSync == nil {
		t.Fatal("expected error when vendor list fails")
	}
}

func TestSyncAllAcceptsNestedInstancesObject(t *testing.T) {
	t.Parallel()

	conn := setupReconcilerTestDB(t)
	client := newFakeClient(t, gateway.ProviderUazapi)
	client.listResult = gateway.Result{
		StatusCode: 200,
		OK:         true,
		Body: map[string]any{
			"instances": []any{map[string]any{"name": "sales", "status": "connected"}},
		},
	}
	rec := New(conn, client)

	if errSync := rec.SyncAll(context.Background()); errSync != nil {
		t.Fatalf("sync all: %v", errSync)
	}
	var count int64
	if errCount := conn.Model(&models.Instance{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}
}
