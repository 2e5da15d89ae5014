package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/zapdesk-io/zapdesk/internal/db"
	"github.com/zapdesk-io/zapdesk/internal/models"
)

func setupAccessTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:access_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, username, role string) models.User {
	t.Helper()
	user := models.User{Username: username, Password: "x", Role: role, Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func createInstance(t *testing.T, conn *gorm.DB, name string) models.Instance {
	t.Helper()
	instance := models.Instance{Name: name, Provider: "evolution", Status: "disconnected"}
	if errCreate := conn.Create(&instance).Error; errCreate != nil {
		t.Fatalf("create instance: %v", errCreate)
	}
	return instance
}

func TestMasterBypassesBindings(t *testing.T) {
	t.Parallel()

	conn := setupAccessTestDB(t)
	master := createUser(t, conn, "root", models.RoleMaster)
	instance := createInstance(t, conn, "sales")
	ctx := context.Background()

	for _, action := range []string{ActionConnect, ActionDisconnect, ActionDelete, ActionRestart, ActionSend, "made-up"} {
		if !CanAccessInstance(ctx, conn, master.ID, instance.ID, action) {
			t.Errorf("master denied action %q", action)
		}
	}
	// Even a nonexistent instance id: the master check never consults bindings.
	if !CanAccessInstance(ctx, conn, master.ID, 424242, ActionDelete) {
		t.Error("master denied on nonexistent instance id")
	}
}

func TestDefaultDenyWithoutBinding(t *testing.T) {
	t.Parallel()

	conn := setupAccessTestDB(t)
	user := createUser(t, conn, "alice", models.RoleUser)
	instance := createInstance(t, conn, "sales")
	ctx := context.Background()

	for _, action := range []string{ActionConnect, ActionDisconnect, ActionDelete, ActionRestart, ActionSend} {
		if CanAccessInstance(ctx, conn, user.ID, instance.ID, action) {
			t.Errorf("user allowed action %q without binding", action)
		}
	}
}

func TestBindingGrantsOnlyItsCapabilities(t *testing.T) {
	t.Parallel()

	conn := setupAccessTestDB(t)
	user := createUser(t, conn, "bob", models.RoleUser)
	instance := createInstance(t, conn, "sales")
	binding := models.UserInstance{UserID: user.ID, InstanceID: instance.ID, CanConnect: true}
	if errCreate := conn.Create(&binding).Error; errCreate != nil {
		t.Fatalf("create binding: %v", errCreate)
	}
	ctx := context.Background()

	if !CanAccessInstance(ctx, conn, user.ID, instance.ID, ActionConnect) {
		t.Error("connect denied despite can_connect binding")
	}
	if CanAccessInstance(ctx, conn, user.ID, instance.ID, ActionDelete) {
		t.Error("delete allowed without can_delete")
	}
	if CanAccessInstance(ctx, conn, user.ID, instance.ID, ActionRestart) {
		t.Error("restart allowed without can_restart")
	}
}

func TestUnknownActionFallsBackToConnect(t *testing.T) {
	t.Parallel()

	if got := CapabilityColumn("poke"); got != "can_connect" {
		t.Fatalf("CapabilityColumn(poke) = %q, want can_connect", got)
	}

	conn := setupAccessTestDB(t)
	user := createUser(t, conn, "carol", models.RoleUser)
	instance := createInstance(t, conn, "sales")
	binding := models.UserInstance{UserID: user.ID, InstanceID: instance.ID, CanConnect: true}
	if errCreate := conn.Create(&binding).Error; errCreate != nil {
		t.Fatalf("create binding: %v", errCreate)
	}

	if !CanAccessInstance(context.Background(), conn, user.ID, instance.ID, "poke") {
		t.Error("unknown action should resolve via can_connect")
	}
}

func TestUserInstancesScoping(t *testing.T) {
	t.Parallel()

	conn := setupAccessTestDB(t)
	master := createUser(t, conn, "root", models.RoleMaster)
	user := createUser(t, conn, "dave", models.RoleUser)
	first := createInstance(t, conn, "sales")
	createInstance(t, conn, "support")

	binding := models.UserInstance{UserID: user.ID, InstanceID: first.ID, CanConnect: true, CanRestart: true}
	if errCreate := conn.Create(&binding).Error; errCreate != nil {
		t.Fatalf("create binding: %v", errCreate)
	}
	ctx := context.Background()

	masterGrants, errMaster := UserInstances(ctx, conn, master.ID)
	if errMaster != nil {
		t.Fatalf("master instances: %v", errMaster)
	}
	if len(masterGrants) != 2 {
		t.Fatalf("master sees %d instances, want 2", len(masterGrants))
	}
	for _, grant := range masterGrants {
		if grant.Capabilities != allCapabilities {
			t.Errorf("master capabilities on %s = %+v, want all", grant.Instance.Name, grant.Capabilities)
		}
	}

	userGrants, errUser := UserInstances(ctx, conn, user.ID)
	if errUser != nil {
		t.Fatalf("user instances: %v", errUser)
	}
	if len(userGrants) != 1 || userGrants[0].Instance.Name != "sales" {
		t.Fatalf("user grants = %+v, want only sales", userGrants)
	}
	want := Capabilities{Connect: true, Restart: true}
	if userGrants[0].Capabilities != want {
		t.Fatalf("user capabilities = %+v, want %+v", userGrants[0].Capabilities, want)
	}
}
