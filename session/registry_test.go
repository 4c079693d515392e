package session

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/streamkit/errors"
)

func TestRegistry_StartRejectsDuplicateID(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})

	owner, _ := hub.Connect(context.Background(), "owner-session")
	if _, appErr := registry.Start("mgr-1", owner.ID(), nil, time.Hour); appErr != nil {
		t.Fatalf("first start: %v", appErr)
	}
	_, appErr := registry.Start("mgr-1", owner.ID(), nil, time.Hour)
	if appErr == nil || appErr.Code != errors.ErrCodeAlreadyExists {
		t.Fatalf("expected ALREADY_EXISTS, got %v", appErr)
	}
}

func TestRegistry_StartRequiresOpenOwner(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})

	_, appErr := registry.Start("mgr-1", "no-such-connection", nil, time.Hour)
	if appErr == nil || appErr.Code != errors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND for unknown owner, got %v", appErr)
	}

	owner, _ := hub.Connect(context.Background(), "owner-session")
	hub.Disconnect(owner.ID(), "test")
	_, appErr = registry.Start("mgr-2", owner.ID(), nil, time.Hour)
	if appErr == nil {
		t.Fatal("expected error for closed owner")
	}
}

func TestRegistry_LifetimeDefaultAndCap(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{
		DefaultLifetime: time.Hour,
		MaxLifetime:     2 * time.Hour,
	})
	ctx := context.Background()

	owner, _ := hub.Connect(ctx, "owner-session")
	mgr, _ := registry.Start("mgr-default", owner.ID(), nil, 0)
	if mgr.Lifetime() != time.Hour {
		t.Errorf("default lifetime = %s, want 1h", mgr.Lifetime())
	}

	mgr, _ = registry.Start("mgr-capped", owner.ID(), nil, 10*time.Hour)
	if mgr.Lifetime() != 2*time.Hour {
		t.Errorf("capped lifetime = %s, want 2h", mgr.Lifetime())
	}
}

func TestRegistry_OwnershipEnforced(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})
	ctx := context.Background()

	owner, _ := hub.Connect(ctx, "owner-session")
	other, _ := hub.Connect(ctx, "other-session")
	mgr, _ := registry.Start("mgr-1", owner.ID(), []string{"s1"}, time.Hour)

	if appErr := registry.Delete("mgr-1", other.ID()); appErr == nil || appErr.Code != errors.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner delete, got %v", appErr)
	}
	if appErr := registry.AddSession("mgr-1", other.ID(), "s2"); appErr == nil || appErr.Code != errors.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner add, got %v", appErr)
	}
	if appErr := registry.RemoveSession("mgr-1", other.ID(), "s1"); appErr == nil || appErr.Code != errors.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner remove, got %v", appErr)
	}
	// The rejected operations changed nothing.
	if !mgr.Active() || !mgr.Tracks("s1") || mgr.Tracks("s2") {
		t.Errorf("manager mutated by rejected operations: %+v", viewOf(mgr))
	}

	if appErr := registry.Delete("mgr-1", owner.ID()); appErr != nil {
		t.Fatalf("owner delete: %v", appErr)
	}
}

func TestRegistry_DeleteUnknownManager(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})

	appErr := registry.Delete("no-such-manager", "whoever")
	if appErr == nil || appErr.Code != errors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", appErr)
	}
}

func TestRegistry_SessionDeletedPropagates(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})
	ctx := context.Background()

	o1, _ := hub.Connect(ctx, "owner-1")
	o2, _ := hub.Connect(ctx, "owner-2")
	m1, _ := registry.Start("mgr-1", o1.ID(), []string{"shared", "own-1"}, time.Hour)
	m2, _ := registry.Start("mgr-2", o2.ID(), []string{"shared"}, time.Hour)
	registry.Start("mgr-3", o2.ID(), []string{"unrelated"}, time.Hour)

	if dropped := registry.SessionDeleted("shared"); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if m1.Tracks("shared") || m2.Tracks("shared") {
		t.Error("managers still track the deleted session")
	}
	if !m1.Tracks("own-1") {
		t.Error("unrelated tracked session removed")
	}
}

func TestRegistry_CloseTearsDownAllManagers(t *testing.T) {
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})
	ctx := context.Background()

	o1, _ := hub.Connect(ctx, "owner-1")
	o2, _ := hub.Connect(ctx, "owner-2")
	m1, _ := registry.Start("mgr-1", o1.ID(), []string{"s1"}, time.Hour)
	m2, _ := registry.Start("mgr-2", o2.ID(), []string{"s2"}, time.Hour)

	registry.Close()

	if m1.Active() || m2.Active() {
		t.Error("managers still active after registry close")
	}
	if registry.Len() != 0 {
		t.Errorf("registry size = %d, want 0", registry.Len())
	}

	// Hub events after close must not reach closed managers.
	owner3, _ := hub.Connect(ctx, "s1")
	_ = owner3
	if m1.Tracks("s1") {
		t.Error("closed manager retained tracked sessions")
	}
}
