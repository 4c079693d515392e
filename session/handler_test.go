package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/sse"
)

func newHandlerFixture(t *testing.T) (*gin.Engine, *sse.Hub, *Registry, Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := newTestHub(t)
	registry := newTestRegistry(t, hub, Config{})
	store := NewMemoryStore()
	router := gin.New()
	NewHandler(registry, store, logger.NewDefault("test")).RegisterRoutes(router.Group("/session"))
	return router, hub, registry, store
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StartAndDeleteManager(t *testing.T) {
	router, hub, registry, _ := newHandlerFixture(t)
	owner, _ := hub.Connect(context.Background(), "owner-session")

	rec := postJSON(router, "/session/managers", map[string]any{
		"manager_id":    "mgr-1",
		"connection_id": owner.ID(),
		"sessions":      []string{"s1"},
		"lifetime_ms":   time.Hour.Milliseconds(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view managerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.ManagerID != "mgr-1" || view.OwnerID != owner.ID() || !view.Active {
		t.Errorf("view = %+v", view)
	}

	del := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/session/managers/mgr-1?connection_id=%s", owner.ID()), nil)
	router.ServeHTTP(del, req)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", del.Code, del.Body.String())
	}
	if registry.Len() != 0 {
		t.Errorf("registry size = %d after delete", registry.Len())
	}
}

func TestHandler_StartRejectsBadOwner(t *testing.T) {
	router, _, _, _ := newHandlerFixture(t)

	rec := postJSON(router, "/session/managers", map[string]any{
		"manager_id":    "mgr-1",
		"connection_id": "not-a-uuid",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed connection id", rec.Code)
	}
}

func TestHandler_DeleteByNonOwnerForbidden(t *testing.T) {
	router, hub, _, _ := newHandlerFixture(t)
	ctx := context.Background()
	owner, _ := hub.Connect(ctx, "owner-session")
	other, _ := hub.Connect(ctx, "other-session")

	postJSON(router, "/session/managers", map[string]any{
		"manager_id":    "mgr-1",
		"connection_id": owner.ID(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/session/managers/mgr-1?connection_id=%s", other.ID()), nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandler_SessionEndpoints(t *testing.T) {
	router, hub, _, store := newHandlerFixture(t)
	ctx := context.Background()
	owner, _ := hub.Connect(ctx, "owner-session")

	postJSON(router, "/session/managers", map[string]any{
		"manager_id":    "mgr-1",
		"connection_id": owner.ID(),
		"sessions":      []string{"s1"},
	})
	store.IncrementTabs(ctx, "s1", 2)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/sessions/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
	var record Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.Tabs != 2 {
		t.Errorf("tabs = %d, want 2", record.Tabs)
	}

	// Deleting the record drops it from tracking managers too.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/session/sessions/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete session status = %d", rec.Code)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["managers_updated"].(float64) != 1 {
		t.Errorf("managers_updated = %v, want 1", out["managers_updated"])
	}
}
