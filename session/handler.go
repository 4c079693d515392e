package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/validation"
)

// Handler exposes the manager admin surface and the session records
// behind it. Ownership is proven by the caller presenting its
// connection id; there is no separate auth layer here.
type Handler struct {
	registry *Registry
	store    Store
	log      *logger.Logger
}

// NewHandler creates the HTTP handler for the session layer.
func NewHandler(registry *Registry, store Store, log *logger.Logger) *Handler {
	return &Handler{registry: registry, store: store, log: log.WithComponent("session.handler")}
}

// RegisterRoutes mounts the session-layer endpoints on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/managers", h.StartManager)
	rg.GET("/managers", h.ListManagers)
	rg.GET("/managers/:id", h.GetManager)
	rg.DELETE("/managers/:id", h.DeleteManager)
	rg.POST("/managers/:id/sessions", h.AddSession)
	rg.DELETE("/managers/:id/sessions/:sessionID", h.RemoveSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.DELETE("/sessions/:id", h.DeleteSession)
}

type startManagerRequest struct {
	ManagerID    string   `json:"manager_id" validate:"required"`
	ConnectionID string   `json:"connection_id" validate:"required,uuid"`
	Sessions     []string `json:"sessions"`
	LifetimeMS   int64    `json:"lifetime_ms" validate:"gte=0"`
}

type addSessionRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,uuid"`
	SessionID    string `json:"session_id" validate:"required"`
}

type managerView struct {
	ManagerID  string   `json:"manager_id"`
	OwnerID    string   `json:"owner_connection_id"`
	Sessions   []string `json:"sessions"`
	LifetimeMS int64    `json:"lifetime_ms"`
	Active     bool     `json:"active"`
}

func viewOf(m *Manager) managerView {
	return managerView{
		ManagerID:  m.ID(),
		OwnerID:    m.Owner().ID(),
		Sessions:   m.Sessions(),
		LifetimeMS: m.Lifetime().Milliseconds(),
		Active:     m.Active(),
	}
}

// StartManager creates and registers a manager owned by the calling
// connection.
func (h *Handler) StartManager(c *gin.Context) {
	var req startManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(&req); err != nil {
		respondValidation(c, err)
		return
	}
	mgr, appErr := h.registry.Start(req.ManagerID, req.ConnectionID, req.Sessions,
		time.Duration(req.LifetimeMS)*time.Millisecond)
	if appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, viewOf(mgr))
}

// ListManagers returns all live managers.
func (h *Handler) ListManagers(c *gin.Context) {
	managers := h.registry.List()
	views := make([]managerView, 0, len(managers))
	for _, mgr := range managers {
		views = append(views, viewOf(mgr))
	}
	c.JSON(http.StatusOK, gin.H{"managers": views})
}

// GetManager returns one manager.
func (h *Handler) GetManager(c *gin.Context) {
	mgr, appErr := h.registry.Get(c.Param("id"))
	if appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, viewOf(mgr))
}

// DeleteManager closes a manager on behalf of its owner. The caller
// proves ownership via the connection_id query parameter.
func (h *Handler) DeleteManager(c *gin.Context) {
	callerID := c.Query("connection_id")
	if callerID == "" {
		respondError(c, errors.MissingField("connection_id"))
		return
	}
	if appErr := h.registry.Delete(c.Param("id"), callerID); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// AddSession adds a session to a manager's tracked set.
func (h *Handler) AddSession(c *gin.Context) {
	var req addSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if appErr := h.registry.AddSession(c.Param("id"), req.ConnectionID, req.SessionID); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": req.SessionID})
}

// RemoveSession drops a session from a manager's tracked set.
func (h *Handler) RemoveSession(c *gin.Context) {
	callerID := c.Query("connection_id")
	if callerID == "" {
		respondError(c, errors.MissingField("connection_id"))
		return
	}
	if appErr := h.registry.RemoveSession(c.Param("id"), callerID, c.Param("sessionID")); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("sessionID")})
}

// GetSession returns a session record from the store.
func (h *Handler) GetSession(c *gin.Context) {
	rec, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondValidation(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteSession removes a session record and drops the session from
// every manager tracking it.
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.store.DeleteSession(c.Request.Context(), sessionID); err != nil {
		respondValidation(c, err)
		return
	}
	dropped := h.registry.SessionDeleted(sessionID)
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID, "managers_updated": dropped})
}

func respondError(c *gin.Context, appErr *errors.AppError) {
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

func respondValidation(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		respondError(c, appErr)
		return
	}
	respondError(c, errors.Internal(err))
}
