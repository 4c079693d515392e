package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/validation"
)

// Handler exposes the connection layer over HTTP: the SSE stream itself
// plus the out-of-band ack/ping/state endpoints the one-directional
// transport needs.
type Handler struct {
	hub *Hub
	log *logger.Logger
}

// NewHandler creates the HTTP handler for the hub.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: hub, log: log.WithComponent("sse.handler")}
}

// RegisterRoutes mounts the connection-layer endpoints on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stream", h.Stream)
	rg.POST("/connections/:id/ack", h.Ack)
	rg.POST("/connections/:id/ping", h.Ping)
	rg.POST("/connections/:id/state", h.State)
	rg.GET("/stats", h.Stats)
	rg.POST("/cleanup", h.Cleanup)
}

type ackRequest struct {
	SequenceID int64 `json:"sequence_id" validate:"gte=0"`
}

type stateRequest struct {
	State any `json:"state" validate:"required"`
}

// Stream opens the SSE stream for a session and drains the connection's
// frame channel until the client goes away or the hub closes it.
func (h *Handler) Stream(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		respondError(c, errors.MissingField("session_id"))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, errors.Internal(fmt.Errorf("streaming not supported by transport")))
		return
	}

	// Streams are long-lived; the server's WriteTimeout must not apply.
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.log.Warn("could not disable write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	conn, appErr := h.hub.Connect(c.Request.Context(), sessionID)
	if appErr != nil {
		respondError(c, appErr)
		return
	}
	defer h.hub.Disconnect(conn.ID(), "stream_ended")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, open := <-conn.Frames():
			if !open {
				return
			}
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

// Ack acknowledges delivery up to a sequence id on a connection.
func (h *Handler) Ack(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if appErr := h.hub.ReceiveAck(c.Param("id"), req.SequenceID); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": req.SequenceID})
}

// Ping records client-initiated liveness on a connection.
func (h *Handler) Ping(c *gin.Context) {
	if appErr := h.hub.ReceivePing(c.Param("id")); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pong": time.Now().UnixMilli()})
}

// State records a client state report on a connection.
func (h *Handler) State(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if appErr := h.hub.ReceiveState(c.Param("id"), req.State); appErr != nil {
		respondError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// Stats returns a hub snapshot.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// Cleanup runs one sweep pass immediately. An optional max_age_ms
// query parameter tightens the eviction window below the configured
// disconnect timeout.
func (h *Handler) Cleanup(c *gin.Context) {
	var maxAge time.Duration
	if raw := c.Query("max_age_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			respondError(c, errors.InvalidInput("max_age_ms", "must be a non-negative integer"))
			return
		}
		maxAge = time.Duration(ms) * time.Millisecond
	}
	evicted := h.hub.ForceCleanup(c.Request.Context(), maxAge)
	c.JSON(http.StatusOK, gin.H{"evicted": evicted})
}

func respondError(c *gin.Context, appErr *errors.AppError) {
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

func respondValidation(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		respondError(c, appErr)
		return
	}
	respondError(c, errors.Validation(err.Error()))
}
