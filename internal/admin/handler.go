package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturely/backend/internal/middleware"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/pkg/apperr"
	"github.com/lecturely/backend/pkg/response"
)

// Handler exposes the admin service over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the admin endpoints on g. g must already carry JWT and role middleware.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/tasks/retry", h.Retry)
	g.GET("/recordings/:id", h.Detail)
	g.GET("/recordings/:id/entries", h.Entries)
	g.POST("/recordings/:id/reprocess", h.Reprocess)
	g.POST("/recordings/:id/transfer", h.Transfer)
	g.POST("/recordings/:id/delete", h.Delete)
	g.POST("/users/:id/role", h.ChangeRole)
	g.GET("/metrics", h.Metrics)
	g.GET("/audit-logs", h.AuditLog)
}

// actorFrom builds the actor from claims set by the JWT middleware.
func actorFrom(c *gin.Context) Actor {
	a := Actor{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if v, ok := c.Get(middleware.ContextUserID); ok {
		a.UserID, _ = v.(uuid.UUID)
	}
	a.Role = models.Role(c.GetString(middleware.ContextUserRole))
	a.Email = c.GetString(middleware.ContextUserEmail)
	return a
}

// parseID reads an id from the path or body. An empty value maps to uuid.Nil and is reported
// by the service. A malformed value is rejected here, after the same role check the service runs.
func (h *Handler) parseID(c *gin.Context, raw, field string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	if id, err := uuid.Parse(raw); err == nil {
		return id, true
	}
	if err := authorize(actorFrom(c)); err != nil {
		h.fail(c, err)
		return uuid.Nil, false
	}
	h.fail(c, apperr.Validation("invalid "+field))
	return uuid.Nil, false
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindUpstream {
		h.logger.Error("admin request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

type retryRequest struct {
	RecordingID     string `json:"recordingId"`
	TaskType        string `json:"taskType"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// Retry handles POST /admin/tasks/retry.
func (h *Handler) Retry(c *gin.Context) {
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	id, ok := h.parseID(c, req.RecordingID, "recording id")
	if !ok {
		return
	}
	res, err := h.svc.Retry(c.Request.Context(), actorFrom(c), id, pipeline.Kind(req.TaskType),
		Options{ExpectedVersion: req.ExpectedVersion})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Ack(c, res.Message)
}

type reprocessRequest struct {
	Type            string `json:"type"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// Reprocess handles POST /admin/recordings/:id/reprocess.
func (h *Handler) Reprocess(c *gin.Context) {
	var req reprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	id, ok := h.parseID(c, c.Param("id"), "recording id")
	if !ok {
		return
	}
	res, err := h.svc.Reprocess(c.Request.Context(), actorFrom(c), id, pipeline.Kind(req.Type),
		Options{ExpectedVersion: req.ExpectedVersion})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Ack(c, res.Message)
}

type transferRequest struct {
	TargetUserID    string `json:"targetUserId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// Transfer handles POST /admin/recordings/:id/transfer.
func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	id, ok := h.parseID(c, c.Param("id"), "recording id")
	if !ok {
		return
	}
	target, ok := h.parseID(c, req.TargetUserID, "target user id")
	if !ok {
		return
	}
	res, err := h.svc.Transfer(c.Request.Context(), actorFrom(c), id, target,
		Options{ExpectedVersion: req.ExpectedVersion})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Ack(c, res.Message)
}

type deleteRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// Delete handles POST /admin/recordings/:id/delete. The body is optional.
func (h *Handler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body")
		return
	}
	id, ok := h.parseID(c, c.Param("id"), "recording id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), id, Options{ExpectedVersion: req.ExpectedVersion}); err != nil {
		h.fail(c, err)
		return
	}
	response.Ack(c, "")
}

// Detail handles GET /admin/recordings/:id.
func (h *Handler) Detail(c *gin.Context) {
	id, ok := h.parseID(c, c.Param("id"), "recording id")
	if !ok {
		return
	}
	d, err := h.svc.Detail(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Entries handles GET /admin/recordings/:id/entries.
func (h *Handler) Entries(c *gin.Context) {
	id, ok := h.parseID(c, c.Param("id"), "recording id")
	if !ok {
		return
	}
	list, err := h.svc.Entries(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []models.RecordEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": list})
}

type roleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles POST /admin/users/:id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	id, ok := h.parseID(c, c.Param("id"), "user id")
	if !ok {
		return
	}
	if err := h.svc.ChangeRole(c.Request.Context(), actorFrom(c), id, models.Role(req.Role)); err != nil {
		h.fail(c, err)
		return
	}
	response.Ack(c, "")
}

// Metrics handles GET /admin/metrics.
func (h *Handler) Metrics(c *gin.Context) {
	m, err := h.svc.Metrics(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// AuditLog handles GET /admin/audit-logs?limit=.
func (h *Handler) AuditLog(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.AuditLog(c.Request.Context(), actorFrom(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": list})
}
