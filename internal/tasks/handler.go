package tasks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lecturely/backend/pkg/apperr"
	"github.com/lecturely/backend/pkg/response"
)

// Handler serves the task queue dashboard.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a tasks handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

type viewResponse struct {
	*View
	Error string `json:"error,omitempty"`
}

// List handles GET /admin/tasks?limit=&recentLimit=.
func (h *Handler) List(c *gin.Context) {
	var limits Limits
	var err error
	if limits.Pending, err = queryInt(c, "limit"); err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	if limits.Recent, err = queryInt(c, "recentLimit"); err != nil {
		response.BadRequest(c, "invalid recentLimit")
		return
	}
	view, err := h.svc.Snapshot(c.Request.Context(), limits)
	if err != nil {
		h.logger.Error("task snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, viewResponse{View: EmptyView(), Error: apperr.Message(err)})
		return
	}
	c.JSON(http.StatusOK, viewResponse{View: view})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
