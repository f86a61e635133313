package sync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/handler"
	"github.com/uniboxhq/inbox-sync/internal/middleware"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/service/inbox"
)

type Handler struct {
	service *inbox.Service
}

func NewHandler(service *inbox.Service) *Handler {
	return &Handler{service: service}
}

// Trigger enqueues a manual sync for one source. Responds 202: the
// job runs asynchronously and its row can be polled via GetJob.
func (h *Handler) Trigger(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}
	kind, err := model.ParseSourceKind(c.Param("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid source"))
		return
	}

	job, err := h.service.SyncNow(c.Request.Context(), userID, kind)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(job))
}

func (h *Handler) GetJob(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid job ID"))
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), userID, jobID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(job))
}
