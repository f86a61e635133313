package notification

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/handler"
	"github.com/uniboxhq/inbox-sync/internal/middleware"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	"github.com/uniboxhq/inbox-sync/internal/service/inbox"
)

type Handler struct {
	service *inbox.Service
}

func NewHandler(service *inbox.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	filter := repository.NotificationFilter{
		IncludeSnoozed: c.Query("include_snoozed") == "true",
	}
	for _, s := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, model.NotificationStatus(s))
	}
	if kindParam := c.Query("source"); kindParam != "" {
		kind, err := model.ParseSourceKind(kindParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid source"))
			return
		}
		filter.SourceKind = &kind
	}

	notifications, err := h.service.ListNotifications(c.Request.Context(), userID, filter)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(notifications))
}

func (h *Handler) Patch(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	var patch model.NotificationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	notification, err := h.service.PatchNotification(c.Request.Context(), userID, id, &patch)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(notification))
}

type snoozeRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

func (h *Handler) Snooze(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	notification, err := h.service.SnoozeNotification(c.Request.Context(), userID, id, req.Until)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(notification))
}
