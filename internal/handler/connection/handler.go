package connection

import (
	"net/http"

	"github.com/gin-gonic/gin"

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

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	connections, err := h.service.ListConnections(c.Request.Context(), userID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(connections))
}

func (h *Handler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
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

	if enabled {
		err = h.service.EnableConnection(c.Request.Context(), userID, kind)
	} else {
		err = h.service.DisableConnection(c.Request.Context(), userID, kind)
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
