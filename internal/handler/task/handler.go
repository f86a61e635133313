package task

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

	var filter repository.TaskFilter
	for _, s := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, model.TaskStatus(s))
	}
	if project := c.Query("project"); project != "" {
		filter.Project = &project
	}

	tasks, err := h.service.ListTasks(c.Request.Context(), userID, filter)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tasks))
}

type createTaskRequest struct {
	Title    string             `json:"title" binding:"required"`
	Body     string             `json:"body"`
	Priority model.TaskPriority `json:"priority"`
	DueAt    *time.Time         `json:"due_at"`
	Project  string             `json:"project"`
}

func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	task := &model.Task{
		UserID:   userID,
		Title:    req.Title,
		Body:     req.Body,
		Priority: req.Priority,
		DueAt:    req.DueAt,
		Project:  req.Project,
	}
	created, err := h.service.CreateTask(c.Request.Context(), task)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) Patch(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid task ID"))
		return
	}

	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	task, err := h.service.PatchTask(c.Request.Context(), userID, id, &patch)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(task))
}
