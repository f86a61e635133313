package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/config"
	"github.com/uniboxhq/inbox-sync/internal/handler"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/service/inbox"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/security"
)

// signatureHeaders maps each source to the header its provider signs
// the body into.
var signatureHeaders = map[model.SourceKind]string{
	model.SourceGithub:  "X-Hub-Signature-256",
	model.SourceLinear:  "Linear-Signature",
	model.SourceSlack:   "X-Slack-Signature",
	model.SourceTodoist: "X-Todoist-Hmac-SHA256",
}

type Handler struct {
	service    *inbox.Service
	connectors config.ConnectorsConfig
	logger     *logger.Logger
}

func NewHandler(service *inbox.Service, connectors config.ConnectorsConfig, logger *logger.Logger) *Handler {
	return &Handler{service: service, connectors: connectors, logger: logger}
}

// Receive verifies and ingests one provider push. The payload is
// persisted and normalized asynchronously, so the provider gets its
// 202 before any business work runs.
func (h *Handler) Receive(c *gin.Context) {
	kind, err := model.ParseSourceKind(c.Param("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid source"))
		return
	}
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read body"))
		return
	}

	secret := h.secretFor(kind)
	if secret != "" {
		signature := c.GetHeader(signatureHeaders[kind])
		if !security.VerifySignature([]byte(secret), body, signature) {
			h.logger.Warn("rejected webhook with bad signature",
				"source", string(kind), "user_id", userID.String())
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid signature"))
			return
		}
	}

	job, err := h.service.IngestWebhook(c.Request.Context(), userID, kind, body)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(job))
}

func (h *Handler) secretFor(kind model.SourceKind) string {
	switch kind {
	case model.SourceGithub:
		return h.connectors.Github.WebhookSecret
	case model.SourceLinear:
		return h.connectors.Linear.WebhookSecret
	case model.SourceSlack:
		return h.connectors.Slack.WebhookSecret
	case model.SourceGoogleCalendar:
		return h.connectors.GoogleCalendar.WebhookSecret
	case model.SourceGoogleDrive:
		return h.connectors.GoogleDrive.WebhookSecret
	case model.SourceTodoist:
		return h.connectors.Todoist.WebhookSecret
	}
	return ""
}
