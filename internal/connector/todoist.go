package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const todoistDefaultBaseURL = "https://api.todoist.com/sync/v9"

// todoistItem is a task from the sync API. Todoist priorities are
// inverted relative to this engine: their 4 is the most urgent.
type todoistItem struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Checked     bool   `json:"checked"`
	IsDeleted   bool   `json:"is_deleted"`
	Priority    int    `json:"priority"`
	ProjectID   string `json:"project_id"`
	Due         *struct {
		Date string `json:"date"`
	} `json:"due"`
	UpdatedAt time.Time `json:"updated_at"`
}

type todoistSyncResponse struct {
	Items []json.RawMessage `json:"items"`
}

type TodoistConnector struct {
	baseURL string
	client  *httpClient
}

func NewTodoistConnector(baseURL string, timeout time.Duration, rps float64) *TodoistConnector {
	if baseURL == "" {
		baseURL = todoistDefaultBaseURL
	}
	return &TodoistConnector{
		baseURL: baseURL,
		client:  newHTTPClient(model.SourceTodoist, timeout, rps),
	}
}

func (c *TodoistConnector) Kind() model.SourceKind {
	return model.SourceTodoist
}

func (c *TodoistConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	body := map[string]interface{}{
		"sync_token":     "*",
		"resource_types": []string{"items"},
	}
	var resp todoistSyncResponse
	if err := c.client.postJSON(ctx, c.baseURL+"/sync", creds.Token, body, &resp); err != nil {
		return nil, err
	}
	return envelopeItems(resp.Items, func(elem json.RawMessage) (string, time.Time, error) {
		var it todoistItem
		if err := json.Unmarshal(elem, &it); err != nil {
			return "", time.Time{}, err
		}
		return it.ID, it.UpdatedAt, nil
	}), nil
}

func (c *TodoistConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var ev struct {
		EventData json.RawMessage `json:"event_data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || len(ev.EventData) == 0 {
		return nil, apperrors.MalformedPayload(string(model.SourceTodoist), err)
	}
	var it todoistItem
	if err := json.Unmarshal(ev.EventData, &it); err != nil || it.ID == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceTodoist), err)
	}
	return &RawItem{ExternalID: it.ID, Payload: ev.EventData, UpdatedAt: it.UpdatedAt}, nil
}
