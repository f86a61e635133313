package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const linearDefaultBaseURL = "https://api.linear.app"

const linearNotificationsQuery = `query {
  notifications(first: 100) {
    nodes {
      id
      type
      readAt
      snoozedUntilAt
      updatedAt
      issue { identifier title url }
    }
  }
}`

type linearNotification struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	ReadAt         *time.Time `json:"readAt"`
	SnoozedUntilAt *time.Time `json:"snoozedUntilAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Issue          struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		URL        string `json:"url"`
	} `json:"issue"`
}

type linearNotificationsResponse struct {
	Data struct {
		Notifications struct {
			Nodes []json.RawMessage `json:"nodes"`
		} `json:"notifications"`
	} `json:"data"`
}

type LinearConnector struct {
	baseURL string
	client  *httpClient
}

func NewLinearConnector(baseURL string, timeout time.Duration, rps float64) *LinearConnector {
	if baseURL == "" {
		baseURL = linearDefaultBaseURL
	}
	return &LinearConnector{
		baseURL: baseURL,
		client:  newHTTPClient(model.SourceLinear, timeout, rps),
	}
}

func (c *LinearConnector) Kind() model.SourceKind {
	return model.SourceLinear
}

func (c *LinearConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	body := map[string]string{"query": linearNotificationsQuery}
	var resp linearNotificationsResponse
	if err := c.client.postJSON(ctx, c.baseURL+"/graphql", creds.Token, body, &resp); err != nil {
		return nil, err
	}
	return envelopeItems(resp.Data.Notifications.Nodes, func(elem json.RawMessage) (string, time.Time, error) {
		var n linearNotification
		if err := json.Unmarshal(elem, &n); err != nil {
			return "", time.Time{}, err
		}
		return n.ID, n.UpdatedAt, nil
	}), nil
}

func (c *LinearConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var n linearNotification
	if err := json.Unmarshal(payload, &n); err != nil || n.ID == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceLinear), err)
	}
	return &RawItem{ExternalID: n.ID, Payload: payload, UpdatedAt: n.UpdatedAt}, nil
}
