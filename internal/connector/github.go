package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const githubDefaultBaseURL = "https://api.github.com"

// githubNotification mirrors the fields of the notifications API this
// engine cares about. Unknown fields survive in the raw payload.
type githubNotification struct {
	ID        string    `json:"id"`
	Unread    bool      `json:"unread"`
	Reason    string    `json:"reason"`
	UpdatedAt time.Time `json:"updated_at"`
	Subject   struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Type  string `json:"type"`
	} `json:"subject"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type GithubConnector struct {
	baseURL string
	client  *httpClient
}

func NewGithubConnector(baseURL string, timeout time.Duration, rps float64) *GithubConnector {
	if baseURL == "" {
		baseURL = githubDefaultBaseURL
	}
	return &GithubConnector{
		baseURL: baseURL,
		client:  newHTTPClient(model.SourceGithub, timeout, rps),
	}
}

func (c *GithubConnector) Kind() model.SourceKind {
	return model.SourceGithub
}

func (c *GithubConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	var raw []json.RawMessage
	url := c.baseURL + "/notifications?all=true&per_page=100"
	if err := c.client.getJSON(ctx, url, creds.Token, &raw); err != nil {
		return nil, err
	}
	return envelopeItems(raw, func(elem json.RawMessage) (string, time.Time, error) {
		var n githubNotification
		if err := json.Unmarshal(elem, &n); err != nil {
			return "", time.Time{}, err
		}
		return n.ID, n.UpdatedAt, nil
	}), nil
}

func (c *GithubConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var n githubNotification
	if err := json.Unmarshal(payload, &n); err != nil || n.ID == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceGithub), err)
	}
	return &RawItem{ExternalID: n.ID, Payload: payload, UpdatedAt: n.UpdatedAt}, nil
}

// envelopeItems extracts the identity fields from each element without
// rejecting the batch when a single element is broken. Broken elements
// keep an empty ExternalID so the coordinator can count and skip them.
func envelopeItems(elems []json.RawMessage, identity func(json.RawMessage) (string, time.Time, error)) []RawItem {
	items := make([]RawItem, 0, len(elems))
	for _, elem := range elems {
		id, updatedAt, err := identity(elem)
		if err != nil {
			items = append(items, RawItem{Payload: elem})
			continue
		}
		items = append(items, RawItem{ExternalID: id, Payload: elem, UpdatedAt: updatedAt})
	}
	return items
}
