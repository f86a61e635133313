package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const googleDriveDefaultBaseURL = "https://www.googleapis.com/drive/v3"

type googleDriveComment struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Resolved     bool      `json:"resolved"`
	ModifiedTime time.Time `json:"modifiedTime"`
	FileID       string    `json:"fileId"`
	FileName     string    `json:"fileName"`
	HTMLLink     string    `json:"htmlLink"`
	Author       struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
}

type googleDriveCommentsResponse struct {
	Comments []json.RawMessage `json:"comments"`
}

type GoogleDriveConnector struct {
	baseURL string
	client  *httpClient
}

func NewGoogleDriveConnector(baseURL string, timeout time.Duration, rps float64) *GoogleDriveConnector {
	if baseURL == "" {
		baseURL = googleDriveDefaultBaseURL
	}
	return &GoogleDriveConnector{
		baseURL: baseURL,
		client:  newHTTPClient(model.SourceGoogleDrive, timeout, rps),
	}
}

func (c *GoogleDriveConnector) Kind() model.SourceKind {
	return model.SourceGoogleDrive
}

func (c *GoogleDriveConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	var resp googleDriveCommentsResponse
	endpoint := c.baseURL + "/comments?pageSize=100&fields=comments(id,content,resolved,modifiedTime,fileId,fileName,htmlLink,author)"
	if err := c.client.getJSON(ctx, endpoint, creds.Token, &resp); err != nil {
		return nil, err
	}
	return envelopeItems(resp.Comments, func(elem json.RawMessage) (string, time.Time, error) {
		var cm googleDriveComment
		if err := json.Unmarshal(elem, &cm); err != nil {
			return "", time.Time{}, err
		}
		return cm.ID, cm.ModifiedTime, nil
	}), nil
}

func (c *GoogleDriveConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var cm googleDriveComment
	if err := json.Unmarshal(payload, &cm); err != nil || cm.ID == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceGoogleDrive), err)
	}
	return &RawItem{ExternalID: cm.ID, Payload: payload, UpdatedAt: cm.ModifiedTime}, nil
}
