package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

const googleCalendarDefaultBaseURL = "https://www.googleapis.com/calendar/v3"

type googleCalendarEvent struct {
	ID      string    `json:"id"`
	Status  string    `json:"status"`
	Summary string    `json:"summary"`
	Updated time.Time `json:"updated"`
	Start   struct {
		DateTime time.Time `json:"dateTime"`
		Date     string    `json:"date"`
	} `json:"start"`
	HTMLLink  string `json:"htmlLink"`
	Attendees []struct {
		Self           bool   `json:"self"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"attendees"`
}

type googleCalendarEventsResponse struct {
	Items []json.RawMessage `json:"items"`
}

// GoogleCalendarConnector lists upcoming events inside a look-ahead
// window. The window keeps the batch finite and matches the inbox rule
// that only imminent events deserve a notification.
type GoogleCalendarConnector struct {
	baseURL   string
	lookAhead time.Duration
	client    *httpClient
	now       func() time.Time
}

func NewGoogleCalendarConnector(baseURL string, lookAhead, timeout time.Duration, rps float64) *GoogleCalendarConnector {
	if baseURL == "" {
		baseURL = googleCalendarDefaultBaseURL
	}
	if lookAhead <= 0 {
		lookAhead = 7 * 24 * time.Hour
	}
	return &GoogleCalendarConnector{
		baseURL:   baseURL,
		lookAhead: lookAhead,
		client:    newHTTPClient(model.SourceGoogleCalendar, timeout, rps),
		now:       time.Now,
	}
}

func (c *GoogleCalendarConnector) Kind() model.SourceKind {
	return model.SourceGoogleCalendar
}

func (c *GoogleCalendarConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	now := c.now().UTC()
	q := url.Values{}
	q.Set("timeMin", now.Format(time.RFC3339))
	q.Set("timeMax", now.Add(c.lookAhead).Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("maxResults", "250")

	var resp googleCalendarEventsResponse
	endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", c.baseURL, q.Encode())
	if err := c.client.getJSON(ctx, endpoint, creds.Token, &resp); err != nil {
		return nil, err
	}
	return envelopeItems(resp.Items, func(elem json.RawMessage) (string, time.Time, error) {
		var ev googleCalendarEvent
		if err := json.Unmarshal(elem, &ev); err != nil {
			return "", time.Time{}, err
		}
		return ev.ID, ev.Updated, nil
	}), nil
}

func (c *GoogleCalendarConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var ev googleCalendarEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ID == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceGoogleCalendar), err)
	}
	return &RawItem{ExternalID: ev.ID, Payload: payload, UpdatedAt: ev.Updated}, nil
}
