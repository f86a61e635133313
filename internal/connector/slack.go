package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

// slackEvent is the event_callback envelope Slack pushes for star and
// reaction events. Slack has no list endpoint for these, so polling
// yields nothing and all items arrive through DecodeWebhook.
type slackEvent struct {
	Type  string `json:"type"`
	Event struct {
		Type string `json:"type"`
		User string `json:"user"`
		Item struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
			Ts      string `json:"ts"`
			Message struct {
				Text      string `json:"text"`
				Permalink string `json:"permalink"`
			} `json:"message"`
		} `json:"item"`
		EventTs string `json:"event_ts"`
	} `json:"event"`
}

type SlackConnector struct{}

func NewSlackConnector() *SlackConnector {
	return &SlackConnector{}
}

func (c *SlackConnector) Kind() model.SourceKind {
	return model.SourceSlack
}

func (c *SlackConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds Credentials) ([]RawItem, error) {
	return nil, nil
}

func (c *SlackConnector) DecodeWebhook(payload []byte) (*RawItem, error) {
	var ev slackEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperrors.MalformedPayload(string(model.SourceSlack), err)
	}
	if ev.Event.Item.Channel == "" || ev.Event.Item.Ts == "" {
		return nil, apperrors.MalformedPayload(string(model.SourceSlack),
			fmt.Errorf("event %q missing item identity", ev.Event.Type))
	}
	return &RawItem{
		ExternalID: ev.Event.Item.Channel + "/" + ev.Event.Item.Ts,
		Payload:    payload,
		UpdatedAt:  slackEventTime(ev.Event.EventTs),
	}, nil
}

// slackEventTime parses Slack's "seconds.micros" timestamp format.
func slackEventTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
