package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type slackPayload struct {
	Event struct {
		Type string `json:"type"`
		Item struct {
			Channel string `json:"channel"`
			Ts      string `json:"ts"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"item"`
		EventTs string `json:"event_ts"`
	} `json:"event"`
}

// normalizeSlack maps star and reaction events onto read state: adding
// one surfaces the message as unread, removing it marks the
// notification read.
func normalizeSlack(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var p slackPayload
	if err := decode(item, &p); err != nil {
		return nil, nil, err
	}

	var status model.NotificationStatus
	switch p.Event.Type {
	case "star_added", "reaction_added":
		status = model.NotificationStatusUnread
	case "star_removed", "reaction_removed":
		status = model.NotificationStatusRead
	default:
		return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
			fmt.Errorf("unsupported event type %q", p.Event.Type))
	}

	title := strings.TrimSpace(p.Event.Item.Message.Text)
	if title == "" {
		title = fmt.Sprintf("Slack message in %s", p.Event.Item.Channel)
	}
	title = truncateTitle(title, 120)
	return &model.NotificationDraft{
		Title:           title,
		Status:          status,
		SourceUpdatedAt: slackTimestamp(p.Event.EventTs),
	}, nil, nil
}

// truncateTitle cuts on a rune boundary so a multi-byte character is
// never split into invalid UTF-8.
func truncateTitle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func slackTimestamp(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
