// Package normalize turns raw third-party items into notification and
// task drafts. Every rule is a pure function of the item so the
// pipeline can be unit tested without a database or network.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

// Rule derives drafts from one raw item. Either draft may be nil: a
// nil notification and nil task together mean the item produces
// nothing for the inbox (for example a declined calendar event).
type Rule func(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error)

// Pipeline dispatches items to per-source rules.
type Pipeline struct {
	rules map[model.SourceKind]Rule
	// calendarWindow bounds how far ahead an event may start and still
	// yield a notification.
	calendarWindow time.Duration
	now            func() time.Time
}

func NewPipeline(calendarWindow time.Duration) *Pipeline {
	if calendarWindow <= 0 {
		calendarWindow = 7 * 24 * time.Hour
	}
	p := &Pipeline{
		calendarWindow: calendarWindow,
		now:            time.Now,
	}
	p.rules = map[model.SourceKind]Rule{
		model.SourceGithub:         normalizeGithub,
		model.SourceLinear:         normalizeLinear,
		model.SourceSlack:          normalizeSlack,
		model.SourceGoogleCalendar: p.normalizeGoogleCalendar,
		model.SourceGoogleDrive:    normalizeGoogleDrive,
		model.SourceTodoist:        normalizeTodoist,
	}
	return p
}

// Normalize runs the rule for the item's source. Unknown sources and
// undecodable payloads are malformed-item errors scoped to this item.
func (p *Pipeline) Normalize(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	rule, ok := p.rules[item.SourceKind]
	if !ok {
		return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
			fmt.Errorf("no normalization rule for source %q", item.SourceKind))
	}
	return rule(item)
}

func decode(item *model.ThirdPartyItem, out interface{}) error {
	if err := json.Unmarshal(item.Payload, out); err != nil {
		return apperrors.MalformedPayload(string(item.SourceKind), err)
	}
	return nil
}
