package normalize

import (
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type googleCalendarPayload struct {
	ID      string    `json:"id"`
	Status  string    `json:"status"`
	Summary string    `json:"summary"`
	Updated time.Time `json:"updated"`
	Start   struct {
		DateTime time.Time `json:"dateTime"`
		Date     string    `json:"date"`
	} `json:"start"`
	Attendees []struct {
		Self           bool   `json:"self"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"attendees"`
}

// normalizeGoogleCalendar yields a notification only for events that
// start inside the look-ahead window and that the user has not
// declined. Everything else produces no draft at all.
func (p *Pipeline) normalizeGoogleCalendar(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var ev googleCalendarPayload
	if err := decode(item, &ev); err != nil {
		return nil, nil, err
	}

	for _, a := range ev.Attendees {
		if a.Self && a.ResponseStatus == "declined" {
			return nil, nil, nil
		}
	}

	start := ev.Start.DateTime
	if start.IsZero() && ev.Start.Date != "" {
		parsed, err := time.Parse("2006-01-02", ev.Start.Date)
		if err != nil {
			return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
				fmt.Errorf("event %s has unparseable start date %q", ev.ID, ev.Start.Date))
		}
		start = parsed
	}
	now := p.now()
	if start.Before(now) || start.After(now.Add(p.calendarWindow)) {
		return nil, nil, nil
	}

	status := model.NotificationStatusUnread
	if ev.Status == "cancelled" {
		status = model.NotificationStatusDeleted
	}
	title := ev.Summary
	if title == "" {
		title = "Untitled event"
	}
	return &model.NotificationDraft{
		Title:           title,
		Status:          status,
		SourceUpdatedAt: ev.Updated,
	}, nil, nil
}

type googleDrivePayload struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Resolved     bool      `json:"resolved"`
	ModifiedTime time.Time `json:"modifiedTime"`
	FileName     string    `json:"fileName"`
	Author       struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
}

func normalizeGoogleDrive(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var p googleDrivePayload
	if err := decode(item, &p); err != nil {
		return nil, nil, err
	}

	status := model.NotificationStatusUnread
	if p.Resolved {
		status = model.NotificationStatusRead
	}
	title := fmt.Sprintf("Comment on %s", p.FileName)
	if p.Author.DisplayName != "" {
		title = fmt.Sprintf("%s commented on %s", p.Author.DisplayName, p.FileName)
	}
	return &model.NotificationDraft{
		Title:           title,
		Status:          status,
		SourceUpdatedAt: p.ModifiedTime,
	}, nil, nil
}
