package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

func newItem(kind model.SourceKind, payload string) *model.ThirdPartyItem {
	return &model.ThirdPartyItem{
		SourceKind: kind,
		ExternalID: "ext-1",
		Payload:    json.RawMessage(payload),
	}
}

func TestNormalizeGithubUnread(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceGithub, `{
		"id": "123",
		"unread": true,
		"updated_at": "2026-01-02T10:00:00Z",
		"subject": {"title": "Fix flaky test", "type": "PullRequest"},
		"repository": {"full_name": "acme/api"}
	}`)

	ndraft, tdraft, err := p.Normalize(item)
	require.NoError(t, err)
	require.NotNil(t, ndraft)
	assert.Nil(t, tdraft)
	assert.Equal(t, "[acme/api] Fix flaky test", ndraft.Title)
	assert.Equal(t, model.NotificationStatusUnread, ndraft.Status)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), ndraft.SourceUpdatedAt.UTC())
}

func TestNormalizeGithubReadFlag(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceGithub, `{
		"id": "123",
		"unread": false,
		"subject": {"title": "Release notes"}
	}`)

	ndraft, _, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRead, ndraft.Status)
}

func TestNormalizeLinearReadAt(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceLinear, `{
		"id": "n-1",
		"readAt": "2026-01-03T09:00:00Z",
		"updatedAt": "2026-01-03T09:00:00Z",
		"issue": {"identifier": "ENG-42", "title": "Crash on resume"}
	}`)

	ndraft, _, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRead, ndraft.Status)
	assert.Equal(t, "ENG-42 Crash on resume", ndraft.Title)
}

func TestNormalizeSlackStarEvents(t *testing.T) {
	p := NewPipeline(0)

	added := newItem(model.SourceSlack, `{
		"event": {
			"type": "star_added",
			"item": {"channel": "C1", "ts": "1700000000.000100", "message": {"text": "ship it"}},
			"event_ts": "1700000000.000200"
		}
	}`)
	ndraft, _, err := p.Normalize(added)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusUnread, ndraft.Status)
	assert.Equal(t, "ship it", ndraft.Title)

	removed := newItem(model.SourceSlack, `{
		"event": {
			"type": "star_removed",
			"item": {"channel": "C1", "ts": "1700000000.000100"},
			"event_ts": "1700000001.000000"
		}
	}`)
	ndraft, _, err = p.Normalize(removed)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRead, ndraft.Status)
}

func TestNormalizeSlackTruncatesOnRuneBoundary(t *testing.T) {
	p := NewPipeline(0)

	// The leading ASCII byte shifts every two-byte rune to an odd
	// offset, so a naive cut at byte 120 would split one.
	text := "a" + strings.Repeat("é", 60)
	item := newItem(model.SourceSlack, `{
		"event": {
			"type": "star_added",
			"item": {"channel": "C1", "ts": "1700000000.000100", "message": {"text": "`+text+`"}},
			"event_ts": "1700000000.000200"
		}
	}`)

	ndraft, _, err := p.Normalize(item)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(ndraft.Title))
	assert.LessOrEqual(t, len(ndraft.Title), 120)
	assert.Equal(t, "a"+strings.Repeat("é", 59), ndraft.Title)
}

func TestNormalizeGoogleCalendarWindow(t *testing.T) {
	p := NewPipeline(48 * time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	inWindow := newItem(model.SourceGoogleCalendar, `{
		"id": "ev-1",
		"status": "confirmed",
		"summary": "Design review",
		"updated": "2026-03-01T08:00:00Z",
		"start": {"dateTime": "2026-03-02T10:00:00Z"}
	}`)
	ndraft, _, err := p.Normalize(inWindow)
	require.NoError(t, err)
	require.NotNil(t, ndraft)
	assert.Equal(t, "Design review", ndraft.Title)

	beyondWindow := newItem(model.SourceGoogleCalendar, `{
		"id": "ev-2",
		"summary": "Offsite",
		"start": {"dateTime": "2026-03-10T10:00:00Z"}
	}`)
	ndraft, tdraft, err := p.Normalize(beyondWindow)
	require.NoError(t, err)
	assert.Nil(t, ndraft)
	assert.Nil(t, tdraft)
}

func TestNormalizeGoogleCalendarDeclined(t *testing.T) {
	p := NewPipeline(48 * time.Hour)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	item := newItem(model.SourceGoogleCalendar, `{
		"id": "ev-3",
		"summary": "Optional sync",
		"start": {"dateTime": "2026-03-02T10:00:00Z"},
		"attendees": [{"self": true, "responseStatus": "declined"}]
	}`)
	ndraft, tdraft, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Nil(t, ndraft)
	assert.Nil(t, tdraft)
}

func TestNormalizeGoogleDriveResolved(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceGoogleDrive, `{
		"id": "c-1",
		"content": "typo here",
		"resolved": true,
		"modifiedTime": "2026-01-04T09:00:00Z",
		"fileName": "spec.doc",
		"author": {"displayName": "Sam"}
	}`)

	ndraft, _, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRead, ndraft.Status)
	assert.Equal(t, "Sam commented on spec.doc", ndraft.Title)
}

func TestNormalizeTodoistTask(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceTodoist, `{
		"id": "t-1",
		"content": "Buy milk",
		"description": "2%",
		"checked": false,
		"priority": 4,
		"project_id": "p-9",
		"due": {"date": "2026-01-10"},
		"updated_at": "2026-01-05T08:00:00Z"
	}`)

	ndraft, tdraft, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Nil(t, ndraft)
	require.NotNil(t, tdraft)
	assert.Equal(t, "Buy milk", tdraft.Title)
	assert.Equal(t, model.TaskStatusActive, tdraft.Status)
	// Todoist priority 4 is their highest.
	assert.Equal(t, model.PriorityP1, tdraft.Priority)
	due, ok := tdraft.DueAt.Get()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), due)
}

func TestNormalizeTodoistCheckedAndNoDue(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceTodoist, `{
		"id": "t-2",
		"content": "Done thing",
		"checked": true,
		"priority": 1
	}`)

	_, tdraft, err := p.Normalize(item)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, tdraft.Status)
	assert.Equal(t, model.PriorityP4, tdraft.Priority)
	assert.True(t, tdraft.DueAt.IsNull())
}

func TestNormalizeMalformedPayload(t *testing.T) {
	p := NewPipeline(0)

	item := newItem(model.SourceGithub, `{"id": "x"`)
	_, _, err := p.Normalize(item)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMalformedPayload, apperrors.CodeOf(err))

	missingTitle := newItem(model.SourceGithub, `{"id": "x", "subject": {}}`)
	_, _, err = p.Normalize(missingTitle)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMalformedPayload, apperrors.CodeOf(err))
}

func TestNormalizeUnknownSource(t *testing.T) {
	p := NewPipeline(0)
	item := newItem(model.SourceKind("fax"), `{}`)
	_, _, err := p.Normalize(item)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMalformedPayload, apperrors.CodeOf(err))
}
