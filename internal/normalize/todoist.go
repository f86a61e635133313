package normalize

import (
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type todoistPayload struct {
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

// normalizeTodoist yields a task draft and no notification. Todoist
// priority 4 is their most urgent, so the scale is flipped onto the
// 1-highest convention.
func normalizeTodoist(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var p todoistPayload
	if err := decode(item, &p); err != nil {
		return nil, nil, err
	}
	if p.Content == "" {
		return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
			fmt.Errorf("task %s has no content", p.ID))
	}

	status := model.TaskStatusActive
	switch {
	case p.IsDeleted:
		status = model.TaskStatusDeleted
	case p.Checked:
		status = model.TaskStatusDone
	}

	priority := model.TaskPriority(5 - p.Priority)
	if !priority.Valid() {
		priority = model.PriorityP4
	}

	draft := &model.TaskDraft{
		Title:           p.Content,
		Body:            p.Description,
		Status:          status,
		Priority:        priority,
		Project:         p.ProjectID,
		SourceUpdatedAt: p.UpdatedAt,
	}
	if p.Due == nil {
		draft.DueAt = model.NullField[time.Time]()
	} else {
		due, err := parseTodoistDue(p.Due.Date)
		if err != nil {
			return nil, nil, apperrors.MalformedPayload(string(item.SourceKind), err)
		}
		draft.DueAt = model.SetField(due)
	}
	return nil, draft, nil
}

func parseTodoistDue(date string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable due date %q", date)
}
