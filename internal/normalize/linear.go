package normalize

import (
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type linearPayload struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	ReadAt    *time.Time `json:"readAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Issue     struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
	} `json:"issue"`
}

func normalizeLinear(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var p linearPayload
	if err := decode(item, &p); err != nil {
		return nil, nil, err
	}
	if p.Issue.Title == "" {
		return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
			fmt.Errorf("notification %s has no issue title", p.ID))
	}

	// Linear reports read state as a timestamp, not a flag.
	status := model.NotificationStatusUnread
	if p.ReadAt != nil {
		status = model.NotificationStatusRead
	}
	title := p.Issue.Title
	if p.Issue.Identifier != "" {
		title = fmt.Sprintf("%s %s", p.Issue.Identifier, p.Issue.Title)
	}
	return &model.NotificationDraft{
		Title:           title,
		Status:          status,
		SourceUpdatedAt: p.UpdatedAt,
	}, nil, nil
}
