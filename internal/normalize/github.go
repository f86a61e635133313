package normalize

import (
	"fmt"
	"time"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type githubPayload struct {
	ID        string    `json:"id"`
	Unread    bool      `json:"unread"`
	UpdatedAt time.Time `json:"updated_at"`
	Subject   struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"subject"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func normalizeGithub(item *model.ThirdPartyItem) (*model.NotificationDraft, *model.TaskDraft, error) {
	var p githubPayload
	if err := decode(item, &p); err != nil {
		return nil, nil, err
	}
	if p.Subject.Title == "" {
		return nil, nil, apperrors.MalformedPayload(string(item.SourceKind),
			fmt.Errorf("notification %s has no subject title", p.ID))
	}

	status := model.NotificationStatusRead
	if p.Unread {
		status = model.NotificationStatusUnread
	}
	title := p.Subject.Title
	if p.Repository.FullName != "" {
		title = fmt.Sprintf("[%s] %s", p.Repository.FullName, p.Subject.Title)
	}
	return &model.NotificationDraft{
		Title:           title,
		Status:          status,
		SourceUpdatedAt: p.UpdatedAt,
	}, nil, nil
}
