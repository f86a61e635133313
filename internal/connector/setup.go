package connector

import (
	"time"

	"github.com/uniboxhq/inbox-sync/internal/config"
)

// NewDefaultRegistry builds the registry with every supported provider.
func NewDefaultRegistry(cfg config.ConnectorsConfig, timeout, calendarLookAhead time.Duration) *Registry {
	return NewRegistry(
		NewGithubConnector(cfg.Github.BaseURL, timeout, cfg.Github.RequestsPerSecond),
		NewLinearConnector(cfg.Linear.BaseURL, timeout, cfg.Linear.RequestsPerSecond),
		NewSlackConnector(),
		NewGoogleCalendarConnector(cfg.GoogleCalendar.BaseURL, calendarLookAhead, timeout, cfg.GoogleCalendar.RequestsPerSecond),
		NewGoogleDriveConnector(cfg.GoogleDrive.BaseURL, timeout, cfg.GoogleDrive.RequestsPerSecond),
		NewTodoistConnector(cfg.Todoist.BaseURL, timeout, cfg.Todoist.RequestsPerSecond),
	)
}
