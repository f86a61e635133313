package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniboxhq/inbox-sync/internal/connector"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/normalize"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	"github.com/uniboxhq/inbox-sync/pkg/security"
)

var testMetrics = metrics.New("coordinator_test")

type fakeTxRunner struct {
	calls int
}

func (r *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.calls++
	return fn(nil)
}

type fakeItemRepo struct {
	mu        sync.Mutex
	items     map[string]*model.ThirdPartyItem
	unchanged map[string]bool
	processed []uuid.UUID
	staleIDs  []uuid.UUID
	sweeps    int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{
		items:     make(map[string]*model.ThirdPartyItem),
		unchanged: make(map[string]bool),
	}
}

func (r *fakeItemRepo) Upsert(ctx context.Context, tx *sqlx.Tx, item *model.ThirdPartyItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = model.ItemStatusNew
	}
	r.items[item.ExternalID] = item
	return !r.unchanged[item.ExternalID], nil
}

func (r *fakeItemRepo) FindUnprocessed(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind) ([]*model.ThirdPartyItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ThirdPartyItem
	for _, item := range r.items {
		if item.Status == model.ItemStatusNew {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) MarkProcessed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, id)
	for _, item := range r.items {
		if item.ID == id {
			item.Status = model.ItemStatusProcessed
		}
	}
	return nil
}

func (r *fakeItemRepo) MarkDeleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	return nil
}

func (r *fakeItemRepo) MarkStaleDeleted(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind, seen []string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	return r.staleIDs, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	upserts       int
	deletedItems  []uuid.UUID
	conflictsLeft int
}

func (r *fakeNotificationRepo) UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.NotificationDraft) (*model.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return nil, false, apperrors.Conflict("concurrent insert", nil)
	}
	r.upserts++
	return &model.Notification{ID: uuid.New(), UserID: userID, Title: draft.Title, Status: draft.Status}, true, nil
}

func (r *fakeNotificationRepo) Patch(ctx context.Context, id uuid.UUID, patch *model.NotificationPatch) (*model.Notification, error) {
	return nil, apperrors.NotFound("notification", nil)
}

func (r *fakeNotificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return nil, apperrors.NotFound("notification", nil)
}

func (r *fakeNotificationRepo) List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter) ([]*model.Notification, error) {
	return nil, nil
}

func (r *fakeNotificationRepo) MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedItems = append(r.deletedItems, itemIDs...)
	return nil
}

type fakeTaskRepo struct {
	mu           sync.Mutex
	upserts      int
	deletedItems []uuid.UUID
}

func (r *fakeTaskRepo) UpsertFromThirdParty(ctx context.Context, tx *sqlx.Tx, userID, itemID uuid.UUID, draft *model.TaskDraft) (*model.Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	return &model.Task{ID: uuid.New(), UserID: userID, Title: draft.Title}, true, nil
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *model.Task) error { return nil }

func (r *fakeTaskRepo) Patch(ctx context.Context, id uuid.UUID, patch *model.TaskPatch) (*model.Task, error) {
	return nil, apperrors.NotFound("task", nil)
}

func (r *fakeTaskRepo) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return nil, apperrors.NotFound("task", nil)
}

func (r *fakeTaskRepo) List(ctx context.Context, userID uuid.UUID, filter repository.TaskFilter) ([]*model.Task, error) {
	return nil, nil
}

func (r *fakeTaskRepo) MarkDeletedForItems(ctx context.Context, tx *sqlx.Tx, itemIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedItems = append(r.deletedItems, itemIDs...)
	return nil
}

type fakeConnRepo struct {
	mu           sync.Mutex
	conn         *model.IntegrationConnection
	gets         int
	syncStarted  int
	failures     []string
	cleared      int
	markedFailed []string
}

func (r *fakeConnRepo) Get(ctx context.Context, userID uuid.UUID, kind model.SourceKind) (*model.IntegrationConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.conn == nil {
		return nil, apperrors.NotFound("connection", nil)
	}
	return r.conn, nil
}

func (r *fakeConnRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.IntegrationConnection, error) {
	return nil, nil
}

func (r *fakeConnRepo) ListSyncable(ctx context.Context) ([]*model.IntegrationConnection, error) {
	return nil, nil
}

func (r *fakeConnRepo) MarkSyncStarted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncStarted++
	return nil
}

func (r *fakeConnRepo) RecordSyncFailure(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
	return nil
}

func (r *fakeConnRepo) ClearSyncFailure(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return nil
}

func (r *fakeConnRepo) MarkFailing(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markedFailed = append(r.markedFailed, reason)
	return nil
}

func (r *fakeConnRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus) error {
	return nil
}

type fakeConnector struct {
	kind  model.SourceKind
	items []connector.RawItem
	err   error
}

func (c *fakeConnector) Kind() model.SourceKind { return c.kind }

func (c *fakeConnector) FetchItems(ctx context.Context, userID uuid.UUID, creds connector.Credentials) ([]connector.RawItem, error) {
	return c.items, c.err
}

func (c *fakeConnector) DecodeWebhook(payload []byte) (*connector.RawItem, error) {
	return nil, errors.New("not supported")
}

type fixture struct {
	coordinator   *Coordinator
	txRunner      *fakeTxRunner
	items         *fakeItemRepo
	notifications *fakeNotificationRepo
	tasks         *fakeTaskRepo
	connections   *fakeConnRepo
	connector     *fakeConnector
	encryptor     security.Encryptor
	job           *model.SyncJob
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key := make([]byte, 32)
	encryptor, err := security.NewAESEncryptor(key)
	require.NoError(t, err)

	creds, err := json.Marshal(connector.Credentials{Token: "tok"})
	require.NoError(t, err)
	sealed, err := encryptor.Encrypt(creds)
	require.NoError(t, err)

	userID := uuid.New()
	conn := &model.IntegrationConnection{
		ID:          uuid.New(),
		UserID:      userID,
		SourceKind:  model.SourceGithub,
		Status:      model.ConnectionStatusValidated,
		Credentials: sealed,
	}

	f := &fixture{
		txRunner:      &fakeTxRunner{},
		items:         newFakeItemRepo(),
		notifications: &fakeNotificationRepo{},
		tasks:         &fakeTaskRepo{},
		connections:   &fakeConnRepo{conn: conn},
		connector:     &fakeConnector{kind: model.SourceGithub},
		encryptor:     encryptor,
		job: &model.SyncJob{
			ID:         uuid.New(),
			UserID:     userID,
			SourceKind: model.SourceGithub,
			Trigger:    model.JobTriggerPeriodic,
		},
	}
	f.coordinator = NewCoordinator(
		f.txRunner,
		f.items,
		f.notifications,
		f.tasks,
		f.connections,
		connector.NewRegistry(f.connector),
		normalize.NewPipeline(0),
		f.encryptor,
		testMetrics,
		&logger.Logger{ZL: zerolog.Nop()},
		CoordinatorOptions{FetchTimeout: time.Second},
	)
	return f
}

func githubRaw(id, title string, unread bool) connector.RawItem {
	payload := fmt.Sprintf(`{"id": %q, "unread": %t, "updated_at": "2026-01-02T10:00:00Z", "subject": {"title": %q}}`, id, unread, title)
	return connector.RawItem{
		ExternalID: id,
		Payload:    json.RawMessage(payload),
		UpdatedAt:  time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestRunFetchDerivesNotifications(t *testing.T) {
	f := newFixture(t)
	f.connector.items = []connector.RawItem{
		githubRaw("n1", "First", true),
		githubRaw("n2", "Second", false),
	}

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Equal(t, 2, f.notifications.upserts)
	assert.Len(t, f.items.processed, 2)
	assert.Equal(t, 1, f.connections.syncStarted)
	assert.Equal(t, 1, f.connections.cleared)
	assert.Equal(t, 1, f.txRunner.calls)
}

func TestRunFetchMalformedItemDoesNotPoisonBatch(t *testing.T) {
	f := newFixture(t)
	items := []connector.RawItem{githubRaw("n1", "Good", true)}
	// Envelope failed to decode: carried with an empty external id.
	items = append(items, connector.RawItem{Payload: json.RawMessage(`{"broken`)})
	// Decodes but violates the rule: no subject title.
	items = append(items, connector.RawItem{
		ExternalID: "n3",
		Payload:    json.RawMessage(`{"id": "n3", "subject": {}}`),
	})
	for i := 4; i <= 10; i++ {
		items = append(items, githubRaw(fmt.Sprintf("n%d", i), fmt.Sprintf("Item %d", i), true))
	}
	f.connector.items = items

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	// 8 well-formed items derived; the rule-violating one is stored but
	// yields no notification.
	assert.Equal(t, 8, f.notifications.upserts)
	assert.Len(t, f.items.items, 9)
}

func TestRunFetchUnchangedItemShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.connector.items = []connector.RawItem{githubRaw("n1", "Same", true)}
	f.items.unchanged["n1"] = true

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Zero(t, f.notifications.upserts)
	assert.Empty(t, f.items.processed)
}

func TestRunFetchSweepsStaleItems(t *testing.T) {
	f := newFixture(t)
	f.connector.items = []connector.RawItem{githubRaw("n1", "Live", true)}
	stale := uuid.New()
	f.items.staleIDs = []uuid.UUID{stale}

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Equal(t, []uuid.UUID{stale}, f.notifications.deletedItems)
	assert.Equal(t, []uuid.UUID{stale}, f.tasks.deletedItems)
}

func TestRunFetchEmptySnapshotSkipsSweep(t *testing.T) {
	f := newFixture(t)
	f.connector.items = nil
	f.items.staleIDs = []uuid.UUID{uuid.New()}

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Zero(t, f.items.sweeps)
	assert.Empty(t, f.notifications.deletedItems)
}

func TestRunFetchOnlyMalformedSkipsSweep(t *testing.T) {
	f := newFixture(t)
	f.connector.items = []connector.RawItem{{Payload: json.RawMessage(`{"broken`)}}
	f.items.staleIDs = []uuid.UUID{uuid.New()}

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Zero(t, f.items.sweeps)
}

func TestRunUpsertConflictRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.connector.items = []connector.RawItem{githubRaw("n1", "Raced", true)}
	f.notifications.conflictsLeft = 1

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Equal(t, 1, f.notifications.upserts)
}

func TestRunFetchErrorRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.connector.err = apperrors.TransientNetwork("provider down", errors.New("connection refused"))

	err := f.coordinator.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, apperrors.Retryable(err))
	require.Len(t, f.connections.failures, 1)
	assert.Zero(t, f.connections.cleared)
}

func TestRunAuthExpiredMarksConnectionFailing(t *testing.T) {
	f := newFixture(t)
	f.connector.err = apperrors.AuthExpired("github", errors.New("401"))

	err := f.coordinator.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.False(t, apperrors.Retryable(err))
	require.Len(t, f.connections.markedFailed, 1)

	// The cached connection was dropped, so the next run sees the
	// repo's current state.
	before := f.connections.gets
	f.connections.conn.Status = model.ConnectionStatusFailing
	require.NoError(t, f.coordinator.Run(context.Background(), f.job))
	assert.Greater(t, f.connections.gets, before)
	assert.Len(t, f.connections.markedFailed, 1)
}

func TestRunSkipsDisabledConnection(t *testing.T) {
	f := newFixture(t)
	f.connections.conn.Status = model.ConnectionStatusDisabled

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Zero(t, f.connections.syncStarted)
	assert.Zero(t, f.txRunner.calls)
}

func TestRunWebhookTriggerProcessesPendingOnly(t *testing.T) {
	f := newFixture(t)
	f.job.Trigger = model.JobTriggerWebhook
	f.connector.err = errors.New("fetch must not be called for webhook jobs")

	raw := githubRaw("n1", "Pushed", true)
	require.NoError(t, f.coordinator.IngestWebhookItem(context.Background(), f.job.UserID, model.SourceGithub, &raw))

	require.NoError(t, f.coordinator.Run(context.Background(), f.job))

	assert.Equal(t, 1, f.notifications.upserts)
	assert.Len(t, f.items.processed, 1)
}

func TestRunBadCredentialsAreAuthExpired(t *testing.T) {
	f := newFixture(t)
	f.connections.conn.Credentials = []byte("garbage")

	err := f.coordinator.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAuthExpired, apperrors.CodeOf(err))
	assert.Len(t, f.connections.markedFailed, 1)
}
