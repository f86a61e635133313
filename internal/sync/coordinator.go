// Package sync runs one sync job end to end: fetch from the provider,
// persist raw items, derive notifications and tasks, and sweep entries
// the provider stopped reporting.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/uniboxhq/inbox-sync/internal/connector"
	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/normalize"
	"github.com/uniboxhq/inbox-sync/internal/repository"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
	"github.com/uniboxhq/inbox-sync/pkg/logger"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
	"github.com/uniboxhq/inbox-sync/pkg/security"
)

type Coordinator struct {
	txRunner      repository.TxRunner
	items         repository.ThirdPartyItemRepository
	notifications repository.NotificationRepository
	tasks         repository.TaskRepository
	connections   repository.ConnectionRepository
	registry      *connector.Registry
	pipeline      *normalize.Pipeline
	encryptor     security.Encryptor
	connCache     *gocache.Cache
	metrics       *metrics.Metrics
	logger        *logger.Logger
	fetchTimeout  time.Duration
}

type CoordinatorOptions struct {
	FetchTimeout       time.Duration
	ConnectionCacheTTL time.Duration
}

func NewCoordinator(
	txRunner repository.TxRunner,
	items repository.ThirdPartyItemRepository,
	notifications repository.NotificationRepository,
	tasks repository.TaskRepository,
	connections repository.ConnectionRepository,
	registry *connector.Registry,
	pipeline *normalize.Pipeline,
	encryptor security.Encryptor,
	m *metrics.Metrics,
	log *logger.Logger,
	opts CoordinatorOptions,
) *Coordinator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 60 * time.Second
	}
	if opts.ConnectionCacheTTL <= 0 {
		opts.ConnectionCacheTTL = time.Minute
	}
	return &Coordinator{
		txRunner:      txRunner,
		items:         items,
		notifications: notifications,
		tasks:         tasks,
		connections:   connections,
		registry:      registry,
		pipeline:      pipeline,
		encryptor:     encryptor,
		connCache:     gocache.New(opts.ConnectionCacheTTL, 5*time.Minute),
		metrics:       m,
		logger:        log,
		fetchTimeout:  opts.FetchTimeout,
	}
}

// Run executes one sync job. Webhook-triggered jobs process items the
// webhook handler already persisted; everything else fetches a fresh
// snapshot from the provider. Returns the error unwrapped so the
// orchestrator can classify it for retry.
func (c *Coordinator) Run(ctx context.Context, job *model.SyncJob) error {
	conn, err := c.connection(ctx, job.UserID, job.SourceKind)
	if err != nil {
		return err
	}
	if conn.Status == model.ConnectionStatusDisabled || conn.Status == model.ConnectionStatusFailing {
		c.logger.Info("skipping sync for connection",
			"source", string(conn.SourceKind), "status", string(conn.Status))
		return nil
	}

	if err := c.connections.MarkSyncStarted(ctx, conn.ID); err != nil {
		return apperrors.TransientStorage("failed to mark sync started", err)
	}

	if job.Trigger == model.JobTriggerWebhook {
		err = c.runPending(ctx, job)
	} else {
		err = c.runFetch(ctx, job, conn)
	}

	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrAuthExpired {
			// Expired credentials never recover on their own: flag the
			// connection and stop scheduling it until the user reconnects.
			if markErr := c.connections.MarkFailing(ctx, conn.ID, err.Error()); markErr != nil {
				c.logger.Error(markErr, "failed to mark connection failing", "connection_id", conn.ID.String())
			}
			c.connCache.Delete(connCacheKey(job.UserID, job.SourceKind))
		}
		c.recordOutcome(ctx, conn, err)
		return err
	}
	if err := c.connections.ClearSyncFailure(ctx, conn.ID); err != nil {
		c.logger.Error(err, "failed to clear sync failure", "connection_id", conn.ID.String())
	}
	return nil
}

// IngestWebhookItem persists one pushed item so a follow-up
// webhook-triggered job can normalize it. Kept tiny: the webhook
// handler must answer fast.
func (c *Coordinator) IngestWebhookItem(ctx context.Context, userID uuid.UUID, kind model.SourceKind, raw *connector.RawItem) error {
	return c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		item := &model.ThirdPartyItem{
			UserID:          userID,
			SourceKind:      kind,
			ExternalID:      raw.ExternalID,
			Payload:         raw.Payload,
			SourceUpdatedAt: raw.UpdatedAt,
		}
		_, err := c.items.Upsert(ctx, tx, item)
		return err
	})
}

func (c *Coordinator) runFetch(ctx context.Context, job *model.SyncJob, conn *model.IntegrationConnection) error {
	conn2, err := c.registry.Get(job.SourceKind)
	if err != nil {
		return apperrors.BadRequest("unsupported source", err)
	}
	creds, err := c.decryptCredentials(conn)
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	rawItems, err := conn2.FetchItems(fetchCtx, job.UserID, creds)
	c.metrics.FetchLatency.WithLabelValues(string(job.SourceKind)).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	c.metrics.ItemsFetched.WithLabelValues(string(job.SourceKind)).Add(float64(len(rawItems)))

	return c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		seen := make([]string, 0, len(rawItems))
		for i := range rawItems {
			externalID, err := c.ingestOne(ctx, tx, job, &rawItems[i])
			if err != nil {
				return err
			}
			if externalID != "" {
				seen = append(seen, externalID)
			}
		}

		// An empty snapshot is indistinguishable from a provider that
		// only pushes, so the stale sweep needs at least one live item.
		if len(seen) == 0 {
			return nil
		}
		staleIDs, err := c.items.MarkStaleDeleted(ctx, tx, job.UserID, job.SourceKind, seen)
		if err != nil {
			return err
		}
		if len(staleIDs) == 0 {
			return nil
		}
		if err := c.notifications.MarkDeletedForItems(ctx, tx, staleIDs); err != nil {
			return err
		}
		return c.tasks.MarkDeletedForItems(ctx, tx, staleIDs)
	})
}

// runPending normalizes items already persisted by the webhook handler.
func (c *Coordinator) runPending(ctx context.Context, job *model.SyncJob) error {
	return c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pending, err := c.items.FindUnprocessed(ctx, tx, job.UserID, job.SourceKind)
		if err != nil {
			return err
		}
		for _, item := range pending {
			if err := c.derive(ctx, tx, job, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// ingestOne upserts one raw item and derives its notification or task.
// Returns the external id when the item counts as seen by the source,
// empty when it was skipped as malformed.
func (c *Coordinator) ingestOne(ctx context.Context, tx *sqlx.Tx, job *model.SyncJob, raw *connector.RawItem) (string, error) {
	if raw.ExternalID == "" {
		c.skipMalformed(job, raw.Payload, fmt.Errorf("missing external id"))
		return "", nil
	}

	item := &model.ThirdPartyItem{
		UserID:          job.UserID,
		SourceKind:      job.SourceKind,
		ExternalID:      raw.ExternalID,
		Payload:         raw.Payload,
		SourceUpdatedAt: raw.UpdatedAt,
	}
	changed, err := c.items.Upsert(ctx, tx, item)
	if err != nil {
		return "", err
	}
	if !changed {
		c.metrics.ItemsUnchanged.WithLabelValues(string(job.SourceKind)).Inc()
		return raw.ExternalID, nil
	}
	c.metrics.ItemsUpserted.WithLabelValues(string(job.SourceKind)).Inc()

	if err := c.derive(ctx, tx, job, item); err != nil {
		return "", err
	}
	return raw.ExternalID, nil
}

// derive runs normalization and writes the resulting drafts. Malformed
// payloads are logged and skipped so a single bad item never poisons
// the batch.
func (c *Coordinator) derive(ctx context.Context, tx *sqlx.Tx, job *model.SyncJob, item *model.ThirdPartyItem) error {
	ndraft, tdraft, err := c.pipeline.Normalize(item)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrMalformedPayload {
			c.skipMalformed(job, item.Payload, err)
			return nil
		}
		return err
	}

	if ndraft != nil {
		if err := c.upsertNotification(ctx, tx, job, item, ndraft); err != nil {
			return err
		}
	}
	if tdraft != nil {
		if err := c.upsertTask(ctx, tx, job, item, tdraft); err != nil {
			return err
		}
	}
	return c.items.MarkProcessed(ctx, tx, item.ID)
}

func (c *Coordinator) upsertNotification(ctx context.Context, tx *sqlx.Tx, job *model.SyncJob, item *model.ThirdPartyItem, draft *model.NotificationDraft) error {
	_, _, err := c.notifications.UpsertFromThirdParty(ctx, tx, job.UserID, item.ID, draft)
	if apperrors.CodeOf(err) == apperrors.ErrConflict {
		// A concurrent writer got there first; the retry sees its row.
		_, _, err = c.notifications.UpsertFromThirdParty(ctx, tx, job.UserID, item.ID, draft)
	}
	return err
}

func (c *Coordinator) upsertTask(ctx context.Context, tx *sqlx.Tx, job *model.SyncJob, item *model.ThirdPartyItem, draft *model.TaskDraft) error {
	_, _, err := c.tasks.UpsertFromThirdParty(ctx, tx, job.UserID, item.ID, draft)
	if apperrors.CodeOf(err) == apperrors.ErrConflict {
		_, _, err = c.tasks.UpsertFromThirdParty(ctx, tx, job.UserID, item.ID, draft)
	}
	return err
}

func (c *Coordinator) skipMalformed(job *model.SyncJob, payload json.RawMessage, cause error) {
	c.metrics.ItemsSkipped.WithLabelValues(string(job.SourceKind)).Inc()
	c.logger.Warn("skipping malformed item",
		"source", string(job.SourceKind),
		"user_id", job.UserID.String(),
		"payload_bytes", len(payload),
		"cause", cause.Error())
}

func (c *Coordinator) recordOutcome(ctx context.Context, conn *model.IntegrationConnection, cause error) {
	if err := c.connections.RecordSyncFailure(ctx, conn.ID, cause.Error()); err != nil {
		c.logger.Error(err, "failed to record sync failure", "connection_id", conn.ID.String())
	}
}

func (c *Coordinator) connection(ctx context.Context, userID uuid.UUID, kind model.SourceKind) (*model.IntegrationConnection, error) {
	key := connCacheKey(userID, kind)
	if cached, ok := c.connCache.Get(key); ok {
		return cached.(*model.IntegrationConnection), nil
	}
	conn, err := c.connections.Get(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	c.connCache.Set(key, conn, gocache.DefaultExpiration)
	return conn, nil
}

func (c *Coordinator) decryptCredentials(conn *model.IntegrationConnection) (connector.Credentials, error) {
	var creds connector.Credentials
	plain, err := c.encryptor.Decrypt(conn.Credentials)
	if err != nil {
		return creds, apperrors.AuthExpired(string(conn.SourceKind),
			fmt.Errorf("failed to decrypt credentials: %w", err))
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, apperrors.AuthExpired(string(conn.SourceKind),
			fmt.Errorf("failed to decode credentials: %w", err))
	}
	return creds, nil
}

func connCacheKey(userID uuid.UUID, kind model.SourceKind) string {
	return fmt.Sprintf("%s:%s", userID, kind)
}
