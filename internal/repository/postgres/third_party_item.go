package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/internal/repository"
)

type thirdPartyItemRepository struct {
	BaseRepository
}

func NewThirdPartyItemRepository(base BaseRepository) repository.ThirdPartyItemRepository {
	return &thirdPartyItemRepository{base}
}

func (r *thirdPartyItemRepository) Upsert(ctx context.Context, tx *sqlx.Tx, item *model.ThirdPartyItem) (bool, error) {
	item.ContentHash = model.HashPayload(item.Payload)

	query := `
		SELECT id, content_hash, status
		FROM third_party_items
		WHERE user_id = $1 AND source_kind = $2 AND external_id = $3
		FOR UPDATE
	`
	var existing struct {
		ID          uuid.UUID        `db:"id"`
		ContentHash string           `db:"content_hash"`
		Status      model.ItemStatus `db:"status"`
	}
	err := tx.GetContext(ctx, &existing, query, item.UserID, item.SourceKind, item.ExternalID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("failed to look up third-party item: %w", err)
		}
		return true, r.insert(ctx, tx, item)
	}

	item.ID = existing.ID
	if existing.ContentHash == item.ContentHash && existing.Status != model.ItemStatusDeleted {
		// Re-sync of an unchanged item: zero writes downstream.
		return false, nil
	}

	update := `
		UPDATE third_party_items
		SET payload = $1, content_hash = $2, source_updated_at = $3,
			status = $4, updated_at = $5
		WHERE id = $6
	`
	item.Status = model.ItemStatusNew
	item.UpdatedAt = time.Now()
	if _, err := tx.ExecContext(ctx, update,
		item.Payload,
		item.ContentHash,
		item.SourceUpdatedAt,
		item.Status,
		item.UpdatedAt,
		item.ID,
	); err != nil {
		return false, mapWriteError("update third-party item", err)
	}
	return true, nil
}

func (r *thirdPartyItemRepository) insert(ctx context.Context, tx *sqlx.Tx, item *model.ThirdPartyItem) error {
	query := `
		INSERT INTO third_party_items (
			id, user_id, source_kind, external_id, payload,
			content_hash, status, source_updated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	item.ID = uuid.New()
	item.Status = model.ItemStatusNew
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt

	if _, err := tx.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.SourceKind,
		item.ExternalID,
		item.Payload,
		item.ContentHash,
		item.Status,
		item.SourceUpdatedAt,
		item.CreatedAt,
		item.UpdatedAt,
	); err != nil {
		return mapWriteError("insert third-party item", err)
	}
	return nil
}

func (r *thirdPartyItemRepository) FindUnprocessed(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind) ([]*model.ThirdPartyItem, error) {
	query := `
		SELECT id, user_id, source_kind, external_id, payload,
			   content_hash, status, source_updated_at, created_at, updated_at
		FROM third_party_items
		WHERE user_id = $1 AND source_kind = $2 AND status = $3
		ORDER BY source_updated_at ASC
	`
	var items []*model.ThirdPartyItem
	err := tx.SelectContext(ctx, &items, query, userID, kind, model.ItemStatusNew)
	if err != nil {
		return nil, fmt.Errorf("failed to find unprocessed items: %w", err)
	}
	return items, nil
}

func (r *thirdPartyItemRepository) MarkProcessed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	return r.setStatus(ctx, tx, id, model.ItemStatusProcessed)
}

func (r *thirdPartyItemRepository) MarkDeleted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	return r.setStatus(ctx, tx, id, model.ItemStatusDeleted)
}

func (r *thirdPartyItemRepository) setStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.ItemStatus) error {
	query := `UPDATE third_party_items SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := tx.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("third-party item %s not found", id)
	}
	return nil
}

func (r *thirdPartyItemRepository) MarkStaleDeleted(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, kind model.SourceKind, seenExternalIDs []string) ([]uuid.UUID, error) {
	query := `
		UPDATE third_party_items
		SET status = $1, updated_at = $2
		WHERE user_id = $3 AND source_kind = $4 AND status <> $1
	`
	args := []interface{}{model.ItemStatusDeleted, time.Now(), userID, kind}
	if len(seenExternalIDs) > 0 {
		query += ` AND external_id <> ALL($5)`
		args = append(args, pq.Array(seenExternalIDs))
	}
	query += ` RETURNING id`

	var ids []uuid.UUID
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to mark stale items deleted: %w", err)
	}
	return ids, nil
}
