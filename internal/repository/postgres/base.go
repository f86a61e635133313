package postgres

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
	"github.com/uniboxhq/inbox-sync/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.TransientStorage("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		r.countOp("tx", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		r.countOp("tx", err)
		return apperrors.TransientStorage("failed to commit transaction", err)
	}
	r.countOp("tx", nil)
	return nil
}

// withSavepoint runs fn under a savepoint. Postgres aborts the whole
// transaction on any failed statement; rolling back to the savepoint
// keeps the enclosing transaction usable, which the per-item batch
// loop and the conflict retry depend on.
func (r *BaseRepository) withSavepoint(ctx context.Context, tx *sqlx.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return apperrors.TransientStorage("failed to create savepoint", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return apperrors.TransientStorage("failed to roll back savepoint", rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return apperrors.TransientStorage("failed to release savepoint", err)
	}
	return nil
}

func (r *BaseRepository) countOp(op string, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
}

const pqUniqueViolation = "23505"

// mapWriteError classifies driver errors: a unique violation means a
// concurrent upsert for the same key is already committing.
func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return apperrors.Conflict(op+" raced a concurrent upsert", err)
	}
	return apperrors.TransientStorage("failed to "+op, err)
}
