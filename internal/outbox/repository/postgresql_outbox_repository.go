// Package repository provides data persistence implementations for outbox entities.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

const postgresSelectColumns = `id, aggregate_type, aggregate_id, operation, status, attempt_count,
			  last_error, next_attempt_at, processed_at, created_at, updated_at`

// PostgreSQLOutboxEventRepository handles outbox event persistence for PostgreSQL
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQLOutboxEventRepository
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, operation, status, attempt_count,
			  last_error, next_attempt_at, processed_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, event.ID, event.AggregateType, event.AggregateID,
		event.Operation, event.Status, event.AttemptCount, event.LastError, event.NextAttemptAt,
		event.ProcessedAt)

	return err
}

// Claim locks up to limit pending events of aggregateType that are due at now, oldest
// first. Rows locked by another transaction are skipped. The locks last until the
// transaction carried by ctx ends, so Claim must run inside TxManager.WithTx.
func (r *PostgreSQLOutboxEventRepository) Claim(
	ctx context.Context,
	aggregateType string,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresSelectColumns + `
			  FROM outbox_events
			  WHERE status = $1 AND aggregate_type = $2 AND next_attempt_at <= $3
			  ORDER BY created_at ASC, id ASC
			  LIMIT $4
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxEventStatusPending, aggregateType, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent

		err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Operation,
			&event.Status, &event.AttemptCount, &event.LastError, &event.NextAttemptAt,
			&event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Update persists the processing state of an outbox event
func (r *PostgreSQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, attempt_count = $2, last_error = $3, next_attempt_at = $4,
			      processed_at = $5, updated_at = NOW()
			  WHERE id = $6`

	_, err := querier.ExecContext(ctx, query, event.Status, event.AttemptCount, event.LastError,
		event.NextAttemptAt, event.ProcessedAt, event.ID)

	return err
}

// RequeueDead moves dead events of aggregateType back to pending with a fresh attempt budget
func (r *PostgreSQLOutboxEventRepository) RequeueDead(
	ctx context.Context,
	aggregateType string,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, attempt_count = 0, next_attempt_at = $2, updated_at = NOW()
			  WHERE status = $3 AND aggregate_type = $4`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusPending, now,
		domain.OutboxEventStatusDead, aggregateType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteDoneBefore deletes done events processed before the given time
func (r *PostgreSQLOutboxEventRepository) DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = $1 AND processed_at < $2`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusDone, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus counts events per aggregate type and status
func (r *PostgreSQLOutboxEventRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT aggregate_type, status, COUNT(*)
			  FROM outbox_events
			  GROUP BY aggregate_type, status
			  ORDER BY aggregate_type, status`

	return scanStatusCounts(querier.QueryContext(ctx, query))
}

func scanStatusCounts(rows *sql.Rows, err error) ([]domain.StatusCount, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var counts []domain.StatusCount
	for rows.Next() {
		var count domain.StatusCount
		if err := rows.Scan(&count.AggregateType, &count.Status, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
