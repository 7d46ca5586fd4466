package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// MySQLOutboxEventRepository handles outbox event persistence for MySQL
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQLOutboxEventRepository
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *MySQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, operation, status, attempt_count,
			  last_error, next_attempt_at, processed_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, event.AggregateType, event.AggregateID,
		event.Operation, event.Status, event.AttemptCount, event.LastError, event.NextAttemptAt,
		event.ProcessedAt)

	return err
}

// Claim locks up to limit pending events of aggregateType that are due at now, oldest
// first, skipping rows locked by other transactions. It must run inside TxManager.WithTx.
func (r *MySQLOutboxEventRepository) Claim(
	ctx context.Context,
	aggregateType string,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, operation, status, attempt_count,
			  last_error, next_attempt_at, processed_at, created_at, updated_at
			  FROM outbox_events
			  WHERE status = ? AND aggregate_type = ? AND next_attempt_at <= ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxEventStatusPending, aggregateType, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		var idBytes []byte

		err := rows.Scan(&idBytes, &event.AggregateType, &event.AggregateID, &event.Operation,
			&event.Status, &event.AttemptCount, &event.LastError, &event.NextAttemptAt,
			&event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, err
		}

		// Convert bytes back to UUID
		if err := event.ID.UnmarshalBinary(idBytes); err != nil {
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
func (r *MySQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = ?, attempt_count = ?, last_error = ?, next_attempt_at = ?,
			      processed_at = ?, updated_at = NOW()
			  WHERE id = ?`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, event.Status, event.AttemptCount, event.LastError,
		event.NextAttemptAt, event.ProcessedAt, idBytes)

	return err
}

// RequeueDead moves dead events of aggregateType back to pending with a fresh attempt budget
func (r *MySQLOutboxEventRepository) RequeueDead(
	ctx context.Context,
	aggregateType string,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = ?, attempt_count = 0, next_attempt_at = ?, updated_at = NOW()
			  WHERE status = ? AND aggregate_type = ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusPending, now,
		domain.OutboxEventStatusDead, aggregateType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteDoneBefore deletes done events processed before the given time
func (r *MySQLOutboxEventRepository) DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusDone, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus counts events per aggregate type and status
func (r *MySQLOutboxEventRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT aggregate_type, status, COUNT(*)
			  FROM outbox_events
			  GROUP BY aggregate_type, status
			  ORDER BY aggregate_type, status`

	return scanStatusCounts(querier.QueryContext(ctx, query))
}
