package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// lockPollInterval is the pause between two failed try-lock attempts.
const lockPollInterval = 50 * time.Millisecond

func noUnlock(context.Context) error { return nil }

func aggregateLockKey(aggregateType, aggregateID string) string {
	return aggregateType + ":" + aggregateID
}

// PostgreSQLAggregateLocker serializes work on one aggregate with transaction scoped
// advisory locks.
type PostgreSQLAggregateLocker struct {
	db      *sql.DB
	timeout time.Duration
	clock   clockwork.Clock
}

// NewPostgreSQLAggregateLocker creates a locker that waits at most timeout for a lock.
func NewPostgreSQLAggregateLocker(db *sql.DB, timeout time.Duration, clock clockwork.Clock) *PostgreSQLAggregateLocker {
	return &PostgreSQLAggregateLocker{
		db:      db,
		timeout: timeout,
		clock:   clock,
	}
}

// Lock takes the advisory lock of the aggregate on the transaction carried by ctx. The
// lock is released when that transaction ends, so the returned unlock function does nothing.
//
// pg_try_advisory_xact_lock is polled instead of blocking on pg_advisory_xact_lock: a
// lock_timeout error would abort the whole claim transaction.
func (l *PostgreSQLAggregateLocker) Lock(ctx context.Context, aggregateType, aggregateID string) (func(ctx context.Context) error, error) {
	querier := database.GetTx(ctx, l.db)
	key := aggregateLockKey(aggregateType, aggregateID)
	deadline := l.clock.Now().Add(l.timeout)

	for {
		var acquired bool
		err := querier.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`, key).
			Scan(&acquired)
		if err != nil {
			return nil, database.ClassifyError(err)
		}
		if acquired {
			return noUnlock, nil
		}

		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			return nil, domain.ErrAggregateLocked
		}

		select {
		case <-ctx.Done():
			return nil, database.ClassifyError(ctx.Err())
		case <-l.clock.After(min(remaining, lockPollInterval)):
		}
	}
}
