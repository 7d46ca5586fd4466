package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"math"
	"time"

	"github.com/allisson/recipegraph/internal/database"
	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// mysqlLockNameMaxLen is the longest name GET_LOCK accepts.
const mysqlLockNameMaxLen = 64

// MySQLAggregateLocker serializes work on one aggregate with MySQL named locks.
type MySQLAggregateLocker struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMySQLAggregateLocker creates a locker that waits at most timeout for a lock.
// GET_LOCK works with whole seconds, so the timeout is rounded up.
func NewMySQLAggregateLocker(db *sql.DB, timeout time.Duration) *MySQLAggregateLocker {
	return &MySQLAggregateLocker{
		db:      db,
		timeout: timeout,
	}
}

func mysqlLockName(aggregateType, aggregateID string) string {
	name := "outbox:" + aggregateLockKey(aggregateType, aggregateID)
	if len(name) <= mysqlLockNameMaxLen {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	return "outbox:" + hex.EncodeToString(sum[:])[:mysqlLockNameMaxLen-len("outbox:")]
}

// Lock takes the named lock of the aggregate on the connection of the transaction
// carried by ctx. Named locks belong to the session, not the transaction, so the caller
// must call the returned unlock function before the transaction ends.
func (l *MySQLAggregateLocker) Lock(ctx context.Context, aggregateType, aggregateID string) (func(ctx context.Context) error, error) {
	querier := database.GetTx(ctx, l.db)
	name := mysqlLockName(aggregateType, aggregateID)
	seconds := int64(math.Ceil(l.timeout.Seconds()))

	var acquired sql.NullInt64
	if err := querier.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, seconds).Scan(&acquired); err != nil {
		return nil, database.ClassifyError(err)
	}
	if !acquired.Valid {
		return nil, apperrors.Join(apperrors.ErrTransient, apperrors.New("GET_LOCK returned NULL"))
	}
	if acquired.Int64 != 1 {
		return nil, domain.ErrAggregateLocked
	}

	return func(ctx context.Context) error {
		_, err := querier.ExecContext(ctx, `DO RELEASE_LOCK(?)`, name)
		return err
	}, nil
}
