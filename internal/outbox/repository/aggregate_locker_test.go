package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

const tryLockQuery = "SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))"

func TestPostgreSQLAggregateLocker_Acquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	locker := NewPostgreSQLAggregateLocker(db, time.Second, clockwork.NewFakeClock())

	mock.ExpectQuery(regexp.QuoteMeta(tryLockQuery)).
		WithArgs("recipe:42").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))

	unlock, err := locker.Lock(context.Background(), domain.AggregateTypeRecipe, "42")
	require.NoError(t, err)
	assert.NoError(t, unlock(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLAggregateLocker_Timeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	locker := NewPostgreSQLAggregateLocker(db, 0, clockwork.NewFakeClock())

	mock.ExpectQuery(regexp.QuoteMeta(tryLockQuery)).
		WithArgs("recipe:42").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(false))

	_, err = locker.Lock(context.Background(), domain.AggregateTypeRecipe, "42")
	assert.ErrorIs(t, err, domain.ErrAggregateLocked)
	assert.ErrorIs(t, err, apperrors.ErrLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLAggregateLocker_PollsUntilAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	clock := clockwork.NewFakeClock()
	locker := NewPostgreSQLAggregateLocker(db, time.Second, clock)

	mock.ExpectQuery(regexp.QuoteMeta(tryLockQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(tryLockQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))

	done := make(chan error, 1)
	go func() {
		_, err := locker.Lock(context.Background(), domain.AggregateTypeRecipe, "42")
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(lockPollInterval)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("lock was not acquired")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAggregateLocker(t *testing.T) {
	t.Run("acquired and released", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		locker := NewMySQLAggregateLocker(db, 1500*time.Millisecond)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
			WithArgs("outbox:recipe:42", int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(int64(1)))
		mock.ExpectExec(regexp.QuoteMeta("DO RELEASE_LOCK(?)")).
			WithArgs("outbox:recipe:42").
			WillReturnResult(sqlmock.NewResult(0, 0))

		unlock, err := locker.Lock(context.Background(), domain.AggregateTypeRecipe, "42")
		require.NoError(t, err)
		require.NoError(t, unlock(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(int64(0)))

		_, err = NewMySQLAggregateLocker(db, time.Second).Lock(context.Background(), "recipe", "42")
		assert.ErrorIs(t, err, domain.ErrAggregateLocked)
	})

	t.Run("null result is transient", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(nil))

		_, err = NewMySQLAggregateLocker(db, time.Second).Lock(context.Background(), "recipe", "42")
		assert.ErrorIs(t, err, apperrors.ErrTransient)
	})
}

func TestMySQLLockName(t *testing.T) {
	assert.Equal(t, "outbox:recipe:42", mysqlLockName("recipe", "42"))

	long := mysqlLockName("recipe", strings.Repeat("x", 100))
	assert.Len(t, long, mysqlLockNameMaxLen)
	assert.True(t, strings.HasPrefix(long, "outbox:"))
	assert.Equal(t, long, mysqlLockName("recipe", strings.Repeat("x", 100)))
	assert.NotEqual(t, long, mysqlLockName("recipe", strings.Repeat("y", 100)))
}
