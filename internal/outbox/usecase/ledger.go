package usecase

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/metrics"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// maxLastErrorLen bounds the failure cause stored on the event.
const maxLastErrorLen = 2048

// Ledger records the outcome of processing a claimed event. It writes on the claim
// transaction, so the acknowledgement commits together with the release of the claim.
type Ledger struct {
	repo        OutboxEventRepository
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	clock       clockwork.Clock
}

// NewLedger creates a Ledger.
func NewLedger(repo OutboxEventRepository, config Config, clock clockwork.Clock) *Ledger {
	return &Ledger{
		repo:        repo,
		maxAttempts: config.MaxAttempts,
		backoffBase: config.BackoffBase,
		backoffMax:  config.BackoffMax,
		clock:       clock,
	}
}

// Backoff returns the delay before attempt+1 may start: base * 2^(attempt-1), capped.
func (l *Ledger) Backoff(attempt int) time.Duration {
	if attempt < 1 || l.backoffBase <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 62 {
		return l.backoffMax
	}
	delay := l.backoffBase << shift
	if delay <= 0 || delay/l.backoffBase != 1<<shift || (l.backoffMax > 0 && delay > l.backoffMax) {
		return l.backoffMax
	}
	return delay
}

// Ack settles the event according to the processing outcome and returns the recorded
// outcome name. A nil outcome marks it done. Permanent failures mark it dead at once;
// any other failure consumes an attempt and either schedules a retry or, once the
// attempts are exhausted, marks it dead.
func (l *Ledger) Ack(ctx context.Context, event *domain.OutboxEvent, outcome error) (string, error) {
	now := l.clock.Now().UTC()

	var result string
	switch {
	case outcome == nil:
		event.Status = domain.OutboxEventStatusDone
		event.ProcessedAt = &now
		event.LastError = nil
		result = metrics.OutcomeDone

	case apperrors.IsPermanent(outcome):
		event.AttemptCount++
		event.Status = domain.OutboxEventStatusDead
		event.LastError = lastError(outcome)
		result = metrics.OutcomeDead

	default:
		event.AttemptCount++
		event.LastError = lastError(outcome)
		if event.AttemptCount >= l.maxAttempts {
			event.Status = domain.OutboxEventStatusDead
			result = metrics.OutcomeDead
		} else {
			event.NextAttemptAt = now.Add(l.Backoff(event.AttemptCount))
			result = metrics.OutcomeRetry
		}
	}

	if err := l.repo.Update(ctx, event); err != nil {
		return result, err
	}
	return result, nil
}

func lastError(err error) *string {
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
