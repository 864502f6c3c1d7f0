package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/observability/metrics"
)

const (
	defaultRetries = 3
	defaultBackoff = 15 * time.Millisecond
)

type retryPolicy struct {
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// run repeats fn while it fails with ErrSequenceContention, up to attempts
// extra tries. Each try must be a complete unit of work.
func (p retryPolicy) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, inventory.ErrSequenceContention) || attempt >= p.attempts {
			return err
		}
		metrics.IncSequenceRetry(operation)
		p.logger.Debug("retrying after contention",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt+1)):
		}
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case isRejection(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		inventory.ErrUnknownUnit,
		inventory.ErrUnitInactive,
		inventory.ErrVolumeOutOfRange,
		inventory.ErrInsufficientBalance,
		inventory.ErrLotNotFound,
		inventory.ErrInvalidKind,
		inventory.ErrKindMismatch,
		inventory.ErrInvalidTransfer,
		inventory.ErrInvalidFilter,
		inventory.ErrInvalidUnit,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
