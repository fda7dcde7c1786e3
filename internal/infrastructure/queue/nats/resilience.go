package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/infrastructure/resilience"
)

// ClassifyError is the nats-aware retry classifier for resilience.Executor.
func ClassifyError(err error) (retryable, countsAsFailure bool) {
	if err == nil {
		return false, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, false
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return true, true
	}
	return false, true
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	if retryable, _ := ClassifyError(err); retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
