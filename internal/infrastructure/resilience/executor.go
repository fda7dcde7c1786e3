package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// ErrorClassifier decides whether a failed attempt is worth retrying and
// whether it should count against the circuit breaker. Permanent errors
// (bad input, auth denied) are neither retried nor counted.
type ErrorClassifier func(err error) (retryable bool, countsAsFailure bool)

func defaultClassifier(err error) (bool, bool) {
	if err == nil {
		return false, false
	}
	if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrAuthorizationDenied) {
		return false, false
	}
	return true, true
}

// Executor wraps an outbound call with bounded retries and an optional
// circuit breaker shared across all calls through the same instance.
type Executor struct {
	name     string
	cfg      Config
	classify ErrorClassifier
	breaker  *gobreaker.CircuitBreaker[any]
	logger   *slog.Logger
}

func NewExecutor(name string, cfg Config, classify ErrorClassifier, logger *slog.Logger) *Executor {
	cfg = cfg.normalize()
	if classify == nil {
		classify = defaultClassifier
	}
	if logger == nil {
		logger = slog.Default()
	}

	ex := &Executor{
		name:     name,
		cfg:      cfg,
		classify: classify,
		logger:   logger,
	}

	if cfg.BreakerEnabled {
		ex.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.BreakerHalfOpenMaxCalls,
			Timeout:     cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.BreakerMinRequests {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.BreakerFailureRatio
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var silent *silentFailure
				return errors.As(err, &silent)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}

	return ex
}

// Execute runs fn with retry and breaker policy. The context bounds the
// whole sequence of attempts, including backoff sleeps.
func (e *Executor) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.WrapError(domain.ErrTemporary, op, err)
		}

		lastErr = e.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
			return domain.WrapError(domain.ErrTemporary, op, lastErr)
		}

		retryable, _ := e.classify(lastErr)
		if !retryable || attempt == e.cfg.RetryMaxAttempts {
			break
		}

		e.logger.Debug("retrying after failure",
			"executor", e.name,
			"op", op,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return domain.WrapError(domain.ErrTemporary, op, ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * e.cfg.RetryMultiplier)
		if backoff > e.cfg.RetryMaxBackoff {
			backoff = e.cfg.RetryMaxBackoff
		}
	}

	return lastErr
}

func (e *Executor) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.breaker == nil {
		return fn(ctx)
	}

	_, err := e.breaker.Execute(func() (any, error) {
		callErr := fn(ctx)
		if callErr == nil {
			return nil, nil
		}
		if _, counts := e.classify(callErr); !counts {
			// Report success to the breaker but surface the error.
			return nil, &silentFailure{err: callErr}
		}
		return nil, callErr
	})
	if err == nil {
		return nil
	}

	var silent *silentFailure
	if errors.As(err, &silent) {
		return silent.err
	}
	return err
}

// IsCircuitOpen reports whether err came from a breaker rejecting the call
// rather than from the call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// silentFailure carries an error past the breaker without tripping it.
type silentFailure struct {
	err error
}

func (s *silentFailure) Error() string { return s.err.Error() }
func (s *silentFailure) Unwrap() error { return s.err }
