package inference

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dermascan/dermascan/internal/model"
)

// Backoff before each retry of a transient model failure.
// Retry 1: 500ms, retry 2: 2s, retry 3 and later: 5s.
var retryDelays = []time.Duration{
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
}

// JitterFactor is the ±fraction of jitter applied to delays.
const JitterFactor = 0.2

// retryableError marks an ErrUpstream failure worth another attempt:
// rate limiting, overload and dropped connections.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether err is a transient model failure.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// NextRetryDelay returns the jittered delay before retry number attempt (0-indexed).
func NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}

// retrying retries transient failures of the wrapped classifier.
type retrying struct {
	next       Classifier
	maxRetries int
	logger     *slog.Logger
	delay      func(attempt int) time.Duration
}

// WithRetry wraps c so that transient failures are retried up to maxRetries
// times. Retries stop early when the context would expire during the backoff.
func WithRetry(c Classifier, maxRetries int, logger *slog.Logger) Classifier {
	if maxRetries <= 0 {
		return c
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: c, maxRetries: maxRetries, logger: logger, delay: NextRetryDelay}
}

func (r *retrying) Model() string { return r.next.Model() }

func (r *retrying) Analyze(ctx context.Context, img Image) (*model.Diagnosis, error) {
	for attempt := 0; ; attempt++ {
		d, err := r.next.Analyze(ctx, img)
		if err == nil || !IsRetryable(err) || attempt >= r.maxRetries {
			return d, err
		}

		wait := r.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return nil, err
		}

		r.logger.Warn("retrying model call",
			"model", r.next.Model(),
			"attempt", attempt+1,
			"delay_ms", wait.Milliseconds(),
			"error", err,
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, transportError(ctx, ctx.Err())
		case <-t.C:
		}
	}
}
