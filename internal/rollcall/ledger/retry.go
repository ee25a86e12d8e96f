package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/BrandonDHaskell/rollcall/internal/metrics"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

// ErrTransientStore is returned when a retryable failure outlived every
// attempt. Callers should ask the client to try again later.
var ErrTransientStore = errors.New("ledger: store temporarily unavailable")

type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     5,
	}
}

// Retrier runs ledger calls with exponential backoff. Only transient
// failures are retried; everything else is returned on the first attempt.
type Retrier struct {
	cfg    RetryConfig
	logger *slog.Logger
}

func NewRetrier(cfg RetryConfig, logger *slog.Logger) *Retrier {
	def := DefaultRetryConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Retrier{cfg: cfg, logger: logger}
}

func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		metrics.LedgerCalls.WithLabelValues(op).Inc()
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.LedgerRetries.WithLabelValues(op).Inc()
			r.logger.Warn("ledger call failed, retrying",
				"op", op, "attempt", attempt, "next_in", next, "error", err)
		}),
	)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransientStore, op, attempt, err)
	}
	return err
}

func (r *Retrier) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// IsTransient reports whether err is a rate-limit, availability or
// connection-level failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, store.ErrRateLimited) || errors.Is(err, store.ErrUnavailable) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// sqlite reports lock contention only through the message text.
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
