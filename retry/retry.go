package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const DefaultMaxRetries = 3

// Config bounds the retries of one send.
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

type SenderFunc func(ctx context.Context) error

// Permanent marks an error that must not be retried, e.g. a rejected payload.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls send until it succeeds, fails permanently, runs out of retries or ctx is done.
// The last error is returned.
func Do(ctx context.Context, cfg Config, logger *zap.Logger, send SenderFunc) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // bounded by MaxRetries
	b.Reset()

	attempt := 0
	op := func() error {
		attempt++
		return send(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("send failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx), notify)
}
