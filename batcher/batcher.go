package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bridge/types"
)

const (
	DefaultMaxSamples  = 50 // 50 samples at 50Hz = 1 second
	DefaultMaxInterval = time.Second
)

var ErrMissingTimestamp = errors.New("sample has no timestamp")

// Config controls hybrid batching behavior
type Config struct {
	MaxSamples  int
	MaxInterval time.Duration
}

func DefaultConfig() Config {
	return Config{MaxSamples: DefaultMaxSamples, MaxInterval: DefaultMaxInterval}
}

// Handler receives every flushed batch on the flushing goroutine.
// It must not call back into the Buffer.
type Handler func(Batch)

type Option func(*Buffer)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Buffer) { b.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Buffer) { b.logger = logger }
}

// Buffer buffers samples and flushes on count OR time
type Buffer struct {
	cfg     Config
	handler Handler
	clock   clockwork.Clock
	logger  *zap.Logger

	mu        sync.Mutex
	pending   []types.Sample
	startTime time.Time
	lastFlush time.Time

	// emitMu keeps handler calls in flush order
	emitMu sync.Mutex
}

// New creates a new Buffer. Zero config values fall back to the defaults.
func New(cfg Config, handler Handler, opts ...Option) *Buffer {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if handler == nil {
		handler = func(Batch) {}
	}

	b := &Buffer{
		cfg:     cfg,
		handler: handler,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.Named("batcher")
	b.lastFlush = b.clock.Now()
	b.pending = make([]types.Sample, 0, cfg.MaxSamples)

	return b
}

// Append adds the sample to the tail of the buffer and flushes inline
// when either threshold is reached.
func (b *Buffer) Append(s types.Sample) error {
	if s.Timestamp == 0 {
		return ErrMissingTimestamp
	}

	b.mu.Lock()
	now := b.clock.Now()
	if len(b.pending) == 0 {
		b.startTime = now
	}
	b.pending = append(b.pending, s)

	if len(b.pending) < b.cfg.MaxSamples && now.Sub(b.lastFlush) < b.cfg.MaxInterval {
		b.mu.Unlock()
		return nil
	}

	b.flushLocked(now)
	return nil
}

// Flush emits all pending samples. It does nothing if the buffer is empty.
func (b *Buffer) Flush() {
	b.mu.Lock()
	b.flushLocked(b.clock.Now())
}

// Stats never blocks on a running handler.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Pending:        len(b.pending),
		SinceLastFlush: b.clock.Since(b.lastFlush),
	}
}

// Watch flushes samples that have waited longer than MaxInterval when no
// further append arrives to trigger the flush. It blocks until ctx is done
// and flushes one last time before returning.
func (b *Buffer) Watch(ctx context.Context) {
	ticker := b.clock.NewTicker(b.cfg.MaxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return
		case <-ticker.Chan():
			b.flushIfStale()
		}
	}
}

func (b *Buffer) flushIfStale() {
	b.mu.Lock()
	now := b.clock.Now()
	if now.Sub(b.lastFlush) < b.cfg.MaxInterval {
		b.mu.Unlock()
		return
	}
	b.flushLocked(now)
}

// flushLocked must be called with mu held, it always releases it.
func (b *Buffer) flushLocked(now time.Time) {
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}

	batch := Batch{
		ID:        uuid.New().String(),
		StartTime: b.startTime,
		EndTime:   now,
		Count:     len(b.pending),
		Samples:   b.pending,
	}
	b.pending = make([]types.Sample, 0, b.cfg.MaxSamples)
	b.startTime = time.Time{}
	b.lastFlush = now

	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()

	b.logger.Debug("batch ready",
		zap.String("batch_id", batch.ID),
		zap.Int("count", batch.Count),
	)
	b.handler(batch)
}
