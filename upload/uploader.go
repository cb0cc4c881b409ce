// Package upload ships flushed batches to the cloud off the sampling path.
package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bridge/batcher"
	"bridge/hasher"
	"bridge/retry"
	"bridge/sender"
)

const (
	DefaultQueueSize   = 16
	DefaultSendTimeout = 10 * time.Second
)

type Config struct {
	QueueSize   int
	SendTimeout time.Duration
	Retry       retry.Config
}

func DefaultConfig() Config {
	return Config{
		QueueSize:   DefaultQueueSize,
		SendTimeout: DefaultSendTimeout,
		Retry:       retry.DefaultConfig(),
	}
}

type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
	Queued  int
	// LastHash is the head of the hash chain, empty before the first batch.
	LastHash string
}

// Uploader queues batches from the buffer and sends them one by one.
// The queue is bounded, when it is full the oldest batch is dropped.
type Uploader struct {
	cfg       Config
	sender    sender.BatchSender
	sessionID string
	logger    *zap.Logger
	chain     *hasher.Chain

	mu      sync.Mutex
	queue   chan batcher.Batch
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func New(cfg Config, s sender.BatchSender, sessionID string, logger *zap.Logger) *Uploader {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		cfg:       cfg,
		sender:    s,
		sessionID: sessionID,
		logger:    logger.Named("upload"),
		chain:     &hasher.Chain{},
		queue:     make(chan batcher.Batch, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start runs the upload worker. Calling it more than once has no effect.
func (u *Uploader) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.started {
		return
	}
	u.started = true

	go func() {
		defer close(u.done)
		for b := range u.queue {
			u.upload(b)
		}
	}()
}

// Handle is a batcher.Handler. It never blocks.
func (u *Uploader) Handle(b batcher.Batch) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		u.dropped.Add(1)
		u.logger.Warn("uploader closed, batch dropped", zap.String("batch_id", b.ID), zap.Int("count", b.Count))
		return
	}

	select {
	case u.queue <- b:
		return
	default:
	}

	// Queue full: drop the oldest batch and enqueue the new one
	select {
	case old := <-u.queue:
		u.dropped.Add(1)
		u.logger.Warn("upload queue full, oldest batch dropped",
			zap.String("batch_id", old.ID),
			zap.Int("count", old.Count),
		)
	default:
	}

	select {
	case u.queue <- b:
	default:
		u.dropped.Add(1)
		u.logger.Warn("upload queue full, batch dropped", zap.String("batch_id", b.ID))
	}
}

// Close stops accepting batches and waits until the queue is drained.
// When ctx ends first, running retries are aborted and the rest of the queue is discarded.
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()

	// drain even if the worker was never started
	u.Start()

	select {
	case <-u.done:
		u.cancel()
		return nil
	case <-ctx.Done():
		u.cancel()
		<-u.done
		return ctx.Err()
	}
}

func (u *Uploader) Stats() Stats {
	return Stats{
		Sent:    u.sent.Load(),
		Failed:  u.failed.Load(),
		Dropped: u.dropped.Load(),
		Queued:  len(u.queue),

		LastHash: u.chain.Last(),
	}
}

func (u *Uploader) upload(b batcher.Batch) {
	if u.ctx.Err() != nil {
		u.failed.Add(1)
		return
	}

	req := sender.IngestRequest{
		UserID:    u.sessionID,
		BatchID:   b.ID,
		StartTime: b.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:   b.EndTime.UTC().Format(time.RFC3339Nano),
		Count:     b.Count,
		Batch:     b.Samples,
	}

	hash, prev, err := u.chain.Next(struct {
		BatchID string `json:"batch_id"`
		Batch   any    `json:"batch"`
	}{b.ID, b.Samples})
	if err != nil {
		u.failed.Add(1)
		u.logger.Error("hash computation failed", zap.String("batch_id", b.ID), zap.Error(err))
		return
	}
	req.Hash = hash
	req.PrevHash = prev

	err = retry.Do(u.ctx, u.cfg.Retry, u.logger, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, u.cfg.SendTimeout)
		defer cancel()

		err := u.sender.SendBatch(ctx, req)
		var statusErr *sender.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		u.failed.Add(1)
		u.logger.Error("failed to upload batch",
			zap.String("batch_id", b.ID),
			zap.Int("count", b.Count),
			zap.Error(err),
		)
		return
	}

	u.sent.Add(1)
	fields := []zap.Field{
		zap.String("batch_id", b.ID),
		zap.Int("count", b.Count),
		zap.String("hash", short(hash)),
		zap.String("prev", short(prev)),
	}
	if len(b.Samples) > 0 {
		fields = append(fields,
			zap.Time("first_sample", b.Samples[0].Time()),
			zap.Time("last_sample", b.Samples[len(b.Samples)-1].Time()),
		)
	}
	u.logger.Info("batch sent", fields...)
}

func short(hash string) string {
	if hash == "" {
		return "nil"
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
