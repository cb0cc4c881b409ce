// Package pipeline wires the sample source, the batch buffer, the uploader
// and the sync cycle into one running bridge.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bridge/batcher"
	"bridge/config"
	"bridge/display"
	"bridge/features"
	"bridge/monitor"
	"bridge/sender"
	"bridge/syncer"
	"bridge/types"
	"bridge/upload"
)

var ErrClosed = errors.New("bridge is shutting down")

const (
	DefaultShutdownTimeout = 10 * time.Second
	samplesBuffer          = 256
)

type Option func(*Bridge)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Bridge) { b.clock = clock }
}

func WithSource(src monitor.Source) Option {
	return func(b *Bridge) { b.source = src }
}

func WithRemoteClient(c sender.RemoteClient) Option {
	return func(b *Bridge) { b.remote = c }
}

func WithBatchSender(s sender.BatchSender) Option {
	return func(b *Bridge) { b.batches = s }
}

func WithPublisher(p display.Publisher) Option {
	return func(b *Bridge) { b.publisher = p }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.shutdownTimeout = d }
}

// Bridge moves samples from the device to the cloud and pet state back.
type Bridge struct {
	cfg             *config.Config
	logger          *zap.Logger
	clock           clockwork.Clock
	shutdownTimeout time.Duration

	source    monitor.Source
	remote    sender.RemoteClient
	batches   sender.BatchSender
	publisher display.Publisher

	tracker  *features.Tracker
	buffer   *batcher.Buffer
	uploader *upload.Uploader
	cycle    *syncer.Cycle
	onState  syncer.StateHandler

	connect []func(ctx context.Context) error
	closers []func()

	// guards lifecycle transitions against a concurrent shutdown
	mu     sync.Mutex
	closed bool
}

// New builds all components. Options replace the ones derived from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bridge{
		cfg:             cfg,
		logger:          logger,
		clock:           clockwork.NewRealClock(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, o := range opts {
		o(b)
	}

	// ---- SOURCE ----
	if b.source == nil {
		b.source = b.newSource()
	}

	// ---- SENDERS ----
	var httpClient *sender.HTTPClient
	if b.remote == nil || (b.batches == nil && cfg.UploadSink != config.SinkKafka) {
		httpClient = sender.NewHTTPClient(sender.HTTPConfig{
			BaseURL: cfg.RemoteURL,
			Timeout: cfg.Syncer().Timeout,
		}, logger)
	}
	if b.remote == nil {
		b.remote = httpClient
	}
	if b.batches == nil {
		if cfg.UploadSink == config.SinkKafka {
			k := sender.NewKafkaSender(sender.KafkaConfig{
				Brokers: sender.ParseBrokers(cfg.KafkaBrokers),
				Topic:   cfg.KafkaTopic,
			})
			b.batches = k
			b.closers = append(b.closers, func() {
				if err := k.Close(); err != nil {
					logger.Warn("cannot close kafka writer", zap.Error(err))
				}
			})
		} else {
			b.batches = httpClient
		}
	}

	// ---- DISPLAY ----
	if b.publisher == nil {
		if cfg.MQTTBroker != "" {
			p := display.NewMQTTPublisher(display.MQTTConfig{
				Broker:      cfg.MQTTBroker,
				ClientID:    "bridge-" + cfg.SessionID,
				TopicPrefix: cfg.MQTTTopicPrefix,
			}, logger)
			b.publisher = p
			b.connect = append(b.connect, p.Connect)
			b.closers = append(b.closers, p.Close)
		} else {
			b.publisher = &display.LogPublisher{Logger: logger.Named("display")}
		}
	}

	// ---- CORE ----
	b.tracker = features.New(b.clock)
	b.uploader = upload.New(cfg.Upload(), b.batches, cfg.SessionID, logger)
	b.buffer = batcher.New(cfg.Batcher(), b.uploader.Handle,
		batcher.WithClock(b.clock),
		batcher.WithLogger(logger),
	)
	b.cycle = syncer.New(cfg.Syncer(), b.remote,
		syncer.WithClock(b.clock),
		syncer.WithLogger(logger),
	)
	b.onState = display.Handler(b.publisher, cfg.SessionID, cfg.Syncer().Timeout, logger)

	return b
}

func (b *Bridge) newSource() monitor.Source {
	if b.cfg.Source == config.SourceFile {
		return &monitor.FileMonitor{
			Path:   b.cfg.SourcePath,
			Clock:  b.clock,
			Logger: b.logger,
		}
	}
	return &monitor.Simulator{
		DeviceID: b.cfg.DeviceID,
		RateHz:   b.cfg.SimRateHz,
		Clock:    b.clock,
		Logger:   b.logger,
	}
}

// Run blocks until ctx is done, then flushes and uploads what is pending
// within the shutdown timeout.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge started",
		zap.String("session_id", b.cfg.SessionID),
		zap.String("upload_sink", b.cfg.UploadSink),
		zap.String("source", b.cfg.Source),
	)

	for _, connect := range b.connect {
		// the publisher keeps reconnecting in the background
		if err := connect(ctx); err != nil {
			b.logger.Warn("display not connected yet", zap.Error(err))
		}
	}

	b.uploader.Start()
	if err := b.Foreground(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.buffer.Watch(ctx)
	}()

	samples := make(chan types.Sample, samplesBuffer)
	b.source.Start(ctx, samples)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			b.drain(samples)
			return b.shutdown()
		case s := <-samples:
			b.ingest(s)
		}
	}
}

// drain ingests samples the source already delivered, so the final flush includes them.
func (b *Bridge) drain(samples <-chan types.Sample) {
	for {
		select {
		case s := <-samples:
			b.ingest(s)
		default:
			return
		}
	}
}

func (b *Bridge) ingest(s types.Sample) {
	if err := b.buffer.Append(s); err != nil {
		b.logger.Warn("sample rejected", zap.String("device_id", s.DeviceID), zap.Error(err))
		return
	}
	b.tracker.Update(s)
}

// Background is called when the host app leaves the foreground.
// Pending samples are flushed and the sync cycle stops.
func (b *Bridge) Background() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.buffer.Flush()
	b.cycle.Stop()
	b.logger.Info("bridge in background")
}

// Foreground restarts the sync cycle. It returns syncer.ErrAlreadyRunning
// if the cycle was not stopped, and ErrClosed once shutdown has started.
func (b *Bridge) Foreground() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.cycle.Start(b.tracker.Snapshot, b.onState, b.cfg.SessionID)
}

func (b *Bridge) Syncing() bool {
	return b.cycle.Running()
}

func (b *Bridge) Stats() (batcher.Stats, upload.Stats, features.Summary) {
	return b.buffer.Stats(), b.uploader.Stats(), b.tracker.Summary()
}

func (b *Bridge) shutdown() error {
	b.logger.Info("bridge stopping")

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cycle.Stop()
	b.buffer.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
	defer cancel()

	err := b.uploader.Close(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		b.logger.Warn("shutdown timeout, pending batches discarded", zap.Duration("timeout", b.shutdownTimeout))
	}

	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}

	stats := b.uploader.Stats()
	b.logger.Info("bridge stopped",
		zap.Int64("batches_sent", stats.Sent),
		zap.Int64("batches_failed", stats.Failed),
		zap.Int64("batches_dropped", stats.Dropped),
		zap.String("last_hash", stats.LastHash),
	)
	return err
}
