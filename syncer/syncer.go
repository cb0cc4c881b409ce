// Package syncer runs the periodic push/pull cycle between the device and the cloud.
//
// Each iteration reads the current sensor snapshot, pushes it, pulls the latest
// remote state and hands it to the state handler. Iterations are best-effort:
// a failure is logged and the next tick runs as usual. Nothing is retried or queued.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bridge/sender"
	"bridge/types"
)

const (
	DefaultPeriod  = 10 * time.Second
	DefaultTimeout = 5 * time.Second
)

var ErrAlreadyRunning = errors.New("sync cycle is already running")

type Config struct {
	// Period between iterations.
	Period time.Duration
	// Timeout of each network call.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{Period: DefaultPeriod, Timeout: DefaultTimeout}
}

// SnapshotFunc returns the current sensor state. It must not block.
type SnapshotFunc func() (types.Sample, error)

// StateHandler receives each successfully pulled remote state.
type StateHandler func(types.RemoteState)

type Option func(*Cycle)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cycle) { c.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cycle) { c.logger = logger }
}

// Cycle is Stopped until Start, and Running until Stop.
type Cycle struct {
	cfg    Config
	client sender.RemoteClient
	clock  clockwork.Clock
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	inFlight atomic.Bool
}

func New(cfg Config, client sender.RemoteClient, opts ...Option) *Cycle {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Cycle{
		cfg:    cfg,
		client: client,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.Named("syncer")
	return c
}

// Start runs one iteration immediately and then one per period until Stop.
func (c *Cycle) Start(snapshot SnapshotFunc, onUpdate StateHandler, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.logger.Warn("sync cycle is already running", zap.String("session_id", sessionID))
		return ErrAlreadyRunning
	}
	if onUpdate == nil {
		onUpdate = func(types.RemoteState) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	c.cancel = cancel
	c.wg = wg

	// The ticker exists before Start returns, so the first period is measured from here.
	ticker := c.clock.NewTicker(c.cfg.Period)
	it := &iteration{cycle: c, snapshot: snapshot, onUpdate: onUpdate, sessionID: sessionID}

	c.logger.Info("sync cycle started",
		zap.String("session_id", sessionID),
		zap.Duration("period", c.cfg.Period),
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		c.launch(wg, it)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.launch(wg, it)
			}
		}
	}()

	return nil
}

// Stop cancels the schedule and waits for a running iteration to complete.
// It is safe to call in any state, but not from the state handler.
func (c *Cycle) Stop() {
	c.mu.Lock()
	cancel, wg := c.cancel, c.wg
	c.cancel, c.wg = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	wg.Wait()
	c.logger.Info("sync cycle stopped")
}

func (c *Cycle) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// launch starts the iteration unless the previous one is still running.
func (c *Cycle) launch(wg *sync.WaitGroup, it *iteration) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("previous sync still in progress, skipping tick")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.inFlight.Store(false)
		it.run()
	}()
}

type iteration struct {
	cycle     *Cycle
	snapshot  SnapshotFunc
	onUpdate  StateHandler
	sessionID string
}

func (it *iteration) run() {
	c := it.cycle
	start := c.clock.Now()

	state, err := it.exchange()
	if err != nil {
		c.logger.Error("sync failed",
			zap.String("session_id", it.sessionID),
			zap.Error(err),
		)
		return
	}

	if state == nil {
		c.logger.Debug("no remote state yet", zap.String("session_id", it.sessionID))
		return
	}

	if err := it.deliver(*state); err != nil {
		c.logger.Error("state handler failed", zap.Error(err))
		return
	}

	c.logger.Debug("sync done",
		zap.String("session_id", it.sessionID),
		zap.String("mood", string(state.Mood)),
		zap.Duration("took", c.clock.Since(start)),
	)
}

// exchange performs snapshot, push and pull. Any error aborts the iteration.
func (it *iteration) exchange() (state *types.RemoteState, err error) {
	c := it.cycle

	snapshot, err := it.readSnapshot()
	if err != nil {
		return nil, err
	}

	pushCtx, cancel := clockwork.WithTimeout(context.Background(), c.clock, c.cfg.Timeout)
	err = c.client.Push(pushCtx, snapshot, it.sessionID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("push failed: %w", err)
	}

	pullCtx, cancel := clockwork.WithTimeout(context.Background(), c.clock, c.cfg.Timeout)
	state, err = c.client.Pull(pullCtx, it.sessionID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("pull failed: %w", err)
	}

	return state, nil
}

func (it *iteration) readSnapshot() (snapshot types.Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot accessor panicked: %v", r)
		}
	}()

	snapshot, err = it.snapshot()
	if err != nil {
		return types.Sample{}, fmt.Errorf("cannot read snapshot: %w", err)
	}
	return snapshot, nil
}

func (it *iteration) deliver(state types.RemoteState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("state handler panicked: %v", r)
		}
	}()

	it.onUpdate(state)
	return nil
}
