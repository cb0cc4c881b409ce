package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bridge/config"
	"bridge/features"
	"bridge/sender"
	"bridge/syncer"
	"bridge/types"
)

type sliceSource struct {
	samples []types.Sample
}

func (s *sliceSource) Start(ctx context.Context, out chan<- types.Sample) {
	go func() {
		for _, sample := range s.samples {
			select {
			case <-ctx.Done():
				return
			case out <- sample:
			}
		}
	}()
}

// burstSource delivers all samples at once and then stops the bridge.
type burstSource struct {
	samples []types.Sample
	stop    context.CancelFunc
}

func (s *burstSource) Start(_ context.Context, out chan<- types.Sample) {
	for _, sample := range s.samples {
		out <- sample
	}
	s.stop()
}

type fakeRemote struct {
	mu     sync.Mutex
	pushed []types.Sample
	state  *types.RemoteState
}

func (f *fakeRemote) Push(_ context.Context, snapshot types.Sample, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, snapshot)
	return nil
}

func (f *fakeRemote) Pull(context.Context, string) (*types.RemoteState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeRemote) Pushed() []types.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Sample(nil), f.pushed...)
}

type fakeBatches struct {
	mu   sync.Mutex
	reqs []sender.IngestRequest
}

func (f *fakeBatches) SendBatch(_ context.Context, req sender.IngestRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeBatches) Requests() []sender.IngestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sender.IngestRequest(nil), f.reqs...)
}

type fakePublisher struct {
	mu     sync.Mutex
	states []types.RemoteState
}

func (f *fakePublisher) Publish(_ context.Context, _ string, state types.RemoteState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return nil
}

func (f *fakePublisher) States() []types.RemoteState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.RemoteState(nil), f.states...)
}

func testConfig() *config.Config {
	return &config.Config{
		SessionID:        "user-1",
		RemoteURL:        "http://localhost:3000",
		BatchSize:        3,
		BatchIntervalMS:  1000,
		SyncPeriodMS:     10000,
		SyncTimeoutMS:    5000,
		UploadSink:       config.SinkHTTP,
		UploadQueue:      4,
		UploadMaxRetries: 0,
		Source:           config.SourceSimulator,
		SimRateHz:        50,
		DeviceID:         "watch-1",
	}
}

func sample(ts int64, hr float64) types.Sample {
	return types.Sample{
		Timestamp: ts,
		DeviceID:  "watch-1",
		Vitals:    &types.Vitals{HeartRate: &hr},
	}
}

func TestBridge_Run(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClock()
	remote := &fakeRemote{state: &types.RemoteState{Mood: types.MoodSleepy, Energy: 20, Timestamp: 1732234567000}}
	batches := &fakeBatches{}
	publisher := &fakePublisher{}
	src := &sliceSource{samples: []types.Sample{sample(1, 70), sample(2, 72), sample(3, 74)}}

	b := New(testConfig(), zap.NewNop(),
		WithClock(clk),
		WithSource(src),
		WithRemoteClient(remote),
		WithBatchSender(batches),
		WithPublisher(publisher),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Third sample reaches the size threshold
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		reqs := batches.Requests()
		if assert.Len(c, reqs, 1) {
			assert.Equal(c, "user-1", reqs[0].UserID)
			assert.Equal(c, 3, reqs[0].Count)
			assert.NotEmpty(c, reqs[0].Hash)
		}
	}, 5*time.Second, 10*time.Millisecond)

	// Next periods push the merged snapshot and deliver the pulled state
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		clk.Advance(10 * time.Second)
		pushed := remote.Pushed()
		if assert.NotEmpty(c, pushed) {
			assert.Equal(c, int64(3), pushed[len(pushed)-1].Timestamp)
		}
		assert.NotEmpty(c, publisher.States())
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.MoodSleepy, publisher.States()[0].Mood)
	assert.True(t, b.Syncing())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.False(t, b.Syncing())
}

func TestBridge_ShutdownKeepsDeliveredSamples(t *testing.T) {
	t.Parallel()

	for range 20 {
		batches := &fakeBatches{}
		cfg := testConfig()
		cfg.BatchSize = 1000

		ctx, cancel := context.WithCancel(context.Background())
		src := &burstSource{stop: cancel}
		for i := range 10 {
			src.samples = append(src.samples, sample(int64(i+1), 70))
		}

		b := New(cfg, zap.NewNop(),
			WithClock(clockwork.NewFakeClock()),
			WithSource(src),
			WithRemoteClient(&fakeRemote{}),
			WithBatchSender(batches),
			WithPublisher(&fakePublisher{}),
		)
		require.NoError(t, b.Run(ctx))

		total := 0
		for _, req := range batches.Requests() {
			total += req.Count
		}
		assert.Equal(t, 10, total)
	}
}

func TestBridge_BackgroundForeground(t *testing.T) {
	t.Parallel()

	batches := &fakeBatches{}
	cfg := testConfig()
	cfg.BatchSize = 50

	b := New(cfg, zap.NewNop(),
		WithClock(clockwork.NewFakeClock()),
		WithSource(&sliceSource{}),
		WithRemoteClient(&fakeRemote{}),
		WithBatchSender(batches),
		WithPublisher(&fakePublisher{}),
	)

	require.NoError(t, b.Foreground())
	assert.ErrorIs(t, b.Foreground(), syncer.ErrAlreadyRunning)

	b.ingest(sample(1, 70))
	b.ingest(sample(2, 71))

	b.Background()
	assert.False(t, b.Syncing())

	pending, uploads, _ := b.Stats()
	assert.Equal(t, 0, pending.Pending)
	assert.Equal(t, 1, uploads.Queued)

	require.NoError(t, b.Foreground())
	assert.True(t, b.Syncing())

	// Shutdown uploads the queued batch
	require.NoError(t, b.shutdown())
	reqs := batches.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Count)
	assert.False(t, b.Syncing())

	// No restart once stopped
	assert.ErrorIs(t, b.Foreground(), ErrClosed)
	assert.False(t, b.Syncing())
	b.Background()
}

func TestBridge_RejectsSampleWithoutTimestamp(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	b := New(testConfig(), zap.New(core),
		WithClock(clockwork.NewFakeClock()),
		WithSource(&sliceSource{}),
		WithRemoteClient(&fakeRemote{}),
		WithBatchSender(&fakeBatches{}),
		WithPublisher(&fakePublisher{}),
	)

	b.ingest(types.Sample{DeviceID: "watch-1"})

	assert.Equal(t, 1, logs.FilterMessage("sample rejected").Len())
	pending, _, summary := b.Stats()
	assert.Equal(t, 0, pending.Pending)
	assert.Equal(t, 0, summary.Samples1m)
	_, err := b.tracker.Snapshot()
	assert.ErrorIs(t, err, features.ErrNoSnapshot)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.UploadSink = config.SinkKafka
	cfg.KafkaBrokers = "localhost:9092"
	cfg.KafkaTopic = "pet-batches"

	b := New(cfg, zap.NewNop())
	assert.IsType(t, &sender.HTTPClient{}, b.remote)
	assert.IsType(t, &sender.KafkaSender{}, b.batches)
	assert.Len(t, b.closers, 1)
	assert.NotNil(t, b.source)

	cfg = testConfig()
	cfg.Source = config.SourceFile
	cfg.SourcePath = "/tmp/samples.ndjson"
	cfg.MQTTBroker = "tcp://localhost:1883"
	b = New(cfg, zap.NewNop())
	assert.IsType(t, &sender.HTTPClient{}, b.batches)
	assert.Len(t, b.connect, 1)
	assert.Len(t, b.closers, 1)
}
