package features

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"bridge/types"
)

var ErrNoSnapshot = errors.New("no sensor sample received yet")

const window = time.Minute

type heartRatePoint struct {
	at  time.Time
	bpm float64
}

// Tracker maintains the latest sensor snapshot and a rolling window of vitals.
// Snapshot is safe to call from the sync cycle while samples keep arriving.
type Tracker struct {
	mu    sync.Mutex
	clock clockwork.Clock

	snapshot types.Sample
	seen     bool

	samples    []time.Time
	heartRates []heartRatePoint
}

func New(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{clock: clock}
}

// Update consumes ONE sample, merges it into the snapshot and returns the window summary.
func (t *Tracker) Update(s types.Sample) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC()

	t.merge(s)

	t.samples = append(t.samples, now)
	if s.Vitals != nil && s.Vitals.HeartRate != nil {
		t.heartRates = append(t.heartRates, heartRatePoint{at: now, bpm: *s.Vitals.HeartRate})
	}

	cutoff := now.Add(-window)
	t.samples = pruneTimes(t.samples, cutoff)
	t.heartRates = pruneHeartRates(t.heartRates, cutoff)

	return t.summary(now)
}

// Snapshot returns the merged latest state of every sensor category.
func (t *Tracker) Snapshot() (types.Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen {
		return types.Sample{}, ErrNoSnapshot
	}
	return t.snapshot, nil
}

// Summary returns the window summary without consuming a sample.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC()
	cutoff := now.Add(-window)
	t.samples = pruneTimes(t.samples, cutoff)
	t.heartRates = pruneHeartRates(t.heartRates, cutoff)
	return t.summary(now)
}

// merge lets newer samples overwrite categories, older ones only fill gaps.
func (t *Tracker) merge(s types.Sample) {
	if !t.seen {
		t.snapshot = s
		t.seen = true
		return
	}

	newer := s.Timestamp >= t.snapshot.Timestamp
	cur := &t.snapshot

	if newer {
		cur.Timestamp = s.Timestamp
		if s.DeviceID != "" {
			cur.DeviceID = s.DeviceID
		}
	} else if cur.DeviceID == "" {
		cur.DeviceID = s.DeviceID
	}

	cur.Vitals = pick(cur.Vitals, s.Vitals, newer)
	cur.Body = pick(cur.Body, s.Body, newer)
	cur.Activity = pick(cur.Activity, s.Activity, newer)
	cur.RunningForm = pick(cur.RunningForm, s.RunningForm, newer)
	cur.Environment = pick(cur.Environment, s.Environment, newer)
	cur.Motion = pick(cur.Motion, s.Motion, newer)
	cur.Status = pick(cur.Status, s.Status, newer)
	cur.Wellbeing = pick(cur.Wellbeing, s.Wellbeing, newer)
}

func pick[T any](cur, next *T, newer bool) *T {
	if next == nil {
		return cur
	}
	if newer || cur == nil {
		return next
	}
	return cur
}

func (t *Tracker) summary(now time.Time) Summary {
	out := Summary{
		Samples1m:          len(t.samples),
		HeartRateSamples1m: len(t.heartRates),
		LastUpdated:        now,
	}
	if len(t.heartRates) > 0 {
		var sum float64
		for _, p := range t.heartRates {
			sum += p.bpm
		}
		out.HeartRateAvg1m = sum / float64(len(t.heartRates))
	}
	return out
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(cutoff) {
			break
		}
	}
	return ts[i:]
}

func pruneHeartRates(ps []heartRatePoint, cutoff time.Time) []heartRatePoint {
	i := 0
	for ; i < len(ps); i++ {
		if ps[i].at.After(cutoff) {
			break
		}
	}
	return ps[i:]
}
