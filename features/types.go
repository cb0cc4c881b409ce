package features

import "time"

// Summary holds LOCAL, windowed signals derived from recent samples
type Summary struct {
	Samples1m          int
	HeartRateSamples1m int
	HeartRateAvg1m     float64
	LastUpdated        time.Time
}
