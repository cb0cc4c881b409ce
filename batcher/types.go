package batcher

import (
	"time"

	"bridge/types"
)

// Batch is a group of samples drained from the Buffer in one flush.
// The Buffer keeps no reference to Samples once the batch is emitted.
type Batch struct {
	ID        string
	StartTime time.Time // first append after the previous flush
	EndTime   time.Time // flush time
	Count     int

	Samples []types.Sample
}

// Stats is a point-in-time view of the Buffer.
type Stats struct {
	Pending        int
	SinceLastFlush time.Duration
}
