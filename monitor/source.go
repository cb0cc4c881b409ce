package monitor

import (
	"context"

	"bridge/types"
)

// Source produces samples at its own rate until ctx is done.
// Start must not block, the source runs in its own goroutine.
type Source interface {
	Start(ctx context.Context, out chan<- types.Sample)
}
