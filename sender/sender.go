package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bridge/types"
)

var (
	ErrInvalidState     = errors.New("invalid remote state")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// RemoteClient is the cloud side of the sync cycle.
type RemoteClient interface {
	// Push uploads the current snapshot. It is safe to repeat.
	Push(ctx context.Context, snapshot types.Sample, sessionID string) error
	// Pull returns the latest display state, nil with no error when there is none yet.
	Pull(ctx context.Context, sessionID string) (*types.RemoteState, error)
}

// BatchSender is a transport for flushed batches (HTTP, Kafka, etc.)
type BatchSender interface {
	SendBatch(ctx context.Context, req IngestRequest) error
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return e.Code >= http.StatusInternalServerError
	}
}
