// Package display forwards pulled remote state to whatever shows it to the user.
package display

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bridge/types"
)

// Publisher delivers a remote state for one session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, state types.RemoteState) error
}

// LogPublisher only logs the state, used when no device channel is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p *LogPublisher) Publish(_ context.Context, sessionID string, state types.RemoteState) error {
	logger := p.Logger
	if logger == nil {
		return nil
	}
	logger.Info("pet state update",
		zap.String("session_id", sessionID),
		zap.String("mood", string(state.Mood)),
		zap.Float64("energy", state.Energy),
		zap.String("message", state.Message),
	)
	return nil
}

// Handler adapts a Publisher to the sync cycle state callback.
// Each publish is bounded by timeout, failures are logged and dropped.
func Handler(p Publisher, sessionID string, timeout time.Duration, logger *zap.Logger) func(types.RemoteState) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(state types.RemoteState) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := p.Publish(ctx, sessionID, state); err != nil {
			logger.Warn("cannot publish pet state",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
}
