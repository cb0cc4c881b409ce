package sender

import (
	"github.com/go-playground/validator/v10"

	"bridge/types"
)

// SnapshotRequest is the body of a snapshot push.
type SnapshotRequest struct {
	UserID string       `json:"user_id"`
	Data   types.Sample `json:"data"`
}

// IngestRequest is the body of a batch upload, see the cloud ingest handler.
type IngestRequest struct {
	UserID    string         `json:"user_id"`
	BatchID   string         `json:"batch_id"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
	Count     int            `json:"count"`
	Batch     []types.Sample `json:"batch"`

	// Integrity
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash,omitempty"`
}

// remoteState is the wire form of types.RemoteState. Pointers tell a
// missing field apart from a zero value.
type remoteState struct {
	Mood          *string  `json:"mood" validate:"required,oneof=Happy Energetic Sleepy Concerned Anxious Recovering Proud"`
	Energy        *float64 `json:"energy" validate:"required,min=0,max=100"`
	Timestamp     *int64   `json:"timestamp" validate:"required"`
	Message       string   `json:"message,omitempty"`
	Animation     string   `json:"animation,omitempty"`
	HapticPattern string   `json:"hapticPattern,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	// older payloads use snake case
	ImageURLLegacy string `json:"image_url,omitempty"`
}

var validate = validator.New()

func (w remoteState) toState() types.RemoteState {
	s := types.RemoteState{
		Mood:          types.Mood(*w.Mood),
		Energy:        *w.Energy,
		Timestamp:     *w.Timestamp,
		Message:       w.Message,
		Animation:     types.Animation(w.Animation),
		HapticPattern: types.HapticPattern(w.HapticPattern),
		ImageURL:      w.ImageURL,
	}
	if s.ImageURL == "" {
		s.ImageURL = w.ImageURLLegacy
	}
	return s
}
