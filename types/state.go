package types

type Mood string

const (
	MoodHappy      Mood = "Happy"
	MoodEnergetic  Mood = "Energetic"
	MoodSleepy     Mood = "Sleepy"
	MoodConcerned  Mood = "Concerned"
	MoodAnxious    Mood = "Anxious"
	MoodRecovering Mood = "Recovering"
	MoodProud      Mood = "Proud"
)

type Animation string

const (
	AnimationSmile     Animation = "smile"
	AnimationJump      Animation = "jump"
	AnimationSleep     Animation = "sleep"
	AnimationWorry     Animation = "worry"
	AnimationCelebrate Animation = "celebrate"
	AnimationBreathe   Animation = "breathe"
)

type HapticPattern string

const (
	HapticGentle      HapticPattern = "gentle"
	HapticAlert       HapticPattern = "alert"
	HapticCelebration HapticPattern = "celebration"
	HapticWarning     HapticPattern = "warning"
)

// RemoteState is the display state computed by the cloud for one user.
// Only Mood, Energy and Timestamp are checked, the rest is passed through.
type RemoteState struct {
	Mood          Mood          `json:"mood"`
	Energy        float64       `json:"energy"`
	Timestamp     int64         `json:"timestamp"`
	Message       string        `json:"message,omitempty"`
	Animation     Animation     `json:"animation,omitempty"`
	HapticPattern HapticPattern `json:"hapticPattern,omitempty"`
	ImageURL      string        `json:"imageUrl,omitempty"`
}
