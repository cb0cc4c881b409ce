package types

import "time"

// Sample is one timestamped reading from the wearable.
// Timestamp is milliseconds since the Unix epoch and is the only required field.
type Sample struct {
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId,omitempty"`

	Vitals      *Vitals      `json:"vitals,omitempty"`
	Body        *Body        `json:"body,omitempty"`
	Activity    *Activity    `json:"activity,omitempty"`
	RunningForm *RunningForm `json:"runningForm,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
	Motion      *Motion      `json:"motion,omitempty"`
	Status      *Status      `json:"status,omitempty"`
	Wellbeing   *Wellbeing   `json:"wellbeing,omitempty"`
}

// Time returns the sample timestamp as UTC time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Vector4 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

type Vitals struct {
	HeartRate        *float64       `json:"heartRate,omitempty"`
	RestingHeartRate *float64       `json:"restingHeartRate,omitempty"`
	HRVRMSSD         *float64       `json:"hrvRMSSD,omitempty"`
	SpO2             *float64       `json:"spo2,omitempty"`
	SkinTemperature  *float64       `json:"skinTemperature,omitempty"`
	BodyTemperature  *float64       `json:"bodyTemperature,omitempty"`
	BloodGlucose     *float64       `json:"bloodGlucose,omitempty"` // mmol/L
	BloodPressure    *BloodPressure `json:"bloodPressure,omitempty"`
	VO2Max           *float64       `json:"vo2Max,omitempty"`
	ECGResult        string         `json:"ecgResult,omitempty"`
}

type Body struct {
	Height  *float64 `json:"height,omitempty"` // meters
	Weight  *float64 `json:"weight,omitempty"` // kg
	BodyFat *float64 `json:"bodyFat,omitempty"`
	BMI     *float64 `json:"bmi,omitempty"`
}

type Activity struct {
	StepCount   *int64   `json:"stepCount,omitempty"`
	Calories    *float64 `json:"calories,omitempty"`
	ActiveHours *float64 `json:"activeHours,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	IsIntensity *bool    `json:"isIntensity,omitempty"`
}

type RunningForm struct {
	GroundImpactAcceleration *float64 `json:"groundImpactAcceleration,omitempty"`
	VerticalOscillation      *float64 `json:"verticalOscillation,omitempty"`
	GroundContactTime        *float64 `json:"groundContactTime,omitempty"`
}

type Environment struct {
	AmbientLight *float64  `json:"ambientLight,omitempty"` // lux
	Barometer    *float64  `json:"barometer,omitempty"`    // hPa
	Altitude     *float64  `json:"altitude,omitempty"`     // meters
	Location     *Location `json:"location,omitempty"`
}

type Motion struct {
	Accelerometer      *Vector3 `json:"accelerometer,omitempty"`
	Gyroscope          *Vector3 `json:"gyroscope,omitempty"`
	Magnetometer       *Vector3 `json:"magnetometer,omitempty"`
	Gravity            *Vector3 `json:"gravity,omitempty"`
	LinearAcceleration *Vector3 `json:"linearAcceleration,omitempty"`
	RotationVector     *Vector4 `json:"rotationVector,omitempty"`
}

// WearDetection values reported by the watch.
const (
	WearWorn    = "WORN"
	WearNotWorn = "NOT_WORN"
	WearUnknown = "UNKNOWN"
)

type Status struct {
	WearDetection string   `json:"wearDetection,omitempty"`
	BatteryLevel  *float64 `json:"batteryLevel,omitempty"`
}

type Wellbeing struct {
	StressScore   *float64 `json:"stressScore,omitempty"`
	EmotionStatus *int     `json:"emotionStatus,omitempty"` // 1 unpleasant, 2 neutral, 3 pleasant
	SleepScore    *float64 `json:"sleepScore,omitempty"`
	SleepStatus   string   `json:"sleepStatus,omitempty"`
}
