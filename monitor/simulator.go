package monitor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bridge/types"
)

const DefaultRateHz = 50

// Simulator generates full sensor payloads at a fixed rate.
// Vitals tell the story of a user who has not slept for two days.
type Simulator struct {
	DeviceID string
	RateHz   int
	Clock    clockwork.Clock
	Logger   *zap.Logger
	Rand     *rand.Rand
}

func (s *Simulator) Start(ctx context.Context, out chan<- types.Sample) {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rate := s.RateHz
	if rate <= 0 {
		rate = DefaultRateHz
	}
	rnd := s.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	interval := time.Second / time.Duration(rate)
	logger = logger.Named("monitor.simulator")

	go func() {
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()

		var steps int64
		logger.Info("simulator started", zap.String("device_id", s.DeviceID), zap.Int("rate_hz", rate))
		for {
			select {
			case <-ctx.Done():
				logger.Info("simulator stopped")
				return
			case now := <-ticker.Chan():
				if rnd.IntN(rate) == 0 {
					steps++
				}
				sample := generate(s.DeviceID, now, realtime{
					heartRate: float64(60 + rnd.IntN(61)),
					accel:     types.Vector3{X: rnd.NormFloat64() * 0.1, Y: rnd.NormFloat64() * 0.1, Z: 9.8 + rnd.NormFloat64()*0.05},
					gyro:      types.Vector3{X: rnd.NormFloat64() * 0.01, Y: rnd.NormFloat64() * 0.01, Z: rnd.NormFloat64() * 0.01},
					steps:     steps,
				})
				select {
				case <-ctx.Done():
					return
				case out <- sample:
				}
			}
		}
	}()
}

type realtime struct {
	heartRate float64
	accel     types.Vector3
	gyro      types.Vector3
	steps     int64
}

// generate combines real-time readings with mocked fields into one payload.
func generate(deviceID string, now time.Time, rt realtime) types.Sample {
	f := func(v float64) *float64 { return &v }
	steps := rt.steps
	intensity := rt.heartRate > 120
	worn := types.WearWorn
	emotion := 1 // unpleasant

	return types.Sample{
		Timestamp: now.UnixMilli(),
		DeviceID:  deviceID,
		Vitals: &types.Vitals{
			HeartRate:        f(rt.heartRate),
			RestingHeartRate: f(75), // elevated by stress and no sleep
			HRVRMSSD:         f(18), // high fatigue
			SpO2:             f(96),
			SkinTemperature:  f(34.5),
			BodyTemperature:  f(37.1),
		},
		Activity: &types.Activity{
			StepCount:   &steps,
			Calories:    f(2200 + float64(steps)*0.04),
			Distance:    f(float64(steps) * 0.762),
			Speed:       f(1.1),
			IsIntensity: &intensity,
		},
		RunningForm: &types.RunningForm{
			GroundImpactAcceleration: f(1.5),
			VerticalOscillation:      f(8.2),
			GroundContactTime:        f(250),
		},
		Environment: &types.Environment{
			AmbientLight: f(300),
			Barometer:    f(1013.25),
			Altitude:     f(120),
		},
		Motion: &types.Motion{
			Accelerometer:      &rt.accel,
			Gyroscope:          &rt.gyro,
			Magnetometer:       &types.Vector3{},
			Gravity:            &types.Vector3{Z: -9.8},
			LinearAcceleration: &types.Vector3{},
			RotationVector:     &types.Vector4{W: 1},
		},
		Status: &types.Status{
			WearDetection: worn,
			BatteryLevel:  f(65),
		},
		Wellbeing: &types.Wellbeing{
			SleepScore:    f(15),
			StressScore:   f(85),
			EmotionStatus: &emotion,
		},
	}
}
