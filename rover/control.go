package rover

import "math"

const (
	axisMax = 32767
	maxDuty = 255
)

// ServoConfig is the steering servo geometry in microseconds.
type ServoConfig struct {
	Center int `mapstructure:"center"`
	Range  int `mapstructure:"range"`
}

// DriveConfig controls autonomous throttle policy.
type DriveConfig struct {
	AutoDuty        int     `mapstructure:"auto_duty"`
	RadiusThreshold float64 `mapstructure:"radius_threshold"`
	// StopOnLostTarget commands a stop when no target is seen instead of
	// leaving the previous command in place.
	StopOnLostTarget bool `mapstructure:"stop_on_lost_target"`
}

// Mapper turns target geometry or joystick deflection into actuator commands.
// It holds no state between calls.
type Mapper struct {
	Servo    ServoConfig
	Drive    DriveConfig
	Deadzone int
}

// NewMapper constructs a mapper.
func NewMapper(servo ServoConfig, drive DriveConfig, deadzone int) *Mapper {
	return &Mapper{Servo: servo, Drive: drive, Deadzone: deadzone}
}

// Neutral is the safe command: centered steering, motor stopped.
func (m *Mapper) Neutral() ControlCommand {
	return ControlCommand{SteeringPulse: m.Servo.Center, Throttle: ThrottleCommand{Direction: DirectionStop}}
}

// SteeringPulse maps norm in [-1, 1] to a servo pulse. Positive norm steers
// below center.
func (m *Mapper) SteeringPulse(norm float64) int {
	pulse := m.Servo.Center - int(math.Round(norm*float64(m.Servo.Range)))
	return clampInt(pulse, m.Servo.Center-m.Servo.Range, m.Servo.Center+m.Servo.Range)
}

// AutoSteering steers toward a target at pixel column centerX.
func (m *Mapper) AutoSteering(centerX float64, frameWidth int) int {
	half := float64(frameWidth) / 2
	if half <= 0 {
		return m.Servo.Center
	}
	return m.SteeringPulse((centerX - half) / half)
}

// AutoThrottle drives forward at the fixed autonomous duty until the target
// looks big enough, then stops and reports latch=true.
func (m *Mapper) AutoThrottle(radius float64) (cmd ThrottleCommand, latch bool) {
	if radius < m.Drive.RadiusThreshold {
		return ThrottleCommand{Direction: DirectionForward, Duty: m.Drive.AutoDuty}, false
	}
	return ThrottleCommand{Direction: DirectionStop}, true
}

// Auto maps a found target to a full command.
func (m *Mapper) Auto(est TargetEstimate, frameWidth int) (ControlCommand, bool) {
	throttle, latch := m.AutoThrottle(est.Radius)
	return ControlCommand{SteeringPulse: m.AutoSteering(est.CenterX, frameWidth), Throttle: throttle}, latch
}

// NormalizeAxis applies the deadzone and scales to [-1, 1].
func (m *Mapper) NormalizeAxis(v int16) float64 {
	if absInt(int(v)) <= m.Deadzone {
		return 0
	}
	return clamp(float64(v)/axisMax, -1, 1)
}

// ManualSteering maps a steering axis reading to a servo pulse. The axis is
// inverted to match the servo mounting.
func (m *Mapper) ManualSteering(v int16) int {
	return m.SteeringPulse(-m.NormalizeAxis(v))
}

// ManualThrottle maps a throttle axis reading to a motor command. The stick
// reads negative when pushed forward.
func (m *Mapper) ManualThrottle(v int16) ThrottleCommand {
	n := m.NormalizeAxis(v)
	duty := int(math.Round(math.Abs(n) * maxDuty))
	switch {
	case n < 0:
		return ThrottleCommand{Direction: DirectionForward, Duty: duty}
	case n > 0:
		return ThrottleCommand{Direction: DirectionReverse, Duty: duty}
	default:
		return ThrottleCommand{Direction: DirectionStop}
	}
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func clampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
