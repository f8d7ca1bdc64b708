package rover

import (
	"fmt"
	"image"
)

// TargetEstimate is the best color-blob candidate found in a single frame.
//
// Conventions:
//   - CenterX is a pixel column, 0 at the left edge of the frame.
//   - Radius is the minimum enclosing circle radius in pixels, a proxy for closeness.
type TargetEstimate struct {
	Found   bool
	CenterX float64
	Radius  float64
}

// Mode selects who drives the actuators.
type Mode int

const (
	ModeManual Mode = iota + 1
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "MANUAL"
	case ModeAuto:
		return "AUTO"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Direction is the H-bridge drive direction.
type Direction int

const (
	DirectionStop Direction = iota
	DirectionForward
	DirectionReverse
)

func (d Direction) String() string {
	switch d {
	case DirectionStop:
		return "STOP"
	case DirectionForward:
		return "FORWARD"
	case DirectionReverse:
		return "REVERSE"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ThrottleCommand is a duty cycle in [0, 255] plus a drive direction.
type ThrottleCommand struct {
	Direction Direction
	Duty      int
}

// ControlCommand is the full actuator output for one tick.
type ControlCommand struct {
	SteeringPulse int // microseconds
	Throttle      ThrottleCommand
}

// InputEvent is either a ButtonEvent or an AxisEvent.
type InputEvent interface {
	inputEvent()
}

// ButtonEvent reports a button state change. Initial marks the state report
// the joystick driver emits when the device is opened.
type ButtonEvent struct {
	ID      int
	Pressed bool
	Initial bool
}

// AxisEvent reports a new axis position in [-32767, 32767].
type AxisEvent struct {
	ID      int
	Value   int16
	Initial bool
}

func (ButtonEvent) inputEvent() {}
func (AxisEvent) inputEvent()   {}

// FrameSource yields the most recent camera frame without blocking.
type FrameSource interface {
	TryAcquire() (image.Image, bool)
	Close() error
}

// InputSource yields pending joystick events in arrival order without blocking.
type InputSource interface {
	TryRead() (InputEvent, bool)
	Close() error
}

// Actuator drives the steering servo and the drive motor. Both setters are
// fire-and-forget.
type Actuator interface {
	SetSteering(pulseUS int)
	SetThrottle(dir Direction, duty int)
	Close() error
}

// Perceiver reduces a frame to a target estimate.
type Perceiver interface {
	Perceive(frame image.Image) TargetEstimate
}
