package rover

import "encoding/binary"

// JoystickConfig maps joystick controls to robot functions.
type JoystickConfig struct {
	Device       string `mapstructure:"device"`
	ThrottleAxis int    `mapstructure:"throttle_axis"`
	SteeringAxis int    `mapstructure:"steering_axis"`
	ModeButton   int    `mapstructure:"mode_button"`
	Deadzone     int    `mapstructure:"deadzone"`
}

// Linux joystick API (linux/joystick.h) event layout.
const (
	jsEventSize   = 8
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// decodeJSEvent parses one struct js_event: u32 time, s16 value, u8 type,
// u8 number, little endian. Unknown event types report ok=false.
func decodeJSEvent(b []byte) (InputEvent, bool) {
	if len(b) < jsEventSize {
		return nil, false
	}
	value := int16(binary.LittleEndian.Uint16(b[4:6]))
	typ := b[6]
	number := int(b[7])
	initial := typ&jsEventInit != 0

	switch typ &^ jsEventInit {
	case jsEventButton:
		return ButtonEvent{ID: number, Pressed: value != 0, Initial: initial}, true
	case jsEventAxis:
		return AxisEvent{ID: number, Value: value, Initial: initial}, true
	default:
		return nil, false
	}
}
