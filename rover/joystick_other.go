//go:build !linux

package rover

import (
	"errors"

	"go.uber.org/zap"
)

// JoystickSource is only available on Linux.
type JoystickSource struct{}

// OpenJoystick always fails off Linux.
func OpenJoystick(cfg JoystickConfig, log *zap.Logger) (*JoystickSource, error) {
	return nil, errors.New("joystick input requires the Linux joystick API")
}

// TryRead implements InputSource.
func (j *JoystickSource) TryRead() (InputEvent, bool) { return nil, false }

// Close implements InputSource.
func (j *JoystickSource) Close() error { return nil }
