//go:build linux

package rover

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// JoystickSource reads events from a Linux joystick device opened
// non-blocking. An empty device queue reads as "no event".
type JoystickSource struct {
	fd     int
	buf    [jsEventSize]byte
	log    *zap.Logger
	errLog *rate.Limiter
}

// OpenJoystick opens cfg.Device for non-blocking reads.
func OpenJoystick(cfg JoystickConfig, log *zap.Logger) (*JoystickSource, error) {
	fd, err := unix.Open(cfg.Device, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Device, err)
	}
	log.Info("joystick opened", zap.String("device", cfg.Device))
	return newJoystickSource(fd, log), nil
}

func newJoystickSource(fd int, log *zap.Logger) *JoystickSource {
	return &JoystickSource{fd: fd, log: log, errLog: rate.NewLimiter(rate.Every(time.Second), 1)}
}

// TryRead returns the next pending event, skipping event types it does not
// understand.
func (j *JoystickSource) TryRead() (InputEvent, bool) {
	for {
		n, err := unix.Read(j.fd, j.buf[:])
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) && j.errLog.Allow() {
				j.log.Warn("joystick read failed", zap.Error(err))
			}
			return nil, false
		}
		if n != jsEventSize {
			return nil, false
		}
		if ev, ok := decodeJSEvent(j.buf[:]); ok {
			return ev, true
		}
	}
}

// Close releases the device.
func (j *JoystickSource) Close() error {
	if j.fd < 0 {
		return nil
	}
	err := unix.Close(j.fd)
	j.fd = -1
	return err
}
