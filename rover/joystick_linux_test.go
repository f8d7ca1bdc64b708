//go:build linux

package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func TestJoystickSourceReadsPendingEvents(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	defer unix.Close(fds[1])

	j := newJoystickSource(fds[0], zap.NewNop())
	_, ok := j.TryRead()
	assert.False(t, ok, "empty queue")

	for _, raw := range [][]byte{
		encodeJSEvent(0, 1, jsEventButton|jsEventInit, 0),
		encodeJSEvent(5, 0, 0x04, 9),
		encodeJSEvent(10, 16000, jsEventAxis, 3),
		encodeJSEvent(20, 1, jsEventButton, 0),
	} {
		_, err := unix.Write(fds[1], raw)
		require.NoError(t, err)
	}

	var got []InputEvent
	for {
		ev, ok := j.TryRead()
		if !ok {
			break
		}
		got = append(got, ev)
	}
	assert.Equal(t, []InputEvent{
		ButtonEvent{ID: 0, Pressed: true, Initial: true},
		AxisEvent{ID: 3, Value: 16000},
		ButtonEvent{ID: 0, Pressed: true},
	}, got)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
}

func TestOpenJoystickMissingDevice(t *testing.T) {
	_, err := OpenJoystick(JoystickConfig{Device: "/nonexistent/js0"}, zap.NewNop())
	assert.ErrorContains(t, err, "/nonexistent/js0")
}
