package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeStateToggle(t *testing.T) {
	s := NewModeState()
	assert.Equal(t, ModeState{Mode: ModeManual, AutoActive: true}, s)
	assert.False(t, s.Autonomous())

	assert.Equal(t, ModeAuto, s.Toggle())
	assert.True(t, s.Autonomous())

	assert.Equal(t, ModeManual, s.Toggle())
	assert.False(t, s.Autonomous())
}

func TestModeStateLatch(t *testing.T) {
	s := NewModeState()
	assert.False(t, s.LatchStop(), "latch is a no-op in MANUAL")
	assert.True(t, s.AutoActive)

	s.Toggle()
	assert.True(t, s.LatchStop())
	assert.False(t, s.Autonomous())
	assert.False(t, s.LatchStop(), "already latched")

	s.Toggle()
	assert.Equal(t, ModeState{Mode: ModeManual, AutoActive: false}, s)

	s.Toggle()
	assert.Equal(t, ModeState{Mode: ModeAuto, AutoActive: true}, s)
}

func TestButtonEdge(t *testing.T) {
	e := ButtonEdge{ID: 0}

	assert.False(t, e.Rising(ButtonEvent{ID: 0, Pressed: true, Initial: true}), "initial state")
	assert.False(t, e.Rising(ButtonEvent{ID: 0, Pressed: true}), "still held")
	assert.False(t, e.Rising(ButtonEvent{ID: 0}))
	assert.True(t, e.Rising(ButtonEvent{ID: 0, Pressed: true}))
	assert.False(t, e.Rising(ButtonEvent{ID: 0, Pressed: true}), "auto-repeat")
	assert.False(t, e.Rising(ButtonEvent{ID: 3, Pressed: true}), "other button")
	assert.False(t, e.Rising(ButtonEvent{ID: 0}))
	assert.True(t, e.Rising(ButtonEvent{ID: 0, Pressed: true}))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "MANUAL", ModeManual.String())
	assert.Equal(t, "AUTO", ModeAuto.String())
	assert.Equal(t, "FORWARD", DirectionForward.String())
	assert.Equal(t, "REVERSE", DirectionReverse.String())
	assert.Equal(t, "STOP", DirectionStop.String())
}
