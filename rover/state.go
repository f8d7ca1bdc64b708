package rover

// ModeState is the robot's mode and the autonomous latch.
//
// AutoActive is forced true on every MANUAL->AUTO transition and cleared only
// by LatchStop while in AUTO. It carries no meaning in MANUAL.
type ModeState struct {
	Mode       Mode
	AutoActive bool
}

// NewModeState returns the power-on state: MANUAL, latch armed.
func NewModeState() ModeState {
	return ModeState{Mode: ModeManual, AutoActive: true}
}

// Toggle flips MANUAL <-> AUTO and returns the new mode.
func (s *ModeState) Toggle() Mode {
	if s.Mode == ModeAuto {
		s.Mode = ModeManual
		return s.Mode
	}
	s.Mode = ModeAuto
	s.AutoActive = true
	return s.Mode
}

// LatchStop disables autonomous actuation until AUTO is re-entered. It
// reports whether the latch changed; it is a no-op outside AUTO.
func (s *ModeState) LatchStop() bool {
	if s.Mode != ModeAuto || !s.AutoActive {
		return false
	}
	s.AutoActive = false
	return true
}

// Autonomous reports whether perception should drive the actuators.
func (s ModeState) Autonomous() bool {
	return s.Mode == ModeAuto && s.AutoActive
}

// ButtonEdge detects released->pressed transitions of one button.
type ButtonEdge struct {
	ID      int
	pressed bool
}

// Rising records ev and reports a press edge. Events for other buttons and
// the driver's initial state report never count as an edge.
func (b *ButtonEdge) Rising(ev ButtonEvent) bool {
	if ev.ID != b.ID {
		return false
	}
	was := b.pressed
	b.pressed = ev.Pressed
	return ev.Pressed && !was && !ev.Initial
}
