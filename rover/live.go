package rover

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoopDeps are the collaborators a Loop drives. Frames and Viz may be nil.
type LoopDeps struct {
	Frames    FrameSource
	Inputs    InputSource
	Actuator  Actuator
	Perceiver Perceiver
	Mapper    *Mapper
	State     *ModeState
	Viz       *VizMetrics
	Logger    *zap.Logger
}

// Loop is the single-goroutine control loop. It owns the actuator, the input
// and frame sources, and the mode state for its lifetime.
type Loop struct {
	cfg       LoopConfig
	frames    FrameSource
	inputs    InputSource
	actuator  Actuator
	perceiver Perceiver
	mapper    *Mapper
	state     *ModeState
	viz       *VizMetrics
	log       *zap.Logger

	throttleAxis int
	steeringAxis int
	toggle       ButtonEdge
	debug        *rate.Limiter
	ticks        uint64
}

// NewLoop wires a loop. The loop takes ownership of the sources and actuator
// and closes them when Run returns.
func NewLoop(cfg LoopConfig, joy JoystickConfig, deps LoopDeps) *Loop {
	log := deps.Logger
	if log == nil {
		log = L()
	}
	state := deps.State
	if state == nil {
		s := NewModeState()
		state = &s
	}
	return &Loop{
		cfg:          cfg,
		frames:       deps.Frames,
		inputs:       deps.Inputs,
		actuator:     deps.Actuator,
		perceiver:    deps.Perceiver,
		mapper:       deps.Mapper,
		state:        state,
		viz:          deps.Viz,
		log:          log,
		throttleAxis: joy.ThrottleAxis,
		steeringAxis: joy.SteeringAxis,
		toggle:       ButtonEdge{ID: joy.ModeButton},
		debug:        rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}
}

// State returns the loop's mode state.
func (l *Loop) State() ModeState {
	return *l.state
}

// Run ticks until ctx is cancelled, then drives the actuators to neutral and
// releases every resource. Cancellation is not an error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	l.log.Info("ready; press the mode button to toggle MANUAL/AUTO",
		zap.Duration("tick", l.cfg.TickInterval))
	if l.cfg.StartAuto && l.state.Mode == ModeManual {
		l.toggleMode()
	}

	for ctx.Err() == nil {
		l.Step()
		time.Sleep(l.cfg.TickInterval)
	}
	l.log.Info("shutdown requested", zap.Uint64("ticks", l.ticks))
	return nil
}

// Step runs one tick: autonomous actuation first, then every pending input
// event, so input always has the last word within a tick.
func (l *Loop) Step() {
	l.ticks++
	if l.state.Autonomous() {
		l.stepAuto()
	}
	l.drainInputs()
	l.viz.UpdateState(*l.state, l.ticks)
}

func (l *Loop) stepAuto() {
	if l.frames == nil {
		return
	}
	frame, ok := l.frames.TryAcquire()
	if !ok {
		return
	}
	est := l.perceiver.Perceive(frame)
	l.viz.UpdateTarget(est)

	if !est.Found {
		// Coast: the previous command stays on the actuators.
		if l.mapper.Drive.StopOnLostTarget {
			l.setThrottle(ThrottleCommand{Direction: DirectionStop})
		}
		return
	}
	if l.debug.Allow() {
		l.log.Debug("target", zap.Float64("center_x", est.CenterX), zap.Float64("radius", est.Radius))
	}

	cmd, latch := l.mapper.Auto(est, frame.Bounds().Dx())
	l.emit(cmd)
	if latch && l.state.LatchStop() {
		l.log.Info("AUTO latched off",
			zap.Float64("radius", est.Radius),
			zap.Float64("threshold", l.mapper.Drive.RadiusThreshold))
	}
}

func (l *Loop) drainInputs() {
	if l.inputs == nil {
		return
	}
	for {
		ev, ok := l.inputs.TryRead()
		if !ok {
			return
		}
		switch e := ev.(type) {
		case ButtonEvent:
			if l.toggle.Rising(e) {
				l.toggleMode()
			}
		case AxisEvent:
			if l.state.Mode != ModeManual {
				continue
			}
			switch e.ID {
			case l.throttleAxis:
				l.setThrottle(l.mapper.ManualThrottle(e.Value))
			case l.steeringAxis:
				l.setSteering(l.mapper.ManualSteering(e.Value))
			}
		}
	}
}

// toggleMode flips the mode and unconditionally resets the actuators.
func (l *Loop) toggleMode() {
	mode := l.state.Toggle()
	l.emit(l.mapper.Neutral())
	l.log.Info("mode changed", zap.Stringer("mode", mode), zap.Bool("auto_active", l.state.AutoActive))
}

func (l *Loop) emit(cmd ControlCommand) {
	l.setSteering(cmd.SteeringPulse)
	l.setThrottle(cmd.Throttle)
}

func (l *Loop) setSteering(pulse int) {
	l.actuator.SetSteering(pulse)
	l.viz.UpdateSteering(pulse)
}

func (l *Loop) setThrottle(cmd ThrottleCommand) {
	l.actuator.SetThrottle(cmd.Direction, cmd.Duty)
	l.viz.UpdateThrottle(cmd)
}

func (l *Loop) shutdown() {
	l.setThrottle(ThrottleCommand{Direction: DirectionStop})
	l.setSteering(l.mapper.Servo.Center)
	if err := l.actuator.Close(); err != nil {
		l.log.Warn("close actuator", zap.Error(err))
	}
	if l.inputs != nil {
		if err := l.inputs.Close(); err != nil {
			l.log.Warn("close input", zap.Error(err))
		}
	}
	if l.frames != nil {
		if err := l.frames.Close(); err != nil {
			l.log.Warn("close camera", zap.Error(err))
		}
	}
}

// RunLive opens the hardware described by cfg and runs the control loop until
// ctx is cancelled. Any initialization failure is returned before the loop
// starts.
func RunLive(ctx context.Context, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := L().With(zap.String("run_id", uuid.NewString()))

	perceiver, err := NewPerceiver(cfg.Perception)
	if err != nil {
		return err
	}

	inputs, err := OpenJoystick(cfg.Joystick, log)
	if err != nil {
		return fmt.Errorf("open joystick: %w", err)
	}
	actuator, err := NewActuator(cfg.Actuator, cfg.Servo, log)
	if err != nil {
		_ = inputs.Close()
		return fmt.Errorf("open actuator: %w", err)
	}
	frames, err := NewFrameSource(cfg.Camera, log)
	if err != nil {
		_ = actuator.Close()
		_ = inputs.Close()
		return fmt.Errorf("open camera: %w", err)
	}
	viz, err := StartViz(cfg.Viz, log)
	if err != nil {
		_ = actuator.Close()
		_ = inputs.Close()
		if frames != nil {
			_ = frames.Close()
		}
		return err
	}
	defer viz.Close()

	state := NewModeState()
	loop := NewLoop(cfg.Loop, cfg.Joystick, LoopDeps{
		Frames:    frames,
		Inputs:    inputs,
		Actuator:  actuator,
		Perceiver: perceiver,
		Mapper:    NewMapper(cfg.Servo, cfg.Drive, cfg.Joystick.Deadzone),
		State:     &state,
		Viz:       viz,
		Logger:    log,
	})
	return loop.Run(ctx)
}

// frameStore keeps only the newest frame; older frames are dropped.
type frameStore struct {
	mu    sync.RWMutex
	last  image.Image
	seq   uint64
	taken uint64
}

// Update stores the latest frame and advances the sequence counter.
func (s *frameStore) Update(frame image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = frame
	s.seq++
}

// Take returns the newest frame if it has not been returned before.
func (s *frameStore) Take() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == s.taken || s.last == nil {
		return nil, false
	}
	s.taken = s.seq
	frame := s.last
	s.last = nil
	return frame, true
}

// Seq returns how many frames have been stored.
func (s *frameStore) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
