package rover

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pigpiod socket command numbers and constants.
const (
	pigpioCmdModes = 0
	pigpioCmdWrite = 4
	pigpioCmdPWM   = 5
	pigpioCmdServo = 8

	pigpioModeOutput = 1
	pigpioFrameSize  = 16
)

// PigpioError is a negative status returned by pigpiod.
type PigpioError struct {
	Cmd  uint32
	Code int32
}

func (e *PigpioError) Error() string {
	return fmt.Sprintf("pigpio command %d failed with status %d", e.Cmd, e.Code)
}

// PigpioActuator drives an H-bridge (PWM + two direction pins) and a steering
// servo through the pigpio daemon socket interface.
//
// An I/O error leaves the request/response framing unknown, so the connection
// is dropped and redialled on the next command.
type PigpioActuator struct {
	conn        net.Conn
	addr        string
	dialTimeout time.Duration
	pins        PinConfig
	ioTimeout   time.Duration
	log         *zap.Logger
	errLog      *rate.Limiter
	req         [pigpioFrameSize]byte
	resp        [pigpioFrameSize]byte
}

// DialPigpio connects to pigpiod, configures the pins as outputs and centers
// the servo. Any failure here is fatal to startup.
func DialPigpio(cfg ActuatorConfig, servo ServoConfig, log *zap.Logger) (*PigpioActuator, error) {
	conn, err := net.DialTimeout("tcp", cfg.Addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect pigpiod %s: %w", cfg.Addr, err)
	}
	a := &PigpioActuator{
		conn:        conn,
		addr:        cfg.Addr,
		dialTimeout: cfg.DialTimeout,
		pins:        cfg.Pins,
		ioTimeout:   cfg.IOTimeout,
		log:         log,
		errLog:      rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, pin := range []int{cfg.Pins.PWM, cfg.Pins.In1, cfg.Pins.In2, cfg.Pins.Servo} {
		if err := a.command(pigpioCmdModes, pin, pigpioModeOutput); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("set gpio %d to output: %w", pin, err)
		}
	}
	if err := a.command(pigpioCmdServo, cfg.Pins.Servo, servo.Center); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("center servo: %w", err)
	}
	log.Info("pigpio connected", zap.String("addr", cfg.Addr))
	return a, nil
}

// SetSteering implements Actuator.
func (a *PigpioActuator) SetSteering(pulseUS int) {
	a.do(pigpioCmdServo, a.pins.Servo, pulseUS)
}

// SetThrottle implements Actuator. Stop drops the duty before releasing the
// direction pins.
func (a *PigpioActuator) SetThrottle(dir Direction, duty int) {
	switch dir {
	case DirectionForward:
		a.do(pigpioCmdWrite, a.pins.In1, 0)
		a.do(pigpioCmdWrite, a.pins.In2, 1)
		a.do(pigpioCmdPWM, a.pins.PWM, duty)
	case DirectionReverse:
		a.do(pigpioCmdWrite, a.pins.In1, 1)
		a.do(pigpioCmdWrite, a.pins.In2, 0)
		a.do(pigpioCmdPWM, a.pins.PWM, duty)
	default:
		a.do(pigpioCmdPWM, a.pins.PWM, 0)
		a.do(pigpioCmdWrite, a.pins.In1, 0)
		a.do(pigpioCmdWrite, a.pins.In2, 0)
	}
}

// Close releases the socket. pigpiod keeps the last pin levels, so callers
// neutralise the outputs first.
func (a *PigpioActuator) Close() error {
	if a == nil || a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

func (a *PigpioActuator) do(cmd uint32, p1, p2 int) {
	if err := a.command(cmd, p1, p2); err != nil && a.errLog.Allow() {
		a.log.Warn("pigpio command failed", zap.Uint32("cmd", cmd), zap.Int("p1", p1), zap.Int("p2", p2), zap.Error(err))
	}
}

// command sends one request frame (cmd, p1, p2, p3=0) and waits for the
// echoed response whose last word is the status.
func (a *PigpioActuator) command(cmd uint32, p1, p2 int) error {
	if a.conn == nil {
		conn, err := net.DialTimeout("tcp", a.addr, a.dialTimeout)
		if err != nil {
			return fmt.Errorf("reconnect pigpiod %s: %w", a.addr, err)
		}
		a.conn = conn
		a.log.Info("pigpio reconnected", zap.String("addr", a.addr))
	}
	if err := a.exchange(cmd, p1, p2); err != nil {
		_ = a.Close()
		return err
	}
	if status := int32(binary.LittleEndian.Uint32(a.resp[12:16])); status < 0 {
		return &PigpioError{Cmd: cmd, Code: status}
	}
	return nil
}

func (a *PigpioActuator) exchange(cmd uint32, p1, p2 int) error {
	if a.ioTimeout > 0 {
		_ = a.conn.SetDeadline(time.Now().Add(a.ioTimeout))
	}
	binary.LittleEndian.PutUint32(a.req[0:4], cmd)
	binary.LittleEndian.PutUint32(a.req[4:8], uint32(p1))
	binary.LittleEndian.PutUint32(a.req[8:12], uint32(p2))
	binary.LittleEndian.PutUint32(a.req[12:16], 0)
	if _, err := a.conn.Write(a.req[:]); err != nil {
		return err
	}
	_, err := io.ReadFull(a.conn, a.resp[:])
	return err
}
