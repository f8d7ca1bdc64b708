package rover

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Actuator drivers.
const (
	ActuatorDriverPigpio = "pigpio"
	ActuatorDriverUDP    = "udp"
	ActuatorDriverLog    = "log"
)

// PinConfig is the Broadcom GPIO numbering of the motor driver and servo.
type PinConfig struct {
	PWM   int `mapstructure:"pwm"`
	In1   int `mapstructure:"in1"`
	In2   int `mapstructure:"in2"`
	Servo int `mapstructure:"servo"`
}

// ActuatorConfig selects and configures the actuator driver.
type ActuatorConfig struct {
	Driver      string        `mapstructure:"driver"`
	Addr        string        `mapstructure:"addr"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	IOTimeout   time.Duration `mapstructure:"io_timeout"`
	Pins        PinConfig     `mapstructure:"pins"`
}

// NewActuator opens the configured actuator driver and centers the servo.
func NewActuator(cfg ActuatorConfig, servo ServoConfig, log *zap.Logger) (Actuator, error) {
	switch cfg.Driver {
	case ActuatorDriverPigpio:
		a, err := DialPigpio(cfg, servo, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	case ActuatorDriverUDP:
		a, err := NewUDPActuator(cfg.Addr, servo, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	case ActuatorDriverLog:
		return NewLogActuator(log), nil
	default:
		return nil, fmt.Errorf("unknown actuator driver %q", cfg.Driver)
	}
}

// UDPActuator sends the full actuator state as a CSV datagram
// "steering,direction,duty" on every change.
type UDPActuator struct {
	conn     *net.UDPConn
	steering int
	throttle ThrottleCommand
	log      *zap.Logger
	errLog   *rate.Limiter
}

// NewUDPActuator creates a UDP sender for the given address.
func NewUDPActuator(addr string, servo ServoConfig, log *zap.Logger) (*UDPActuator, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	a := &UDPActuator{
		conn:     conn,
		steering: servo.Center,
		log:      log,
		errLog:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	a.send()
	return a, nil
}

// SetSteering implements Actuator.
func (a *UDPActuator) SetSteering(pulseUS int) {
	a.steering = pulseUS
	a.send()
}

// SetThrottle implements Actuator.
func (a *UDPActuator) SetThrottle(dir Direction, duty int) {
	a.throttle = ThrottleCommand{Direction: dir, Duty: duty}
	a.send()
}

// Close releases the UDP socket.
func (a *UDPActuator) Close() error {
	if a == nil || a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

func (a *UDPActuator) send() {
	if a == nil || a.conn == nil {
		return
	}
	payload := fmt.Sprintf("%d,%s,%d", a.steering, a.throttle.Direction, a.throttle.Duty)
	if _, err := a.conn.Write([]byte(payload)); err != nil && a.errLog.Allow() {
		a.log.Warn("actuator send failed", zap.Error(err))
	}
}

// LogActuator only logs commands. Used for dry runs without hardware.
type LogActuator struct {
	log *zap.Logger
}

// NewLogActuator constructs a logging actuator.
func NewLogActuator(log *zap.Logger) *LogActuator {
	return &LogActuator{log: log.Named("actuator")}
}

// SetSteering implements Actuator.
func (a *LogActuator) SetSteering(pulseUS int) {
	a.log.Debug("steering", zap.Int("pulse_us", pulseUS))
}

// SetThrottle implements Actuator.
func (a *LogActuator) SetThrottle(dir Direction, duty int) {
	a.log.Debug("throttle", zap.Stringer("direction", dir), zap.Int("duty", duty))
}

// Close implements Actuator.
func (a *LogActuator) Close() error { return nil }
