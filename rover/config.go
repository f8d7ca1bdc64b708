package rover

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// LoopConfig controls the control loop cadence.
type LoopConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	StartAuto    bool          `mapstructure:"start_auto"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Loop       LoopConfig       `mapstructure:"loop"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Joystick   JoystickConfig   `mapstructure:"joystick"`
	Servo      ServoConfig      `mapstructure:"servo"`
	Drive      DriveConfig      `mapstructure:"drive"`
	Perception PerceptionConfig `mapstructure:"perception"`
	Actuator   ActuatorConfig   `mapstructure:"actuator"`
	Log        LogConfig        `mapstructure:"log"`
	Viz        VizConfig        `mapstructure:"viz"`
}

// DefaultConfig returns the stock robot configuration.
func DefaultConfig() AppConfig {
	return AppConfig{
		Loop: LoopConfig{TickInterval: 500 * time.Microsecond},
		Camera: CameraConfig{
			Source:   CameraSourcePipe,
			Width:    320,
			Height:   240,
			Command:  defaultCameraCommand,
			Pipeline: defaultCameraPipeline,
			FPS:      30,

			StartTimeout: 5 * time.Second,
		},
		Joystick: JoystickConfig{
			Device:       "/dev/input/js0",
			ThrottleAxis: 1,
			SteeringAxis: 3,
			ModeButton:   0,
			Deadzone:     4000,
		},
		Servo: ServoConfig{Center: 1850, Range: 500},
		Drive: DriveConfig{AutoDuty: 240, RadiusThreshold: 100},
		Perception: PerceptionConfig{
			Backend:          PerceptionBackendNative,
			HueMin:           25,
			HueMax:           45,
			SatMin:           100,
			SatMax:           255,
			ValMin:           100,
			ValMax:           255,
			MinRadius:        5,
			ErodeIterations:  1,
			DilateIterations: 1,
		},
		Actuator: ActuatorConfig{
			Driver:      ActuatorDriverPigpio,
			Addr:        "127.0.0.1:8888",
			DialTimeout: 2 * time.Second,
			IOTimeout:   20 * time.Millisecond,
			Pins:        PinConfig{PWM: 18, In1: 23, In2: 24, Servo: 25},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Viz: VizConfig{Addr: "127.0.0.1:7070"},
	}
}

// SetDefaults registers every configuration key on v so that environment
// overrides resolve even when no config file is present.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("loop.tick_interval", d.Loop.TickInterval)
	v.SetDefault("loop.start_auto", d.Loop.StartAuto)

	v.SetDefault("camera.source", d.Camera.Source)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.command", d.Camera.Command)
	v.SetDefault("camera.pipeline", d.Camera.Pipeline)
	v.SetDefault("camera.dir", d.Camera.Dir)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("camera.start_timeout", d.Camera.StartTimeout)

	v.SetDefault("joystick.device", d.Joystick.Device)
	v.SetDefault("joystick.throttle_axis", d.Joystick.ThrottleAxis)
	v.SetDefault("joystick.steering_axis", d.Joystick.SteeringAxis)
	v.SetDefault("joystick.mode_button", d.Joystick.ModeButton)
	v.SetDefault("joystick.deadzone", d.Joystick.Deadzone)

	v.SetDefault("servo.center", d.Servo.Center)
	v.SetDefault("servo.range", d.Servo.Range)

	v.SetDefault("drive.auto_duty", d.Drive.AutoDuty)
	v.SetDefault("drive.radius_threshold", d.Drive.RadiusThreshold)
	v.SetDefault("drive.stop_on_lost_target", d.Drive.StopOnLostTarget)

	v.SetDefault("perception.backend", d.Perception.Backend)
	v.SetDefault("perception.hue_min", d.Perception.HueMin)
	v.SetDefault("perception.hue_max", d.Perception.HueMax)
	v.SetDefault("perception.sat_min", d.Perception.SatMin)
	v.SetDefault("perception.sat_max", d.Perception.SatMax)
	v.SetDefault("perception.val_min", d.Perception.ValMin)
	v.SetDefault("perception.val_max", d.Perception.ValMax)
	v.SetDefault("perception.min_radius", d.Perception.MinRadius)
	v.SetDefault("perception.erode_iterations", d.Perception.ErodeIterations)
	v.SetDefault("perception.dilate_iterations", d.Perception.DilateIterations)

	v.SetDefault("actuator.driver", d.Actuator.Driver)
	v.SetDefault("actuator.addr", d.Actuator.Addr)
	v.SetDefault("actuator.dial_timeout", d.Actuator.DialTimeout)
	v.SetDefault("actuator.io_timeout", d.Actuator.IOTimeout)
	v.SetDefault("actuator.pins.pwm", d.Actuator.Pins.PWM)
	v.SetDefault("actuator.pins.in1", d.Actuator.Pins.In1)
	v.SetDefault("actuator.pins.in2", d.Actuator.Pins.In2)
	v.SetDefault("actuator.pins.servo", d.Actuator.Pins.Servo)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.caller", d.Log.Caller)

	v.SetDefault("viz.enabled", d.Viz.Enabled)
	v.SetDefault("viz.addr", d.Viz.Addr)
}

// NewViper returns a viper instance with defaults and ROVER_ env overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ROVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the config file at path (or ./rover.{yaml,json} when path
// is empty) on top of the defaults.
func LoadConfig(path string) (AppConfig, error) {
	return LoadConfigWith(NewViper(), path)
}

// LoadConfigWith is LoadConfig on a caller-supplied viper, typically one with
// CLI flags already bound.
func LoadConfigWith(v *viper.Viper, path string) (AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("rover")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c AppConfig) Validate() error {
	if c.Loop.TickInterval <= 0 {
		return invalid("loop.tick_interval must be > 0")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return invalid("camera.width and camera.height must be > 0")
	}
	switch c.Camera.Source {
	case CameraSourcePipe, CameraSourceReplay, CameraSourceGoCV, CameraSourceNone:
	default:
		return invalid("camera.source %q is not one of pipe|replay|gocv|none", c.Camera.Source)
	}
	if c.Camera.StartTimeout < 0 {
		return invalid("camera.start_timeout must be >= 0")
	}
	if c.Camera.Source == CameraSourceReplay && c.Camera.Dir == "" {
		return invalid("camera.dir must be set for the replay source")
	}
	if c.Joystick.ThrottleAxis == c.Joystick.SteeringAxis {
		return invalid("joystick.throttle_axis and joystick.steering_axis must differ")
	}
	if c.Joystick.Deadzone < 0 || c.Joystick.Deadzone >= axisMax {
		return invalid("joystick.deadzone must be in [0, %d)", axisMax)
	}
	if c.Servo.Range < 0 || c.Servo.Center-c.Servo.Range < 0 {
		return invalid("servo.range must be >= 0 and <= servo.center")
	}
	if c.Drive.AutoDuty < 0 || c.Drive.AutoDuty > maxDuty {
		return invalid("drive.auto_duty must be between 0 and %d", maxDuty)
	}
	if c.Drive.RadiusThreshold <= 0 {
		return invalid("drive.radius_threshold must be > 0")
	}
	if err := c.Perception.validate(); err != nil {
		return err
	}
	switch c.Actuator.Driver {
	case ActuatorDriverPigpio, ActuatorDriverUDP:
		if c.Actuator.Addr == "" {
			return invalid("actuator.addr must be set for the %s driver", c.Actuator.Driver)
		}
	case ActuatorDriverLog:
	default:
		return invalid("actuator.driver %q is not one of pigpio|udp|log", c.Actuator.Driver)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
