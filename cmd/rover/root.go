package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ball-rover/rover"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     rover.AppConfig
}

func newRootCommand() *cobra.Command {
	a := &app{v: rover.NewViper()}

	root := &cobra.Command{
		Use:          "rover",
		Short:        "Drive the rover by joystick or let it chase a colored ball.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rover.LoadConfigWith(a.v, a.cfgFile)
			if err != nil {
				rover.InitStdoutLogger(rover.DefaultConfig().Log)
				return err
			}
			a.cfg = cfg
			rover.InitStdoutLogger(cfg.Log)
			rover.L().Debug("config loaded", zap.String("file", a.v.ConfigFileUsed()), zap.String("version", version))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./rover.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "log format: console|json")
	bindFlag(a.v, root, "log.level", "log-level")
	bindFlag(a.v, root, "log.format", "log-format")
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.AddCommand(newRunCommand(a), newDetectCommand(a), newVersionCommand())
	return root
}

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rover.RunLive(cmd.Context(), a.cfg)
		},
	}
	flags := cmd.Flags()
	flags.String("actuator", "", "actuator driver: pigpio|udp|log")
	flags.String("actuator-addr", "", "pigpiod or UDP address (host:port)")
	flags.String("camera", "", "camera source: pipe|replay|gocv|none")
	flags.String("camera-dir", "", "image directory for the replay camera")
	flags.String("joystick", "", "joystick device path")
	flags.Bool("start-auto", false, "enter AUTO immediately after startup")
	flags.Bool("viz", false, "serve live values on /debug/vars")
	bindFlag(a.v, cmd, "actuator.driver", "actuator")
	bindFlag(a.v, cmd, "actuator.addr", "actuator-addr")
	bindFlag(a.v, cmd, "camera.source", "camera")
	bindFlag(a.v, cmd, "camera.dir", "camera-dir")
	bindFlag(a.v, cmd, "joystick.device", "joystick")
	bindFlag(a.v, cmd, "loop.start_auto", "start-auto")
	bindFlag(a.v, cmd, "viz.enabled", "viz")
	return cmd
}

func newDetectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect IMAGE...",
		Short: "Run perception on still images and print the command AUTO would issue.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perceiver, err := rover.NewPerceiver(a.cfg.Perception)
			if err != nil {
				return err
			}
			mapper := rover.NewMapper(a.cfg.Servo, a.cfg.Drive, a.cfg.Joystick.Deadzone)
			out := cmd.OutOrStdout()
			for _, path := range args {
				frame, err := rover.LoadFrame(path, a.cfg.Camera.Width, a.cfg.Camera.Height)
				if err != nil {
					return err
				}
				est := perceiver.Perceive(frame)
				if !est.Found {
					fmt.Fprintf(out, "%s found=false\n", path)
					continue
				}
				c, latch := mapper.Auto(est, frame.Bounds().Dx())
				fmt.Fprintf(out, "%s found=true cx=%.1f radius=%.1f steering=%d throttle=%s@%d latch=%t\n",
					path, est.CenterX, est.Radius, c.SteeringPulse, c.Throttle.Direction, c.Throttle.Duty, latch)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
	// No config or logger needed.
	cmd.PersistentPreRun = func(*cobra.Command, []string) {}
	return cmd
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
