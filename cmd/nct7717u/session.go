package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/thermal"
	"github.com/mklimuk/thermal/adapter"
	"github.com/mklimuk/thermal/cmd/nct7717u/console"
	"github.com/mklimuk/thermal/config"
	"github.com/mklimuk/thermal/environment"
	"github.com/mklimuk/thermal/gpio"
	"github.com/mklimuk/thermal/i2c"
	"github.com/mklimuk/thermal/snsctx"
)

// session holds the bus and sensor opened for a single command.
type session struct {
	cfg     config.Config
	bus     thermal.I2CBus
	pin     thermal.AlertPin
	sensor  *environment.NCT7717U
	closers []func() error
}

// loadConfig merges the config file (if any) with the flags set on the command line.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.Int("bus")
	}
	if c.IsSet("address") {
		addr, err := parseHexByte(c.String("address"))
		if err != nil {
			return cfg, fmt.Errorf("invalid address: %w", err)
		}
		cfg.Address = addr
	}
	if c.IsSet("frequency") {
		cfg.FrequencyHz = c.Int64("frequency")
	}
	if c.IsSet("alert-pin") {
		cfg.AlertPin = c.String("alert-pin")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	return cfg, cfg.Validate()
}

// withSensor opens a session for the duration of a command action.
func withSensor(action func(ctx context.Context, c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
		}
		ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
		s, err := openSession(ctx, cfg)
		if err != nil {
			return console.Exit(console.ExitFailure, "sensor initialization error: %s", console.Red(err))
		}
		defer func() {
			if err := s.Close(); err != nil {
				slog.Warn("could not close session", "error", err)
			}
		}()
		return action(ctx, c, s)
	}
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	s := &session{cfg: cfg}
	if err := s.openBus(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	opts := []environment.NCT7717UOpt{
		environment.WithAddress(cfg.Address),
		environment.WithFrequency(cfg.Frequency()),
		environment.WithDebug(cfg.Debug),
		environment.WithLogger(snsctx.Logger(ctx)),
	}
	if s.pin != nil {
		opts = append(opts, environment.WithAlertPin(s.pin))
	}
	sensor, err := environment.NewNCT7717U(s.bus, opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.sensor = sensor
	return s, nil
}

func (s *session) openBus(ctx context.Context) error {
	switch s.cfg.Adapter {
	case config.AdapterPeriph:
		bus, err := i2c.NewGenericBus(s.cfg.Device)
		if err != nil {
			return err
		}
		s.bus = bus
		s.closers = append(s.closers, bus.Close)
		return s.openGPIOAlertPin()
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return fmt.Errorf("adaptor connect error: %w", err)
		}
		s.closers = append(s.closers, npi.I2cBusAdaptor.Finalize)
		bus := i2c.NewGobotBus(npi, s.cfg.Bus)
		s.bus = bus
		s.closers = append(s.closers, bus.Close)
		return s.openGPIOAlertPin()
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		if err := bridge.Init(); err != nil {
			return fmt.Errorf("adapter initialization error: %w", err)
		}
		s.bus = bridge
		if s.cfg.AlertPin == "" {
			return nil
		}
		gp, err := parseGP(s.cfg.AlertPin)
		if err != nil {
			return err
		}
		if err := bridge.ConfigureGPIOInput(ctx, gp); err != nil {
			return fmt.Errorf("could not configure alert pin: %w", err)
		}
		pin, err := adapter.NewAlertPin(bridge, gp)
		if err != nil {
			return err
		}
		s.pin = pin
		return nil
	case config.AdapterSim:
		sim := environment.NewNCT7717USimulatorAt(s.cfg.Address)
		s.bus = sim
		if s.cfg.AlertPin != "" {
			s.pin = sim
		}
		return nil
	default:
		return fmt.Errorf("unknown adapter %q", s.cfg.Adapter)
	}
}

func (s *session) openGPIOAlertPin() error {
	if s.cfg.AlertPin == "" {
		return nil
	}
	line, err := gpio.OpenAlertLine(s.cfg.AlertPin)
	if err != nil {
		return err
	}
	s.pin = line
	return nil
}

// Close releases everything opened by the session in reverse order.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// parseHexByte accepts "c1", "0xc1" or "0XC1".
func parseHexByte(s string) (byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%q is not a hex byte", s)
	}
	return byte(v), nil
}

// parseGP maps gp0..gp3 to the MCP2221 GP line number.
func parseGP(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(name), "gp"))
	if err != nil || n < 0 || n > 3 {
		return 0, fmt.Errorf("invalid mcp2221 alert pin %q (expected gp0..gp3)", name)
	}
	return n, nil
}
