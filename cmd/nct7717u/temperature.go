package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/thermal/cmd/nct7717u/console"
	"github.com/mklimuk/thermal/environment"
)

var tempCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "read the temperature",
	Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
		temp, err := s.sensor.GetTemperature(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "error getting temperature read: %s", console.Red(err))
		}
		console.Printf("%s %s\n", console.PictoThermometer, console.White(formatTemp(temp)))
		return nil
	}),
}

var idCmd = cli.Command{
	Name:  "id",
	Usage: "read chip, vendor and device identification",
	Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
		if err := printIdentity(ctx, s.sensor); err != nil {
			return console.Exit(console.ExitFailure, "error reading identification: %s", console.Red(err))
		}
		return nil
	}),
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "dump all readable registers as YAML",
	Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
		status, err := s.sensor.Status(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "sensor communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(console.Output())
		defer func() { _ = enc.Close() }()
		if err := enc.Encode(status); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	}),
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "print identification and poll the temperature until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "polling interval (defaults to poll_interval from config)",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "stop after this many readings, 0 polls forever",
		},
	},
	Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
		interval := s.cfg.PollInterval
		if c.IsSet("interval") {
			interval = c.Duration("interval")
		}
		if err := printIdentity(ctx, s.sensor); err != nil {
			return console.Exit(console.ExitFailure, "error reading identification: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		count := c.Int("count")
		readings := 0
		err := environment.Poll(ctx, s.sensor, interval, func(temp float32, err error) {
			readings++
			if count > 0 && readings >= count {
				cancel()
			}
			if err != nil {
				console.Errorf("temperature read failed: %s", err)
				return
			}
			line := fmt.Sprintf("%s %s %s", console.Cyan(time.Now().Format(time.TimeOnly)), console.PictoThermometer, console.White(formatTemp(temp)))
			if s.pin != nil {
				if asserted, err := s.sensor.AlertAsserted(ctx); err == nil && asserted {
					line += " " + console.PictoBell
				}
			}
			console.Print(line)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(console.ExitFailure, "watch error: %s", console.Red(err))
		}
		return nil
	}),
}

var oneShotCmd = cli.Command{
	Name:  "oneshot",
	Usage: "trigger a single conversion (takes effect while monitoring is stopped)",
	Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
		if err := s.sensor.OneShotConversion(ctx); err != nil {
			return console.Exit(console.ExitFailure, "one-shot error: %s", console.Red(err))
		}
		conf, err := s.sensor.GetConfiguration(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "error reading configuration: %s", console.Red(err))
		}
		if !conf.MonitoringStopped() {
			console.Warnf("monitoring is running, one-shot has no effect")
		}
		console.Infof("one-shot conversion triggered")
		return nil
	}),
}

func printIdentity(ctx context.Context, sensor *environment.NCT7717U) error {
	cid, err := sensor.GetChipID(ctx)
	if err != nil {
		return err
	}
	vid, err := sensor.GetVendorID(ctx)
	if err != nil {
		return err
	}
	did, err := sensor.GetDeviceID(ctx)
	if err != nil {
		return err
	}
	console.PInfof(console.PictoChip, "%s", sensor)
	console.Field("chip id", fmt.Sprintf("%#02x", cid))
	console.Field("vendor id", fmt.Sprintf("%#02x", vid))
	console.Field("device id", fmt.Sprintf("%#02x", did))
	return nil
}

func formatTemp(temp float32) string {
	return fmt.Sprintf("%.0f°C", temp)
}
