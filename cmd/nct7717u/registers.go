package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/thermal/cmd/nct7717u/console"
	"github.com/mklimuk/thermal/environment"
)

var yesFlag = &cli.BoolFlag{
	Name:    "yes",
	Aliases: []string{"y"},
	Usage:   "do not ask for confirmation",
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "configuration register (alert mask, stop monitoring, fault queue)",
	Subcommands: cli.Commands{
		{
			Name: "get",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				conf, err := s.sensor.GetConfiguration(ctx)
				if err != nil {
					return console.Exit(console.ExitFailure, "error reading configuration: %s", console.Red(err))
				}
				console.Field("configuration", conf)
				return nil
			}),
		},
		{
			Name:      "set",
			ArgsUsage: "<hex>",
			Flags:     []cli.Flag{yesFlag},
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				v, err := parseHexByte(c.Args().First())
				if err != nil {
					return console.Exit(console.ExitUsage, "invalid configuration value: %s", console.Red(err))
				}
				conf := environment.Config(v)
				if conf.MonitoringStopped() && !c.Bool("yes") {
					ok, err := console.Confirm(fmt.Sprintf("%s stops temperature monitoring, continue?", conf))
					if err != nil || !ok {
						console.PInfof(console.PictoStop, "aborted")
						return nil
					}
				}
				if err := s.sensor.SetConfiguration(ctx, conf); err != nil {
					return console.Exit(console.ExitFailure, "error writing configuration: %s", console.Red(err))
				}
				console.Field("configuration", conf)
				return nil
			}),
		},
	},
}

var rateCmd = cli.Command{
	Name:  "rate",
	Usage: "conversion rate (0: 0.0625Hz ... 8: 16Hz)",
	Subcommands: cli.Commands{
		{
			Name: "get",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				rate, err := s.sensor.GetConversionRate(ctx)
				if err != nil {
					return console.Exit(console.ExitFailure, "error reading conversion rate: %s", console.Red(err))
				}
				printRate(rate)
				return nil
			}),
		},
		{
			Name:      "set",
			ArgsUsage: "<0-8>",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				v, err := strconv.ParseUint(c.Args().First(), 0, 8)
				if err != nil {
					return console.Exit(console.ExitUsage, "invalid conversion rate %q", c.Args().First())
				}
				rate := environment.ConversionRate(v)
				if err := s.sensor.SetConversionRate(ctx, rate); err != nil {
					return rangeOrBusError("conversion rate", err)
				}
				printRate(rate)
				return nil
			}),
		},
	},
}

var alertCmd = cli.Command{
	Name:  "alert",
	Usage: "alert threshold, mode, status and pin",
	Subcommands: cli.Commands{
		{
			Name:  "threshold",
			Usage: "alert temperature threshold in °C",
			Subcommands: cli.Commands{
				{
					Name: "get",
					Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
						temp, err := s.sensor.GetAlertTemperature(ctx)
						if err != nil {
							return console.Exit(console.ExitFailure, "error reading alert threshold: %s", console.Red(err))
						}
						console.Field("alert threshold", fmt.Sprintf("%d°C", temp))
						return nil
					}),
				},
				{
					Name:      "set",
					ArgsUsage: "<-128..127>",
					Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
						v, err := strconv.ParseInt(c.Args().First(), 10, 8)
						if err != nil {
							return console.Exit(console.ExitUsage, "invalid alert threshold %q", c.Args().First())
						}
						if err := s.sensor.SetAlertTemperature(ctx, int8(v)); err != nil {
							return console.Exit(console.ExitFailure, "error writing alert threshold: %s", console.Red(err))
						}
						console.Field("alert threshold", fmt.Sprintf("%d°C", v))
						return nil
					}),
				},
			},
		},
		{
			Name:  "mode",
			Usage: "alert mode (interrupt or comparator)",
			Subcommands: cli.Commands{
				{
					Name: "get",
					Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
						mode, err := s.sensor.GetAlertMode(ctx)
						if err != nil {
							return console.Exit(console.ExitFailure, "error reading alert mode: %s", console.Red(err))
						}
						console.Field("alert mode", mode)
						return nil
					}),
				},
				{
					Name:      "set",
					ArgsUsage: "<interrupt|comparator>",
					Flags:     []cli.Flag{yesFlag},
					Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
						mode, err := parseAlertMode(c.Args().First())
						if err != nil {
							return console.Exit(console.ExitUsage, "%s", console.Red(err))
						}
						if mode == environment.AlertModeInterrupt && !c.Bool("yes") {
							ok, err := console.Confirm(fmt.Sprintf("interrupt mode also writes register %s, continue?", environment.RegAlertModeAux))
							if err != nil || !ok {
								console.PInfof(console.PictoStop, "aborted")
								return nil
							}
						}
						if err := s.sensor.SetAlertMode(ctx, mode); err != nil {
							return console.Exit(console.ExitFailure, "error writing alert mode: %s", console.Red(err))
						}
						console.Field("alert mode", mode)
						return nil
					}),
				},
			},
		},
		{
			Name:  "status",
			Usage: "1 while the temperature is above the threshold",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				status, err := s.sensor.GetAlertStatus(ctx)
				if err != nil {
					return console.Exit(console.ExitFailure, "error reading alert status: %s", console.Red(err))
				}
				if status == 1 {
					console.PInfof(console.PictoBell, "alert status: %s", console.Yellow(status))
					return nil
				}
				console.Field("alert status", status)
				return nil
			}),
		},
		{
			Name:  "pin",
			Usage: "level of the ALERT pin given with --alert-pin",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				asserted, err := s.sensor.AlertAsserted(ctx)
				if errors.Is(err, environment.ErrNoAlertPin) {
					return console.Exit(console.ExitUsage, "no alert pin configured, use --alert-pin")
				}
				if err != nil {
					return console.Exit(console.ExitFailure, "error reading alert pin: %s", console.Red(err))
				}
				console.PInfof(console.PictoPin, "alert pin asserted: %s", console.White(asserted))
				return nil
			}),
		},
	},
}

var dataLogCmd = cli.Command{
	Name:  "log",
	Usage: "general purpose data log slots 1..3",
	Subcommands: cli.Commands{
		{
			Name:      "get",
			ArgsUsage: "<1-3>",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				i, err := strconv.Atoi(c.Args().First())
				if err != nil {
					return console.Exit(console.ExitUsage, "invalid data log index %q", c.Args().First())
				}
				v, err := s.sensor.GetDataLog(ctx, i)
				if err != nil {
					return rangeOrBusError("data log", err)
				}
				console.PInfof(console.PictoNotebook, "data log %d: %s", i, console.White(fmt.Sprintf("%#02x", v)))
				return nil
			}),
		},
		{
			Name:      "set",
			ArgsUsage: "<1-3> <hex>",
			Action: withSensor(func(ctx context.Context, c *cli.Context, s *session) error {
				i, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(console.ExitUsage, "invalid data log index %q", c.Args().Get(0))
				}
				v, err := parseHexByte(c.Args().Get(1))
				if err != nil {
					return console.Exit(console.ExitUsage, "invalid data log value: %s", console.Red(err))
				}
				if err := s.sensor.SetDataLog(ctx, i, v); err != nil {
					return rangeOrBusError("data log", err)
				}
				console.PInfof(console.PictoNotebook, "data log %d: %s", i, console.White(fmt.Sprintf("%#02x", v)))
				return nil
			}),
		},
	},
}

func printRate(rate environment.ConversionRate) {
	console.Field("conversion rate", rate)
	console.Field("conversion period", rate.Period())
}

func parseAlertMode(s string) (environment.AlertMode, error) {
	switch strings.ToLower(s) {
	case "interrupt", "0":
		return environment.AlertModeInterrupt, nil
	case "comparator", "1":
		return environment.AlertModeComparator, nil
	default:
		return 0, fmt.Errorf("invalid alert mode %q (expected interrupt or comparator)", s)
	}
}

// rangeOrBusError maps rejected parameters to a usage exit code.
func rangeOrBusError(param string, err error) error {
	if errors.Is(err, environment.ErrOutOfRange) {
		return console.Exit(console.ExitUsage, "invalid %s: %s", param, console.Red(err))
	}
	return console.Exit(console.ExitFailure, "error accessing %s: %s", param, console.Red(err))
}
