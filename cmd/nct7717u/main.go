package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/thermal/cmd/nct7717u/console"
	"github.com/mklimuk/thermal/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	err := newApp().Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			console.Error(exerr.Error())
			return exerr.ExitCode()
		}
		console.Errorf("unexpected error: %s", err)
		return console.ExitFailure
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "nct7717u"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "NCT7717U temperature sensor cli"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file",
			EnvVars: []string{"NCT7717U_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   fmt.Sprintf("bus adapter (%s, %s, %s, %s)", config.AdapterPeriph, config.AdapterGobot, config.AdapterMCP2221, config.AdapterSim),
			Value:   config.AdapterPeriph,
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "periph i2c bus name, empty for the first bus",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "gobot i2c bus number",
		},
		&cli.StringFlag{
			Name:  "address",
			Usage: "sensor i2c address (hex)",
			Value: "0x48",
		},
		&cli.Int64Flag{
			Name:  "frequency",
			Usage: "i2c bus frequency in Hz",
			Value: 400_000,
		},
		&cli.StringFlag{
			Name:  "alert-pin",
			Usage: "ALERT input: periph gpio name or gp0..gp3 on mcp2221",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log rejected driver parameters",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and bus tracing",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	// errors are reported by run
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Commands = cli.Commands{
		&tempCmd,
		&idCmd,
		&statusCmd,
		&watchCmd,
		&oneShotCmd,
		&configCmd,
		&rateCmd,
		&alertCmd,
		&dataLogCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	return app
}
