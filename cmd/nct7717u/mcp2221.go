package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/thermal/adapter"
	"github.com/mklimuk/thermal/cmd/nct7717u/console"
	"github.com/mklimuk/thermal/snsctx"
)

var deviceIndexFlag = &cli.IntFlag{
	Name:  "index",
	Usage: "bridge index as listed by 'usb detect', -1 picks the only one attached",
	Value: -1,
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 bridge diagnostics",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the bridge I2C engine status",
	Flags: []cli.Flag{deviceIndexFlag},
	Action: withBridge(func(ctx context.Context, bridge *adapter.MCP2221) (interface{}, error) {
		return bridge.Status(ctx)
	}),
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and release the bus",
	Flags: []cli.Flag{deviceIndexFlag},
	Action: withBridge(func(ctx context.Context, bridge *adapter.MCP2221) (interface{}, error) {
		return bridge.ReleaseBus(ctx)
	}),
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print GP pin modes and values",
	Flags: []cli.Flag{deviceIndexFlag},
	Action: withBridge(func(ctx context.Context, bridge *adapter.MCP2221) (interface{}, error) {
		return bridge.ReadGPIO(ctx)
	}),
}

// withBridge runs a bridge query and prints its result as YAML.
func withBridge(query func(ctx context.Context, bridge *adapter.MCP2221) (interface{}, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
		bridge := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
		result, err := query(ctx, bridge)
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(console.Output())
		defer func() { _ = enc.Close() }()
		if err := enc.Encode(result); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	}
}
