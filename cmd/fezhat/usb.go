package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/fezhat/adapter"
	"github.com/mklimuk/fezhat/cmd/fezhat/console"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "list USB HID devices usable as a bus transport",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name: "ls",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		return w.Flush()
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list attached USB to I2C bridges",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(adapter.VendorID, adapter.ProductID)
		if len(devices) == 0 {
			console.Warnf("no MCP2221 found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tVENDOR\tPRODUCT\tDEVICE\tSERIAL\n")
		for i, dev := range devices {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\tMCP2221\t%s\n", i, dev.VendorID, dev.ProductID, dev.Serial)
		}
		return w.Flush()
	},
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect the MCP2221 USB to I2C bridge",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Value: -1, Usage: "adapter index when several are attached"},
	},
	Subcommands: cli.Commands{
		{
			Name:  "status",
			Usage: "print the I2C engine status",
			Action: mcp2221Action(func(ctx context.Context, a *adapter.MCP2221) (interface{}, error) {
				return a.Status(ctx)
			}),
		},
		{
			Name:  "release",
			Usage: "cancel the current transfer and free the I2C engine",
			Action: mcp2221Action(func(ctx context.Context, a *adapter.MCP2221) (interface{}, error) {
				return a.ReleaseBus(ctx)
			}),
		},
		{
			Name:  "gpio",
			Usage: "print GP0-GP3 values and their power-up settings",
			Action: mcp2221Action(func(ctx context.Context, a *adapter.MCP2221) (interface{}, error) {
				values, err := a.ReadGPIO(ctx)
				if err != nil {
					return nil, err
				}
				params, err := a.GetGPIOParameters(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"values": values, "settings": params}, nil
			}),
		},
	},
}

func mcp2221Action(fn func(ctx context.Context, a *adapter.MCP2221) (interface{}, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := commandContext(c)
		defer cancel()
		var opts []adapter.Option
		if index := c.Int("index"); index >= 0 {
			opts = append(opts, adapter.WithDeviceIndex(index))
		}
		res, err := fn(ctx, adapter.NewMCP2221(opts...))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer func() { _ = enc.Close() }()
		if err = enc.Encode(res); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	}
}
