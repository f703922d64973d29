// Command sensordiag is a thin diagnostic companion to sensord: it
// enumerates I2C/HID adapters and can dump a single raw sensor read,
// without starting the daemon's store or HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/sensord/adapter"
	"github.com/mklimuk/sensord/console"
	"github.com/mklimuk/sensord/transport"
)

func main() {
	app := &cli.App{
		Name:  "sensordiag",
		Usage: "diagnostic companion to sensord",
		Commands: []*cli.Command{
			&usbLsCmd,
			&mcp2221StatusCmd,
			&readCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			console.Error(ec.Error())
			os.Exit(ec.ExitCode())
		}
		console.Error(err.Error())
		os.Exit(1)
	}
}

var usbLsCmd = cli.Command{
	Name:  "usb-ls",
	Usage: "list connected HID devices (e.g. the MCP2221 USB-to-I2C bridge)",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, '.', tabwriter.AlignRight|tabwriter.Debug)
		for _, d := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", d.Path, d.Serial, d.VendorID, d.ProductID, d.Manufacturer, d.Product)
		}
		return w.Flush()
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "mcp2221-status",
	Usage: "dump the MCP2221 adapter's I2C transfer bookkeeping",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.Status(context.Background())
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", err)
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(status)
	},
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "open the transport and dump a single raw SCD40 reading",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "adapter", Aliases: []string{"a"}, Value: "native"},
		&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Value: "/dev/i2c-1"},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: 5 * time.Second},
	},
	Action: func(c *cli.Context) error {
		cfg := transport.Config{
			DevicePath:        c.String("device"),
			ConnectionTimeout: c.Duration("timeout"),
			MaxRetries:        1,
		}
		if c.String("adapter") == "mcp2221" {
			cfg.OpenBus = func(string) (transport.I2CBus, error) {
				ad := adapter.NewMCP2221()
				if err := ad.Init(); err != nil {
					return nil, fmt.Errorf("mcp2221 init: %w", err)
				}
				return ad, nil
			}
		}

		t := transport.New(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
		defer cancel()

		if err := t.Initialize(ctx); err != nil {
			return console.Exit(1, "transport initialization error: %s", err)
		}
		defer t.Shutdown(context.Background())

		reading, err := t.ReadSensor(ctx)
		if err != nil {
			return console.Exit(1, "sensor read error: %s", err)
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(reading)
	},
}
