package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/adapter"
	"github.com/5l1v3r1/homeicu/i2c"
)

func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   "mcp2221",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "bus device for the periph adapter, e.g. /dev/i2c-1",
		},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	}
}

func busFromFlags(c *cli.Context) (homeicu.I2CBus, error) {
	switch c.String("adapter") {
	case "mcp2221":
		return adapter.NewMCP2221(slog.Default()), nil
	case "periph":
		return i2c.NewGenericBus(c.String("device"))
	default:
		return nil, fmt.Errorf("unknown adapter %s", c.String("adapter"))
	}
}
