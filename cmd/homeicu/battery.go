package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/5l1v3r1/homeicu/adapter"
	"github.com/5l1v3r1/homeicu/battery"
	"github.com/5l1v3r1/homeicu/cmd/homeicu/console"
)

var batteryCmd = cli.Command{
	Name:  "battery",
	Usage: "read the battery voltage through the adapter ADC",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "channel",
			Aliases: []string{"n"},
			Value:   1,
		},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		a := adapter.NewMCP2221(slog.Default())
		raw, err := a.ReadADC(ctx, c.Int("channel"))
		if err != nil {
			return console.Exit(1, "ADC read error: %s", console.Red(err))
		}
		percent := battery.DefaultTable().Lookup(raw)
		console.PInfof(console.PictoBattery, "raw=%d charge=%.0f%%", raw, percent)
		return nil
	},
}
