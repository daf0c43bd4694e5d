package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/5l1v3r1/homeicu/cmd/homeicu/console"
	"github.com/5l1v3r1/homeicu/fifo"
	"github.com/5l1v3r1/homeicu/oximeter"
)

var oximeterCmd = cli.Command{
	Name:    "oximeter",
	Aliases: []string{"oxi"},
	Subcommands: cli.Commands{
		&oximeterIDCmd,
		&oximeterResetCmd,
		&oximeterTempCmd,
		&oximeterDrainCmd,
	},
}

var oximeterIDCmd = cli.Command{
	Name:  "id",
	Usage: "read the part and revision identifiers",
	Flags: adapterFlags(),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := oximeter.NewMAX3010x(bus)
		id, err := s.PartID(ctx)
		if err != nil {
			return console.Exit(1, "error reading part ID: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "part ID: %s", console.White(id))
		return nil
	},
}

var oximeterResetCmd = cli.Command{
	Name:  "reset",
	Usage: "soft-reset the front end to power-on defaults",
	Flags: adapterFlags(),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		answer, err := console.YesOrNo("reset discards the current configuration, continue?")
		if err != nil || answer != console.Yes {
			return nil
		}
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := oximeter.NewMAX3010x(bus)
		if err = s.SoftReset(ctx); err != nil {
			return console.Exit(1, "reset error: %s", console.Red(err))
		}
		console.Print("front end reset")
		return nil
	},
}

var oximeterTempCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "read the die temperature",
	Flags:   adapterFlags(),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := oximeter.NewMAX3010x(bus)
		temp, err := s.ReadTemperature(ctx)
		if err != nil {
			return console.Exit(1, "error reading temperature: %s", console.Red(err))
		}
		console.PInfof(console.PictoThermometer, "%s", console.White(temp))
		return nil
	},
}

var oximeterDrainCmd = cli.Command{
	Name:  "drain",
	Usage: "configure the front end and drain samples for a while",
	Flags: append(adapterFlags(),
		&cli.DurationFlag{
			Name:  "for",
			Value: 2 * time.Second,
		},
	),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := oximeter.NewMAX3010x(bus)
		if err = s.Configure(ctx, oximeter.DefaultOptions()); err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if err = s.Start(ctx); err != nil {
			return console.Exit(1, "start error: %s", console.Red(err))
		}
		defer func() { _ = s.Stop(ctx) }()

		total := 0
		deadline := time.Now().Add(c.Duration("for"))
		for time.Now().Before(deadline) {
			n, err := s.DrainFIFO(ctx)
			if err != nil {
				console.Errorf("drain error: %s", console.Red(err))
				break
			}
			total += n
			time.Sleep(10 * time.Millisecond)
		}
		console.PInfof(console.PictoHeart, "%s samples", console.White(total))
		if sample, ok := s.Stream(fifo.ChannelRed).PeekNewest(); ok {
			console.Printf("red: %d\n", sample.Value)
		}
		if sample, ok := s.Stream(fifo.ChannelIR).PeekNewest(); ok {
			console.Printf("ir:  %d\n", sample.Value)
		}
		return nil
	},
}
