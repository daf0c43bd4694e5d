package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/5l1v3r1/homeicu/accel"
	"github.com/5l1v3r1/homeicu/cmd/homeicu/console"
)

var motionCmd = cli.Command{
	Name: "motion",
	Subcommands: cli.Commands{
		&motionCheckCmd,
		&motionReadCmd,
	},
}

var motionCheckCmd = cli.Command{
	Name:  "check",
	Usage: "verify the accelerometer answers and report its orientation",
	Flags: adapterFlags(),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := accel.NewMMA8452(bus)
		id, err := s.WhoAmI(ctx)
		if err != nil {
			return console.Exit(1, "error reading accelerometer identity: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "identity: %s", console.White(id))
		orientation, err := s.Orientation(ctx)
		if err != nil {
			return console.Exit(1, "error reading orientation: %s", console.Red(err))
		}
		console.PInfof(console.PictoMotion, "orientation: %s", console.White(orientation))
		return nil
	},
}

var motionReadCmd = cli.Command{
	Name:  "read",
	Usage: "configure the accelerometer and print one reading",
	Flags: adapterFlags(),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, err := busFromFlags(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		s := accel.NewMMA8452(bus)
		if err = s.Configure(ctx, accel.DefaultMotionOptions()); err != nil {
			return console.Exit(1, "error initializing accelerometer: %s", console.Red(err))
		}
		deadline := time.Now().Add(500 * time.Millisecond)
		for {
			ready, err := s.Available(ctx)
			if err != nil {
				return console.Exit(1, "error polling accelerometer: %s", console.Red(err))
			}
			if ready {
				break
			}
			if !time.Now().Before(deadline) {
				return console.Exit(1, "no sample within 500ms")
			}
			time.Sleep(5 * time.Millisecond)
		}
		reading, err := s.Read(ctx)
		if err != nil {
			return console.Exit(1, "error reading accelerometer: %s", console.Red(err))
		}
		console.PInfof(console.PictoMotion, "x=%.3fg y=%.3fg z=%.3fg",
			reading.CX, reading.CY, reading.CZ)
		return nil
	},
}
