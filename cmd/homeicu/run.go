package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/accel"
	"github.com/5l1v3r1/homeicu/adapter"
	"github.com/5l1v3r1/homeicu/cmd/homeicu/console"
	"github.com/5l1v3r1/homeicu/config"
	"github.com/5l1v3r1/homeicu/event"
	"github.com/5l1v3r1/homeicu/gpio"
	"github.com/5l1v3r1/homeicu/i2c"
	"github.com/5l1v3r1/homeicu/oximeter"
	"github.com/5l1v3r1/homeicu/sched"
	"github.com/5l1v3r1/homeicu/telemetry"
)

// polled lines have no interrupt pin, so edges are synthesized by
// sampling at this interval
const buttonPollInterval = 20 * time.Millisecond

var runCmd = cli.Command{
	Name:  "run",
	Usage: "run the acquisition loop",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "homeicu.yaml",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var transport homeicu.I2CBus
		var mcp *adapter.MCP2221
		needBus := cfg.Oximeter.Driver == "max3010x" || cfg.Motion.Enabled || cfg.Battery.Enabled || cfg.Button.Enabled
		if needBus {
			switch cfg.Bus.Driver {
			case "mcp2221":
				mcp = adapter.NewMCP2221(slog.Default())
				transport = mcp
			case "periph":
				bus, err := i2c.NewGenericBus(cfg.Bus.Device)
				if err != nil {
					return console.Exit(1, "bus initialization error: %s", console.Red(err))
				}
				defer func() { _ = bus.Close() }()
				transport = bus
			default:
				return console.Exit(1, "unknown bus driver %s", console.Red(cfg.Bus.Driver))
			}
		}

		var oxi oximeter.Oximeter
		switch cfg.Oximeter.Driver {
		case "max3010x":
			oxi = oximeter.NewMAX3010x(transport)
		case "afe4490":
			var spiOpts []func(spi.Config)
			if n, err := strconv.Atoi(cfg.Oximeter.SPIBus); err == nil {
				spiOpts = append(spiOpts, spi.WithBusNumber(n))
			}
			afe := oximeter.NewAFE4490(raspi.NewAdaptor(), "AFE4490", spiOpts...)
			oxi = afe
		case "null":
			oxi = oximeter.NewNull()
		default:
			return console.Exit(1, "unknown oximeter driver %s", console.Red(cfg.Oximeter.Driver))
		}

		opts := []sched.Option{
			sched.WithLogger(slog.Default()),
			sched.WithOximeterOptions(cfg.OximeterOptions()),
			sched.WithLoopInterval(cfg.LoopInterval.Std()),
			sched.WithTemperatureInterval(cfg.TemperatureInterval.Std()),
		}
		if cfg.Motion.Enabled && transport != nil {
			opts = append(opts, sched.WithMotion(accel.NewMMA8452(transport), cfg.MotionOptions()))
		}
		if cfg.Battery.Enabled && mcp != nil {
			opts = append(opts,
				sched.WithBattery(mcp.ADC(1), cfg.BatteryTable()),
				sched.WithBatteryInterval(cfg.Battery.Interval.Std()),
			)
		}

		var line event.LineFunc
		if cfg.Button.Enabled {
			switch {
			case mcp != nil:
				line = mcp.InputLine(cfg.Button.Pin, cfg.Button.ActiveLow)
			case transport != nil:
				expander := gpio.NewMCP23017(transport, gpio.DefaultMCP23017Address)
				l, err := expander.InputLine(ctx, gpio.PortA, cfg.Button.Pin, cfg.Button.ActiveLow)
				if err != nil {
					slog.Warn("button expander initialization failed", "error", err)
					break
				}
				line = l.Func()
			}
			if line != nil {
				opts = append(opts, sched.WithButtonLine(line,
					event.WithSettleDelay(cfg.ButtonSettleDelay.Std())))
			}
		}

		if cfg.Telemetry.Enabled {
			pub, err := telemetry.NewMQTT(telemetry.Options{
				Broker:   cfg.Telemetry.Broker,
				ClientID: cfg.Telemetry.ClientID,
				Topic:    cfg.Telemetry.Topic,
			}, slog.Default())
			if err != nil {
				slog.Warn("telemetry disabled", "error", err)
			} else {
				defer pub.Close()
				opts = append(opts, sched.WithPublisher(pub))
			}
		}

		s := sched.New(oxi, opts...)
		if err := s.Init(ctx); err != nil {
			return console.Exit(1, "initialization error: %s", console.Red(err))
		}
		if n := s.StartupErrors(); n > 0 {
			slog.Warn("running with degraded devices", "failures", n)
		}
		if b := s.Button(); b != nil {
			go pollButtonEdges(ctx, line, b)
		}

		slog.Info("acquisition loop starting",
			"oximeter", cfg.Oximeter.Driver, "bus", cfg.Bus.Driver)
		err = s.Run(ctx)
		if err != nil && err != context.Canceled {
			return console.Exit(1, "acquisition loop error: %s", console.Red(err))
		}
		slog.Info("acquisition loop stopped")
		return nil
	},
}

// pollButtonEdges samples the line and feeds rising transitions to the
// debounced edge source.
func pollButtonEdges(ctx context.Context, line event.LineFunc, b *event.Button) {
	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()
	last := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			asserted := line()
			if asserted && !last {
				b.Edge()
			}
			last = asserted
		}
	}
}
