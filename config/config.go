// Package config loads the acquisition configuration from a YAML file.
// Every field has a default mirroring the firmware power-on setup, so an
// empty or missing file yields a working configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/5l1v3r1/homeicu/accel"
	"github.com/5l1v3r1/homeicu/battery"
	"github.com/5l1v3r1/homeicu/oximeter"
)

// Duration parses YAML scalars like "10s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Bus struct {
	// Driver selects the transport: "periph" for a native I2C bus,
	// "mcp2221" for the USB adapter.
	Driver string `yaml:"driver"`
	// Device is the bus name for the periph driver, e.g. "/dev/i2c-1".
	Device string `yaml:"device"`
}

type Oximeter struct {
	// Driver selects the front end: "max3010x", "afe4490" or "null".
	Driver string `yaml:"driver"`
	// SPIBus names the bus for the afe4490 driver.
	SPIBus        string `yaml:"spi_bus"`
	PowerLevel    byte   `yaml:"power_level"`
	SampleAverage int    `yaml:"sample_average"`
	LEDMode       int    `yaml:"led_mode"`
	SampleRate    int    `yaml:"sample_rate"`
	PulseWidth    int    `yaml:"pulse_width"`
	ADCRange      int    `yaml:"adc_range"`
	RingCapacity  int    `yaml:"ring_capacity"`
}

type Motion struct {
	Enabled      bool `yaml:"enabled"`
	Scale        int  `yaml:"scale"`
	Rate         int  `yaml:"rate"`
	RingCapacity int  `yaml:"ring_capacity"`
}

type CalibrationPoint struct {
	Raw     uint16  `yaml:"raw"`
	Percent float32 `yaml:"percent"`
}

type Battery struct {
	Enabled  bool               `yaml:"enabled"`
	Interval Duration           `yaml:"interval"`
	Table    []CalibrationPoint `yaml:"table"`
}

type Button struct {
	Enabled bool `yaml:"enabled"`
	// Pin is the GPIO pin on the adapter (mcp2221) or the expander
	// (periph bus with an MCP23017).
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type Config struct {
	Bus                 Bus       `yaml:"bus"`
	Oximeter            Oximeter  `yaml:"oximeter"`
	Motion              Motion    `yaml:"motion"`
	Battery             Battery   `yaml:"battery"`
	Button              Button    `yaml:"button"`
	Telemetry           Telemetry `yaml:"telemetry"`
	LoopInterval        Duration  `yaml:"loop_interval"`
	TemperatureInterval Duration  `yaml:"temperature_interval"`
	ButtonSettleDelay   Duration  `yaml:"button_settle_delay"`
}

func Default() Config {
	oxi := oximeter.DefaultOptions()
	return Config{
		Bus: Bus{Driver: "periph", Device: ""},
		Oximeter: Oximeter{
			Driver:        "max3010x",
			PowerLevel:    oxi.PowerLevel,
			SampleAverage: oxi.SampleAverage,
			LEDMode:       oxi.LEDMode,
			SampleRate:    oxi.SampleRate,
			PulseWidth:    oxi.PulseWidth,
			ADCRange:      oxi.ADCRange,
		},
		Motion: Motion{
			Enabled: true,
			Scale:   int(accel.Scale2G),
			Rate:    800,
		},
		Battery: Battery{
			Enabled:  true,
			Interval: Duration(10 * time.Second),
		},
		Button: Button{
			Enabled:   true,
			Pin:       0,
			ActiveLow: true,
		},
		Telemetry: Telemetry{
			Broker:   "tcp://localhost:1883",
			ClientID: "homeicu",
			Topic:    "homeicu/vitals",
		},
		LoopInterval:        Duration(10 * time.Millisecond),
		TemperatureInterval: Duration(5 * time.Second),
		ButtonSettleDelay:   Duration(100 * time.Millisecond),
	}
}

// Load reads path and overlays it on the defaults. A missing file is not
// an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("could not read config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, nil
}

// OximeterOptions converts the oximeter section into driver options.
func (c Config) OximeterOptions() oximeter.Options {
	return oximeter.Options{
		PowerLevel:    c.Oximeter.PowerLevel,
		SampleAverage: c.Oximeter.SampleAverage,
		LEDMode:       c.Oximeter.LEDMode,
		SampleRate:    c.Oximeter.SampleRate,
		PulseWidth:    c.Oximeter.PulseWidth,
		ADCRange:      c.Oximeter.ADCRange,
		RingCapacity:  c.Oximeter.RingCapacity,
	}
}

// MotionOptions converts the motion section into accelerometer options.
func (c Config) MotionOptions() accel.MotionOptions {
	o := accel.DefaultMotionOptions()
	switch accel.Scale(c.Motion.Scale) {
	case accel.Scale2G, accel.Scale4G, accel.Scale8G:
		o.Scale = accel.Scale(c.Motion.Scale)
	}
	o.Rate = rateFromHz(c.Motion.Rate)
	o.RingCapacity = c.Motion.RingCapacity
	return o
}

// BatteryTable converts the calibration section, falling back to the
// default discharge curve when empty.
func (c Config) BatteryTable() battery.Table {
	if len(c.Battery.Table) == 0 {
		return battery.DefaultTable()
	}
	table := make(battery.Table, 0, len(c.Battery.Table))
	for _, p := range c.Battery.Table {
		table = append(table, battery.CalibrationPoint{Raw: p.Raw, Percent: p.Percent})
	}
	return table
}

func rateFromHz(hz int) accel.DataRate {
	switch {
	case hz >= 800:
		return accel.Rate800Hz
	case hz >= 400:
		return accel.Rate400Hz
	case hz >= 200:
		return accel.Rate200Hz
	case hz >= 100:
		return accel.Rate100Hz
	case hz >= 50:
		return accel.Rate50Hz
	case hz >= 12:
		return accel.Rate12Hz
	case hz >= 6:
		return accel.Rate6Hz
	default:
		return accel.Rate1Hz
	}
}
