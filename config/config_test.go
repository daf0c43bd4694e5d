package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/homeicu/accel"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "max3010x", cfg.Oximeter.Driver)
	assert.Equal(t, 2, cfg.Oximeter.LEDMode)
	assert.Equal(t, 10*time.Second, cfg.Battery.Interval.Std())
}

func TestLoad_OverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oximeter:
  driver: afe4490
  power_level: 0x14
battery:
  interval: 30s
  table:
    - raw: 1000
      percent: 0
    - raw: 2000
      percent: 100
motion:
  enabled: true
  scale: 8
  rate: 100
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "afe4490", cfg.Oximeter.Driver)
	assert.Equal(t, byte(0x14), cfg.Oximeter.PowerLevel)
	// untouched sections keep their defaults
	assert.Equal(t, 200, cfg.Oximeter.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.Battery.Interval.Std())

	table := cfg.BatteryTable()
	require.Len(t, table, 2)
	assert.InDelta(t, 50.0, table.Lookup(1500), 0.001)

	motion := cfg.MotionOptions()
	assert.Equal(t, accel.Scale8G, motion.Scale)
	assert.Equal(t, accel.Rate100Hz, motion.Rate)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loop_interval: fast\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_BatteryTableFallback(t *testing.T) {
	cfg := Default()
	table := cfg.BatteryTable()
	require.NotEmpty(t, table)
	assert.InDelta(t, 0.0, table.Lookup(0), 0.001)
	assert.InDelta(t, 100.0, table.Lookup(5000), 0.001)
}
