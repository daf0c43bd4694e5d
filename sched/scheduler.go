// Package sched runs the acquisition loop: a single cooperative goroutine
// that services pending interrupt flags, drains device FIFOs into the
// sample rings and refreshes the derived-scalar snapshot exposed to
// collaborators. Interrupt sources only set flags; every bus transaction
// happens here, so no two transactions ever race.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/accel"
	"github.com/5l1v3r1/homeicu/battery"
	"github.com/5l1v3r1/homeicu/event"
	"github.com/5l1v3r1/homeicu/fifo"
	"github.com/5l1v3r1/homeicu/oximeter"
)

const (
	defaultLoopInterval        = 10 * time.Millisecond
	defaultBatteryInterval     = 10 * time.Second
	defaultTemperatureInterval = 5 * time.Second
	defaultDrainTimeout        = 250 * time.Millisecond
	drainSpacing               = time.Millisecond
)

// BatterySource reads the raw battery voltage from an ADC line.
type BatterySource interface {
	ReadRaw(ctx context.Context) (uint16, error)
}

// MotionSensor is the slice of the accelerometer driver the loop needs.
type MotionSensor interface {
	Configure(ctx context.Context, o accel.MotionOptions) error
	Available(ctx context.Context) (bool, error)
	Read(ctx context.Context) (accel.Reading, error)
	ReadTap(ctx context.Context) (byte, error)
	Orientation(ctx context.Context) (accel.Orientation, error)
	Stream(ch fifo.Channel) *fifo.Ring
}

// Publisher receives the derived-scalar snapshot once per loop iteration.
// Publish must not block the loop; slow transports drop instead of
// stalling acquisition.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Snapshot is the read-only view of the latest derived scalars, refreshed
// once per iteration.
type Snapshot struct {
	Taken          time.Time         `json:"taken"`
	BatteryPercent float32           `json:"battery_percent"`
	Temperature    float32           `json:"temperature"`
	Red            uint32            `json:"red"`
	IR             uint32            `json:"ir"`
	Motion         accel.Reading     `json:"motion"`
	Orientation    accel.Orientation `json:"orientation"`
	ButtonPresses  int               `json:"button_presses"`
	TotalSamples   uint64            `json:"total_samples"`
	StartupErrors  int               `json:"startup_errors"`
}

type Option func(*Scheduler)

func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clk = clk
	}
}

func WithMotion(m MotionSensor, o accel.MotionOptions) Option {
	return func(s *Scheduler) {
		s.motion = m
		s.motionOpts = o
	}
}

func WithBattery(src BatterySource, table battery.Table) Option {
	return func(s *Scheduler) {
		s.batterySrc = src
		s.battery = battery.NewEstimator(table)
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

// WithButtonLine wires a physical button line into the loop's pending
// flags through the debounced edge source.
func WithButtonLine(line event.LineFunc, opts ...event.ButtonOption) Option {
	return func(s *Scheduler) {
		s.buttonLine = line
		s.buttonOpts = opts
	}
}

func WithLoopInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.loopInterval = d
	}
}

func WithBatteryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.batteryInterval = d
	}
}

func WithTemperatureInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.temperatureInterval = d
	}
}

func WithOximeterOptions(o oximeter.Options) Option {
	return func(s *Scheduler) {
		s.oxiOpts = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// Scheduler owns the cooperative acquisition loop. All fields behind mu
// are written only by the loop goroutine; collaborators read snapshots.
type Scheduler struct {
	clk clock.Clock
	log *slog.Logger

	flags      event.Flags
	tick       event.TickSignal
	button     *event.Button
	buttonLine event.LineFunc
	buttonOpts []event.ButtonOption

	oxi     oximeter.Oximeter
	oxiOpts oximeter.Options

	motion     MotionSensor
	motionOpts accel.MotionOptions

	batterySrc BatterySource
	battery    *battery.Estimator

	publisher Publisher

	loopInterval        time.Duration
	batteryInterval     time.Duration
	temperatureInterval time.Duration

	lastBattery     time.Time
	lastTemperature time.Time
	temperature     float32
	totalSamples    uint64
	startupErrors   int

	mu   sync.RWMutex
	snap Snapshot
}

func New(oxi oximeter.Oximeter, opts ...Option) *Scheduler {
	s := &Scheduler{
		clk:                 clock.New(),
		log:                 slog.Default(),
		oxi:                 oxi,
		oxiOpts:             oximeter.DefaultOptions(),
		motionOpts:          accel.DefaultMotionOptions(),
		loopInterval:        defaultLoopInterval,
		batteryInterval:     defaultBatteryInterval,
		temperatureInterval: defaultTemperatureInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buttonLine != nil {
		buttonOpts := append(s.buttonOpts, event.WithButtonClock(s.clk))
		s.button = event.NewButton(s.buttonLine, &s.flags, buttonOpts...)
	}
	return s
}

// Button returns the debounced button source, nil when no line is wired.
func (s *Scheduler) Button() *event.Button {
	return s.button
}

// Flags returns the pending-flag set so interrupt sources (GPIO edge
// callbacks, timers) can signal the loop.
func (s *Scheduler) Flags() *event.Flags {
	return &s.flags
}

// Tick returns the saturating timer signal.
func (s *Scheduler) Tick() *event.TickSignal {
	return &s.tick
}

// StartupErrors reports how many devices failed initialization. Failed
// devices are skipped; the rest of the system keeps running.
func (s *Scheduler) StartupErrors() int {
	return s.startupErrors
}

// Init configures and starts every registered device. Device failures are
// counted and logged, never fatal: a missing accelerometer must not take
// down oximetry.
func (s *Scheduler) Init(ctx context.Context) error {
	s.startupErrors = 0
	if err := s.oxi.Configure(ctx, s.oxiOpts); err != nil {
		s.startupErrors++
		s.log.Warn("oximeter initialization failed", "error", err)
	} else if err := s.oxi.Start(ctx); err != nil {
		s.startupErrors++
		s.log.Warn("oximeter start failed", "error", err)
	}
	if s.motion != nil {
		if err := s.motion.Configure(ctx, s.motionOpts); err != nil {
			s.startupErrors++
			s.log.Warn("accelerometer initialization failed", "error", err)
		}
	}
	return nil
}

// Reinit quiesces the oximeter and runs device initialization again. Used
// by the debug surface to recover a wedged sensor without restarting the
// process.
func (s *Scheduler) Reinit(ctx context.Context) error {
	if err := s.oxi.Stop(ctx); err != nil {
		s.log.Warn("oximeter stop before reinit failed", "error", err)
	}
	return s.Init(ctx)
}

// Run drives the loop until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clk.Ticker(s.loopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick.Signal()
			if err := s.Iterate(ctx); err != nil {
				return err
			}
		}
	}
}

// Iterate performs one pass of the loop: service pending flags in fixed
// priority order (button, timer, data-ready), run time-gated samplers,
// drain the device FIFOs unconditionally and refresh the snapshot.
func (s *Scheduler) Iterate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pending := s.flags.TakeAll()
	now := s.clk.Now()

	presses := 0
	if s.button != nil {
		presses = s.button.Presses()
	}
	if pending.Button {
		s.log.Debug("button press confirmed", "count", presses)
	}

	if pending.Tick || s.tick.Poll() {
		s.sampleBattery(ctx, now)
		s.sampleTemperature(ctx, now)
	}

	n, err := s.oxi.DrainFIFO(ctx)
	if err != nil {
		s.log.Warn("oximeter drain failed", "error", err)
	}
	s.totalSamples += uint64(n)
	if pending.DataReady && n == 0 {
		s.log.Debug("data-ready flag with empty hardware FIFO")
	}

	reading, orientation := s.sampleMotion(ctx)

	snap := Snapshot{
		Taken:         now,
		Temperature:   s.temperature,
		Motion:        reading,
		Orientation:   orientation,
		ButtonPresses: presses,
		TotalSamples:  s.totalSamples,
		StartupErrors: s.startupErrors,
	}
	if s.battery != nil {
		snap.BatteryPercent = s.battery.Percent()
	}
	if red := s.oxi.Stream(fifo.ChannelRed); red != nil {
		if sample, ok := red.PeekNewest(); ok {
			snap.Red = sample.Value
		}
	}
	if ir := s.oxi.Stream(fifo.ChannelIR); ir != nil {
		if sample, ok := ir.PeekNewest(); ok {
			snap.IR = sample.Value
		}
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snap); err != nil {
			s.log.Debug("snapshot publish failed", "error", err)
		}
	}
	return nil
}

func (s *Scheduler) sampleBattery(ctx context.Context, now time.Time) {
	if s.batterySrc == nil || now.Sub(s.lastBattery) < s.batteryInterval {
		return
	}
	s.lastBattery = now
	raw, err := s.batterySrc.ReadRaw(ctx)
	if err != nil {
		s.log.Warn("battery read failed", "error", err)
		return
	}
	s.battery.Update(raw)
}

func (s *Scheduler) sampleTemperature(ctx context.Context, now time.Time) {
	if now.Sub(s.lastTemperature) < s.temperatureInterval {
		return
	}
	s.lastTemperature = now
	t, err := s.oxi.ReadTemperature(ctx)
	if err != nil {
		// a front end without a temperature sensor keeps the last value
		s.log.Debug("temperature read unavailable", "error", err)
		return
	}
	s.temperature = t
}

func (s *Scheduler) sampleMotion(ctx context.Context) (accel.Reading, accel.Orientation) {
	if s.motion == nil {
		return accel.Reading{}, accel.Flat
	}
	ready, err := s.motion.Available(ctx)
	if err != nil {
		s.log.Warn("accelerometer status read failed", "error", err)
		return s.snap.Motion, s.snap.Orientation
	}
	if !ready {
		return s.snap.Motion, s.snap.Orientation
	}
	reading, err := s.motion.Read(ctx)
	if err != nil {
		s.log.Warn("accelerometer read failed", "error", err)
		return s.snap.Motion, s.snap.Orientation
	}
	if tap, err := s.motion.ReadTap(ctx); err == nil && tap != 0 {
		s.log.Debug("tap detected", "source", fmt.Sprintf("%#x", tap))
	}
	orientation, err := s.motion.Orientation(ctx)
	if err != nil {
		orientation = s.snap.Orientation
	}
	return reading, orientation
}

// Snapshot returns the latest derived scalars.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Stream exposes the per-channel pull interface: optical channels come
// from the oximeter, motion axes from the accelerometer. Nil when the
// channel has no producer.
func (s *Scheduler) Stream(ch fifo.Channel) *fifo.Ring {
	switch ch {
	case fifo.ChannelRed, fifo.ChannelIR, fifo.ChannelGreen:
		return s.oxi.Stream(ch)
	case fifo.ChannelX, fifo.ChannelY, fifo.ChannelZ:
		if s.motion == nil {
			return nil
		}
		return s.motion.Stream(ch)
	default:
		return nil
	}
}

// SafeDrain repeatedly drains the oximeter FIFO with a short spacing until
// fresh samples appear or the timeout elapses, in which case ErrNoData is
// returned. A non-positive timeout uses the default 250 ms bound. The wait
// is always bounded; it never blocks the caller indefinitely.
func (s *Scheduler) SafeDrain(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	deadline := s.clk.Now().Add(timeout)
	for {
		n, err := s.oxi.DrainFIFO(ctx)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			s.totalSamples += uint64(n)
			return n, nil
		}
		if !s.clk.Now().Before(deadline) {
			return 0, homeicu.ErrNoData
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.clk.Sleep(drainSpacing)
	}
}
