// Package falldetect turns a stream of 3-axis acceleration samples into discrete fall events.
package falldetect

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// G is standard gravity in m/s².
const G = 9.80665

const (
	DefaultFreefallG = 0.5
	DefaultImpactG   = 3.5
	DefaultTimeout   = 1000 * time.Millisecond
)

// State of the detector.
type State int

const (
	Normal State = iota
	Freefall
	// Confirmed is never held; it is reported through FallEvent and the detector is back in Normal.
	Confirmed
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Freefall:
		return "FREEFALL"
	case Confirmed:
		return "CONFIRMED"
	default:
		return "UNKNOWN"
	}
}

// Sample is one accelerometer reading in m/s².
type Sample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampMs int64   `json:"timestampMs"`
}

// Magnitude returns the length of the acceleration vector in m/s².
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// FallEvent is emitted once per confirmed fall.
type FallEvent struct {
	MagnitudeG  float64 `json:"magnitudeG"`
	TimestampMs int64   `json:"timestampMs"`
}

// Config holds the detector thresholds. SettledLow and SettledHigh bound the raw magnitude (m/s²),
// not the g-normalized value.
type Config struct {
	FreefallG   float64
	ImpactG     float64
	Timeout     time.Duration
	SettledLow  float64
	SettledHigh float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FreefallG:   DefaultFreefallG,
		ImpactG:     DefaultImpactG,
		Timeout:     DefaultTimeout,
		SettledLow:  0.8 * G,
		SettledHigh: 1.2 * G,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FreefallG <= 0 {
		c.FreefallG = d.FreefallG
	}
	if c.ImpactG <= 0 {
		c.ImpactG = d.ImpactG
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.SettledLow <= 0 {
		c.SettledLow = d.SettledLow
	}
	if c.SettledHigh <= 0 {
		c.SettledHigh = d.SettledHigh
	}
	return c
}

// Detector is the freefall/impact state machine. It is not safe for concurrent use: exactly one
// goroutine feeds it (see Run).
//
// The freefall window is measured in sample time, so batches delivered at once behave like a live stream.
// The clock timer only ends episodes of streams that went silent.
type Detector struct {
	config    Config
	clock     clock.Clock
	state     State
	timer     *clock.Timer
	armedAtMs int64

	// timedOut is set when an episode ran out of its window and stays set until the signal leaves freefall,
	// so a sustained freefall does not open a new episode.
	timedOut bool
}

// New creates a detector. A nil clock means wall-clock time.
func New(config Config, clk clock.Clock) *Detector {
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{
		config: config.withDefaults(),
		clock:  clk,
		state:  Normal,
	}
}

// State reports the current state.
func (d *Detector) State() State {
	return d.state
}

// Config reports the effective thresholds.
func (d *Detector) Config() Config {
	return d.config
}

// Expired delivers when the freefall window of the current episode runs out. Nil outside FREEFALL,
// which blocks forever in a select.
func (d *Detector) Expired() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

// Expire resets a pending freefall episode to NORMAL. It is a no-op in any other state.
func (d *Detector) Expire() {
	if d.state != Freefall {
		return
	}
	d.reset()
	d.timedOut = true
}

// Observe feeds one sample and returns the fall event it confirms, if any.
func (d *Detector) Observe(s Sample) (FallEvent, bool) {
	if d.state == Freefall && s.TimestampMs-d.armedAtMs > d.config.Timeout.Milliseconds() {
		d.Expire()
	}

	magnitude := s.Magnitude()
	magnitudeG := magnitude / G

	if magnitudeG >= d.config.FreefallG {
		d.timedOut = false
	}

	switch {
	case magnitudeG < d.config.FreefallG:
		if d.state == Normal && !d.timedOut {
			d.arm(s.TimestampMs)
		}

	case d.state == Freefall && magnitudeG > d.config.ImpactG:
		d.reset()
		return FallEvent{MagnitudeG: magnitudeG, TimestampMs: s.TimestampMs}, true

	case d.state == Freefall && magnitude >= d.config.SettledLow && magnitude <= d.config.SettledHigh:
		d.reset()
	}

	return FallEvent{}, false
}

func (d *Detector) arm(timestampMs int64) {
	d.stopTimer()
	d.state = Freefall
	d.armedAtMs = timestampMs
	d.timer = d.clock.Timer(d.config.Timeout)
}

func (d *Detector) reset() {
	d.stopTimer()
	d.state = Normal
	d.armedAtMs = 0
}

func (d *Detector) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
