// Package debounce decides when pan and zoom input has settled enough to
// reload the map.
package debounce

import (
	"strings"
	"time"

	"fgbmap/internal/geom"
	"fgbmap/internal/viewport"
)

// Clock is the time source for settle decisions.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// State is a set of pending gestures. Pan and zoom can be pending at once.
type State uint8

const (
	Panning State = 1 << iota
	Zooming
)

const Idle State = 0

func (s State) String() string {
	if s == Idle {
		return "idle"
	}
	var parts []string
	if s&Panning != 0 {
		parts = append(parts, "panning")
	}
	if s&Zooming != 0 {
		parts = append(parts, "zooming")
	}
	return strings.Join(parts, "+")
}

type Config struct {
	// PanSettle is how long after the last motion a pan counts as settled.
	PanSettle time.Duration
	// ZoomSettle is how long after the last scroll tick a zoom counts as settled.
	ZoomSettle time.Duration
	// ZoomStep is the zoom factor applied per scroll tick.
	ZoomStep float64
	MinZoom  float64
	MaxZoom  float64
}

func DefaultConfig() Config {
	return Config{
		PanSettle:  200 * time.Millisecond,
		ZoomSettle: 150 * time.Millisecond,
		ZoomStep:   1.2,
		MinZoom:    0.05,
		MaxZoom:    64,
	}
}

// Request is a settled viewport change. At most one is produced per Evaluate.
type Request = viewport.Change

// Debouncer tracks unsettled input. It is not safe for concurrent use; the
// TUI drives it from its update loop.
type Debouncer struct {
	cfg   Config
	clock Clock

	state    State
	pressed  bool
	released bool
	lastPan  time.Time
	lastZoom time.Time

	// committed values, in pixels (y up) and zoom factor
	offset geom.Point
	zoom   float64
	// unsettled pan since the last committed offset
	pan      geom.Point
	liveZoom float64
}

// New returns an idle debouncer starting at the given offset and zoom.
func New(cfg Config, clock Clock, offset geom.Point, zoom float64) *Debouncer {
	if clock == nil {
		clock = SystemClock
	}
	d := &Debouncer{cfg: cfg, clock: clock}
	d.Reset(offset, zoom)
	return d
}

// Reset drops pending input and restarts from offset and zoom.
func (d *Debouncer) Reset(offset geom.Point, zoom float64) {
	d.state = Idle
	d.pressed, d.released = false, false
	d.offset, d.pan = offset, geom.Point{}
	d.zoom = d.clamp(zoom)
	d.liveZoom = d.zoom
}

func (d *Debouncer) State() State { return d.state }

// Pending reports whether Evaluate may still produce a request.
func (d *Debouncer) Pending() bool { return d.state != Idle }

// PressButton starts a pan.
func (d *Debouncer) PressButton() {
	d.pressed, d.released = true, false
	d.state |= Panning
	d.lastPan = d.clock.Now()
}

// ReleaseButton settles a pan at the next Evaluate.
func (d *Debouncer) ReleaseButton() {
	if !d.pressed {
		return
	}
	d.pressed = false
	if d.state&Panning != 0 {
		d.released = true
	}
}

// Drag moves the map content by dx, dy pixels (screen y down) while the
// button is held. Motion without a pressed button is ignored.
func (d *Debouncer) Drag(dx, dy float64) {
	if !d.pressed {
		return
	}
	d.move(-dx, dy)
}

// Nudge moves the camera by dx, dy pixels (screen y down), as the arrow
// keys do.
func (d *Debouncer) Nudge(dx, dy float64) {
	d.move(dx, -dy)
}

func (d *Debouncer) move(x, y float64) {
	d.pan[0] += x
	d.pan[1] += y
	d.state |= Panning
	d.lastPan = d.clock.Now()
}

// Scroll applies wheel ticks: positive zooms in, negative zooms out.
func (d *Debouncer) Scroll(ticks int) {
	if ticks == 0 || d.cfg.ZoomStep <= 1 {
		return
	}
	z := d.liveZoom
	for ; ticks > 0; ticks-- {
		z /= d.cfg.ZoomStep
	}
	for ; ticks < 0; ticks++ {
		z *= d.cfg.ZoomStep
	}
	d.liveZoom = d.clamp(z)
	d.state |= Zooming
	d.lastZoom = d.clock.Now()
}

func (d *Debouncer) clamp(z float64) float64 {
	s := viewport.State{MinZoom: d.cfg.MinZoom, MaxZoom: d.cfg.MaxZoom}
	return s.ClampZoom(z)
}

// Evaluate settles whatever gestures are done and reports the change, if
// any. A settled gesture that left the view where it was yields nothing.
func (d *Debouncer) Evaluate() (Request, bool) {
	now := d.clock.Now()
	var r Request
	if d.state&Panning != 0 && (d.released || now.Sub(d.lastPan) > d.cfg.PanSettle) {
		d.state &^= Panning
		d.released = false
		if d.pan != (geom.Point{}) {
			d.offset[0] += d.pan[0]
			d.offset[1] += d.pan[1]
			d.pan = geom.Point{}
			r.OffsetChanged, r.Offset = true, d.offset
		}
	}
	if d.state&Zooming != 0 && now.Sub(d.lastZoom) > d.cfg.ZoomSettle {
		d.state &^= Zooming
		if d.liveZoom != d.zoom {
			d.zoom = d.liveZoom
			r.ZoomChanged, r.Zoom = true, d.zoom
		}
	}
	return r, r.OffsetChanged || r.ZoomChanged
}

// Focus returns the offset the camera currently shows, settled or not.
func (d *Debouncer) Focus() geom.Point {
	return geom.Point{d.offset[0] + d.pan[0], d.offset[1] + d.pan[1]}
}

// Pan returns the unsettled part of the offset.
func (d *Debouncer) Pan() geom.Point { return d.pan }

// LiveZoom returns the zoom the camera currently shows, settled or not.
func (d *Debouncer) LiveZoom() float64 { return d.liveZoom }
