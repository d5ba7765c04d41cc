// Package viewport turns the pan/zoom state of the map into the bounding box
// and pixel projection used by a reload.
package viewport

import (
	"math"

	"fgbmap/internal/geom"
)

// State is the persistent map view. It is only changed by Apply when the
// debouncer reports a settled pan or zoom.
type State struct {
	// Center of the map at zero offset, in source units.
	Center geom.Point
	// Offset is the accumulated pan in pixels, y up.
	Offset geom.Point
	// Resolution is source units per pixel at zoom 1.
	Resolution float64
	// Zoom multiplies Resolution; larger values show more of the map.
	Zoom float64

	MinZoom float64
	MaxZoom float64
}

// Change carries whichever of offset and zoom settled.
type Change struct {
	OffsetChanged bool
	Offset        geom.Point
	ZoomChanged   bool
	Zoom          float64
}

// Apply updates the state in place, clamping the zoom.
func (s *State) Apply(c Change) {
	if c.OffsetChanged {
		s.Offset = c.Offset
	}
	if c.ZoomChanged {
		s.Zoom = s.ClampZoom(c.Zoom)
	}
}

// ClampZoom limits z to [MinZoom, MaxZoom]. Unset bounds are ignored.
func (s State) ClampZoom(z float64) float64 {
	if s.MinZoom > 0 && z < s.MinZoom {
		z = s.MinZoom
	}
	if s.MaxZoom > 0 && z > s.MaxZoom {
		z = s.MaxZoom
	}
	return z
}

// Projection is the outcome of projecting a viewport for one reload.
type Projection struct {
	// Center is the source coordinate shown at the middle of the window.
	Center geom.Point
	// Resolution is source units per pixel after zoom.
	Resolution float64
	BBox       geom.BBox
}

// Project computes the projected center, effective resolution and bounding
// box for a window of width x height pixels. The offset is scaled by the
// effective resolution, so a pan of n pixels moves the map by n pixels on
// screen whatever the zoom. Callers must reject empty windows first.
func Project(s State, width, height int) Projection {
	res := s.Resolution * s.Zoom
	c := geom.Point{
		s.Center[0] + s.Offset[0]*res,
		s.Center[1] + s.Offset[1]*res,
	}
	hw := float64(width) / 2 * res
	hh := float64(height) / 2 * res
	return Projection{
		Center:     c,
		Resolution: res,
		BBox: geom.BBox{
			MinX: c[0] - hw,
			MinY: c[1] - hh,
			MaxX: c[0] + hw,
			MaxY: c[1] + hh,
		},
	}
}

// Project maps a source coordinate to pixels relative to the projected
// center. The y axis points up, like the source data; renderers that draw
// rows top-down must flip it.
func (p Projection) Project(x, y float64) (float64, float64) {
	return (x - p.Center[0]) / p.Resolution, (y - p.Center[1]) / p.Resolution
}

// Unproject is the inverse of Project.
func (p Projection) Unproject(px, py float64) (float64, float64) {
	return px*p.Resolution + p.Center[0], py*p.Resolution + p.Center[1]
}

// Valid reports whether the projection can be used to place geometry.
func (p Projection) Valid() bool {
	return p.Resolution > 0 && !math.IsInf(p.Resolution, 0) && !math.IsNaN(p.Resolution) && p.BBox.Valid()
}
