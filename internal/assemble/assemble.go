// Package assemble turns a feature's geometry events into projected polygon
// paths ready for tessellation.
package assemble

import (
	"iter"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
	"fgbmap/internal/viewport"
)

// Assembler consumes the events of one feature. Coordinates are projected
// with the reload's projection, so paths are in pixels relative to the
// window center with y pointing up.
type Assembler struct {
	proj viewport.Projection

	paths     []geom.Path
	inPolygon bool
	inRing    bool
	inLine    bool
	rings     []geom.Ring
	ring      geom.Ring
}

func New(proj viewport.Projection) *Assembler {
	return &Assembler{proj: proj}
}

// Feed applies one event. Any ordering violation returns an error marked
// source.ErrGeometryMalformed; the assembler should then be discarded.
func (a *Assembler) Feed(ev source.Event) error {
	switch ev.Kind {
	case source.PolygonBegin:
		if a.inPolygon {
			return source.Malformedf("polygon %d begins inside another polygon", ev.Index)
		}
		if a.inLine {
			return source.Malformedf("polygon %d begins inside a line", ev.Index)
		}
		a.inPolygon = true
		a.rings = nil

	case source.RingBegin:
		switch {
		case !a.inPolygon:
			return source.Malformedf("ring %d outside a polygon", ev.Index)
		case a.inRing:
			return source.Malformedf("ring %d begins inside ring", ev.Index)
		case !ev.Exterior && len(a.rings) == 0:
			return source.Malformedf("hole ring %d before the exterior ring", ev.Index)
		case ev.Exterior && len(a.rings) > 0:
			return source.Malformedf("second exterior ring at %d", ev.Index)
		}
		a.inRing = true
		a.ring = make(geom.Ring, 0, max(ev.Count, 0))

	case source.Coordinate:
		if a.inLine {
			return nil
		}
		if !a.inRing {
			return source.Malformedf("coordinate %d outside a ring", ev.Index)
		}
		if ev.Index == 0 && len(a.ring) > 0 {
			return source.Malformedf("ring restarted after %d points", len(a.ring))
		}
		px, py := a.proj.Project(ev.X, ev.Y)
		a.ring = append(a.ring, [2]float64{px, py})

	case source.RingEnd:
		if !a.inRing {
			return source.Malformedf("ring %d ends without a begin", ev.Index)
		}
		a.inRing = false
		r := a.ring
		a.ring = nil
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		if n := distinct(r, 3); n < 3 {
			return source.Malformedf("ring %d has %d distinct points", ev.Index, n)
		}
		a.rings = append(a.rings, r)

	case source.PolygonEnd:
		switch {
		case !a.inPolygon:
			return source.Malformedf("polygon %d ends without a begin", ev.Index)
		case a.inRing:
			return source.Malformedf("polygon %d ends inside a ring", ev.Index)
		case len(a.rings) == 0:
			return source.Malformedf("polygon %d ends with zero rings", ev.Index)
		}
		a.paths = append(a.paths, geom.Path{Rings: a.rings})
		a.rings = nil
		a.inPolygon = false

	case source.LineBegin:
		if a.inPolygon || a.inLine {
			return source.Malformedf("line begins inside another geometry")
		}
		a.inLine = true

	case source.LineEnd:
		if !a.inLine {
			return source.Malformedf("line ends without a begin")
		}
		a.inLine = false

	case source.Point:
		// points are not filled

	default:
		return source.Malformedf("unknown event %v", ev.Kind)
	}
	return nil
}

// Finish checks that every polygon was closed and returns the paths of the
// feature.
func (a *Assembler) Finish() ([]geom.Path, error) {
	if a.inPolygon || a.inLine {
		return nil, source.Malformedf("feature ended inside a geometry")
	}
	paths := a.paths
	a.paths = nil
	return paths, nil
}

// Assemble drains events through a fresh Assembler. Errors from the stream
// itself are returned unchanged.
func Assemble(proj viewport.Projection, events iter.Seq2[source.Event, error]) ([]geom.Path, error) {
	a := New(proj)
	for ev, err := range events {
		if err != nil {
			return nil, err
		}
		if err := a.Feed(ev); err != nil {
			return nil, err
		}
	}
	return a.Finish()
}

// distinct counts distinct points in r, stopping at limit.
func distinct(r geom.Ring, limit int) int {
	var seen [][2]float64
	for _, p := range r {
		dup := false
		for _, s := range seen {
			if s == p {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, p)
			if len(seen) == limit {
				break
			}
		}
	}
	return len(seen)
}
