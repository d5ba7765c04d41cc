package fgb

import (
	"math"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

type span struct {
	start, end int // coordinate indexes, end exclusive
}

// splitEnds cuts a flat coordinate array into parts using the ends array.
// Without ends the whole array is one part.
func splitEnds(g geometry) ([]span, error) {
	if len(g.xy)%2 != 0 {
		return nil, source.Malformedf("odd coordinate array length %d", len(g.xy))
	}
	n := len(g.xy) / 2
	if len(g.ends) == 0 {
		if n == 0 {
			return nil, nil
		}
		return []span{{0, n}}, nil
	}
	parts := make([]span, 0, len(g.ends))
	prev := 0
	for _, e := range g.ends {
		end := int(e)
		if end <= prev || end > n {
			return nil, source.Malformedf("ring end %d outside (%d, %d]", end, prev, n)
		}
		parts = append(parts, span{prev, end})
		prev = end
	}
	return parts, nil
}

// emitGeometry streams g as events. It returns false when yield asked to
// stop; errors are returned rather than yielded so the caller decides.
func emitGeometry(yield func(source.Event, error) bool, g geometry, typ GeometryType, poly *int) (bool, error) {
	switch typ {
	case Point:
		if len(g.xy) < 2 {
			return true, source.Malformedf("point without coordinates")
		}
		return yield(source.Event{Kind: source.Point, X: g.xy[0], Y: g.xy[1]}, nil), nil
	case MultiPoint:
		if len(g.xy)%2 != 0 {
			return true, source.Malformedf("odd coordinate array length %d", len(g.xy))
		}
		for i := 0; i < len(g.xy)/2; i++ {
			if !yield(source.Event{Kind: source.Point, X: g.xy[2*i], Y: g.xy[2*i+1], Index: i}, nil) {
				return false, nil
			}
		}
		return true, nil
	case LineString, MultiLineString:
		parts, err := splitEnds(g)
		if err != nil {
			return true, err
		}
		for _, p := range parts {
			if !yield(source.Event{Kind: source.LineBegin, Count: p.end - p.start}, nil) {
				return false, nil
			}
			for j := p.start; j < p.end; j++ {
				if !yield(source.Event{Kind: source.Coordinate, X: g.xy[2*j], Y: g.xy[2*j+1], Index: j - p.start}, nil) {
					return false, nil
				}
			}
			if !yield(source.Event{Kind: source.LineEnd}, nil) {
				return false, nil
			}
		}
		return true, nil
	case Polygon:
		rings, err := splitEnds(g)
		if err != nil {
			return true, err
		}
		return emitPolygon(yield, g.xy, rings, poly), nil
	case MultiPolygon:
		if len(g.parts) == 0 {
			return emitGeometry(yield, g, Polygon, poly)
		}
		for _, p := range g.parts {
			if ok, err := emitGeometry(yield, p, Polygon, poly); !ok || err != nil {
				return ok, err
			}
		}
		return true, nil
	case GeometryCollection:
		for _, p := range g.parts {
			if p.typ == Unknown || p.typ == GeometryCollection {
				return true, source.Malformedf("collection part of type %v", p.typ)
			}
			if ok, err := emitGeometry(yield, p, p.typ, poly); !ok || err != nil {
				return ok, err
			}
		}
		return true, nil
	}
	return true, source.Malformedf("unsupported geometry type %v", typ)
}

func emitPolygon(yield func(source.Event, error) bool, xy []float64, rings []span, poly *int) bool {
	idx := *poly
	*poly++
	if !yield(source.Event{Kind: source.PolygonBegin, Index: idx}, nil) {
		return false
	}
	for ri, r := range rings {
		if !yield(source.Event{Kind: source.RingBegin, Exterior: ri == 0, Count: r.end - r.start, Index: ri}, nil) {
			return false
		}
		for j := r.start; j < r.end; j++ {
			if !yield(source.Event{Kind: source.Coordinate, X: xy[2*j], Y: xy[2*j+1], Index: j - r.start}, nil) {
				return false
			}
		}
		if !yield(source.Event{Kind: source.RingEnd, Index: ri}, nil) {
			return false
		}
	}
	return yield(source.Event{Kind: source.PolygonEnd, Index: idx}, nil)
}

// bounds returns the extent of every coordinate in g and its parts.
func (g geometry) bounds() geom.BBox {
	b := geom.EmptyBBox()
	for i := 0; i+1 < len(g.xy); i += 2 {
		b.MinX = math.Min(b.MinX, g.xy[i])
		b.MinY = math.Min(b.MinY, g.xy[i+1])
		b.MaxX = math.Max(b.MaxX, g.xy[i])
		b.MaxY = math.Max(b.MaxY, g.xy[i+1])
	}
	for _, p := range g.parts {
		b = b.Union(p.bounds())
	}
	return b
}
