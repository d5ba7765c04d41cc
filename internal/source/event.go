package source

import "fmt"

// Kind identifies a geometry event.
type Kind uint8

const (
	PolygonBegin Kind = iota + 1
	RingBegin
	Coordinate
	RingEnd
	PolygonEnd
	LineBegin
	LineEnd
	Point
)

func (k Kind) String() string {
	switch k {
	case PolygonBegin:
		return "PolygonBegin"
	case RingBegin:
		return "RingBegin"
	case Coordinate:
		return "Coordinate"
	case RingEnd:
		return "RingEnd"
	case PolygonEnd:
		return "PolygonEnd"
	case LineBegin:
		return "LineBegin"
	case LineEnd:
		return "LineEnd"
	case Point:
		return "Point"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is one step of a feature's geometry stream.
//
// Index meaning depends on Kind: the coordinate index within its ring or line
// for Coordinate, the ring index within the polygon for RingBegin/RingEnd, and
// the polygon index within the feature for PolygonBegin/PolygonEnd.
type Event struct {
	Kind     Kind
	X, Y     float64
	Index    int
	Exterior bool // RingBegin only
	Count    int  // expected number of coordinates, RingBegin and LineBegin
}

func (e Event) String() string {
	switch e.Kind {
	case Coordinate, Point:
		return fmt.Sprintf("%s(%g, %g, %d)", e.Kind, e.X, e.Y, e.Index)
	case RingBegin:
		return fmt.Sprintf("RingBegin(exterior=%t, count=%d, %d)", e.Exterior, e.Count, e.Index)
	default:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Index)
	}
}

// PolygonEvents streams one polygon given as rings of x/y pairs. Ring 0 is
// the exterior. It returns false when yield asked to stop.
func PolygonEvents(yield func(Event, error) bool, polygon int, rings [][][2]float64) bool {
	if !yield(Event{Kind: PolygonBegin, Index: polygon}, nil) {
		return false
	}
	for i, ring := range rings {
		if !yield(Event{Kind: RingBegin, Exterior: i == 0, Count: len(ring), Index: i}, nil) {
			return false
		}
		for j, p := range ring {
			if !yield(Event{Kind: Coordinate, X: p[0], Y: p[1], Index: j}, nil) {
				return false
			}
		}
		if !yield(Event{Kind: RingEnd, Index: i}, nil) {
			return false
		}
	}
	return yield(Event{Kind: PolygonEnd, Index: polygon}, nil)
}
