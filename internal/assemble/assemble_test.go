package assemble

import (
	"iter"
	"testing"

	"github.com/cockroachdb/errors"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
	"fgbmap/internal/viewport"
)

var unit = viewport.Projection{Center: geom.Point{100, 200}, Resolution: 0.5}

func seq(evs ...source.Event) iter.Seq2[source.Event, error] {
	return func(yield func(source.Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func polygon(rings ...[][2]float64) []source.Event {
	var out []source.Event
	source.PolygonEvents(func(ev source.Event, _ error) bool {
		out = append(out, ev)
		return true
	}, 0, rings)
	return out
}

func TestAssembleProjectsAndClosesRings(t *testing.T) {
	evs := polygon(
		[][2]float64{{100, 200}, {110, 200}, {110, 210}, {100, 210}, {100, 200}},
		[][2]float64{{102, 202}, {104, 202}, {104, 204}},
	)
	paths, err := Assemble(unit, seq(evs...))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %d", len(paths))
	}
	p := paths[0]
	if len(p.Rings) != 2 || len(p.Rings[0]) != 4 || len(p.Rings[1]) != 3 {
		t.Fatalf("rings = %v", p.Rings)
	}
	if p.Rings[0][0] != [2]float64{0, 0} || p.Rings[0][2] != [2]float64{20, 20} {
		t.Errorf("exterior = %v", p.Rings[0])
	}
	if p.Rings[1][0] != [2]float64{4, 4} {
		t.Errorf("hole = %v", p.Rings[1])
	}
	if starts := p.HoleStarts(); len(starts) != 1 || starts[0] != 4 {
		t.Errorf("hole starts = %v", starts)
	}
}

func TestAssembleMultiplePolygonsAndOtherGeometry(t *testing.T) {
	tri := [][2]float64{{0, 0}, {1, 0}, {0, 1}}
	var evs []source.Event
	evs = append(evs, source.Event{Kind: source.Point, X: 3, Y: 3})
	evs = append(evs,
		source.Event{Kind: source.LineBegin, Count: 2},
		source.Event{Kind: source.Coordinate, X: 0, Y: 0},
		source.Event{Kind: source.Coordinate, X: 1, Y: 1, Index: 1},
		source.Event{Kind: source.LineEnd},
	)
	evs = append(evs, polygon(tri)...)
	evs = append(evs, polygon(tri)...)
	paths, err := Assemble(unit, seq(evs...))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Errorf("paths = %d, want 2", len(paths))
	}
}

func TestAssembleMalformed(t *testing.T) {
	pb := source.Event{Kind: source.PolygonBegin}
	pe := source.Event{Kind: source.PolygonEnd}
	ext := source.Event{Kind: source.RingBegin, Exterior: true, Count: 3}
	hole := source.Event{Kind: source.RingBegin, Index: 1, Count: 3}
	re := source.Event{Kind: source.RingEnd}
	c := func(i int, x, y float64) source.Event {
		return source.Event{Kind: source.Coordinate, Index: i, X: x, Y: y}
	}
	tri := []source.Event{c(0, 0, 0), c(1, 1, 0), c(2, 0, 1)}

	tests := []struct {
		name string
		evs  []source.Event
	}{
		{"polygon end with zero rings", []source.Event{pb, pe}},
		{"hole before exterior", append(append([]source.Event{pb, hole}, tri...), re, pe)},
		{"coordinate outside ring", []source.Event{pb, c(0, 1, 1), pe}},
		{"nested polygon", []source.Event{pb, pb}},
		{"ring end without begin", []source.Event{pb, re}},
		{"two point exterior", []source.Event{pb, ext, c(0, 0, 0), c(1, 1, 1), re, pe}},
		{"closed two point exterior", []source.Event{pb, ext, c(0, 0, 0), c(1, 1, 1), c(2, 0, 0), re, pe}},
		{"repeated points", []source.Event{pb, ext, c(0, 0, 0), c(1, 0, 0), c(2, 1, 1), c(3, 1, 1), re, pe}},
		{"unterminated polygon", append(append([]source.Event{pb, ext}, tri...), re)},
		{"polygon end inside ring", append(append([]source.Event{pb, ext}, tri...), pe)},
		{"ring restarted", []source.Event{pb, ext, c(0, 0, 0), c(1, 1, 0), c(0, 0, 1), re, pe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(unit, seq(tt.evs...))
			if !errors.Is(err, source.ErrGeometryMalformed) {
				t.Fatalf("err = %v, want ErrGeometryMalformed", err)
			}
		})
	}
}

func TestAssemblePassesStreamErrors(t *testing.T) {
	events := func(yield func(source.Event, error) bool) {
		yield(source.Event{}, source.ErrConsumed)
	}
	if _, err := Assemble(unit, events); !errors.Is(err, source.ErrConsumed) {
		t.Fatalf("err = %v", err)
	}
}
