// Package source defines the contract between spatial feature readers and the
// code that turns their geometry into render paths.
//
// A Source answers bounding-box queries with an Iterator. Each Feature yielded
// by the iterator exposes its geometry as an ordered event stream that can be
// ranged over exactly once:
//
//	it, err := src.Query(ctx, bbox)
//	if err != nil {
//	    return err
//	}
//	for it.Next(ctx) {
//	    for ev, err := range it.Feature().Events() {
//	        ...
//	    }
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
package source

import (
	"context"
	"iter"

	"fgbmap/internal/geom"
)

// Source is an opened feature source.
type Source interface {
	// Query returns the features whose bounding rectangle intersects bbox.
	// The iterator is forward-only; call Query again to re-scan.
	Query(ctx context.Context, bbox geom.BBox) (Iterator, error)
	Close() error
}

// Iterator walks the result of one query, one feature at a time.
type Iterator interface {
	// Next advances to the next feature. It returns false when the
	// sequence is exhausted or a read failed; check Err afterwards.
	Next(ctx context.Context) bool
	// Feature returns the current feature. It is only valid until the
	// next call to Next.
	Feature() Feature
	Err() error
}

// Feature is one record of a source.
type Feature interface {
	// Events streams the geometry. A second call yields ErrConsumed.
	Events() iter.Seq2[Event, error]
}

// Collect drains a feature's event stream into a slice.
func Collect(f Feature) ([]Event, error) {
	var out []Event
	for ev, err := range f.Events() {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Attributed is implemented by features that carry attribute values.
type Attributed interface {
	Properties() (map[string]any, error)
}

// LineEvents streams one line string.
func LineEvents(yield func(Event, error) bool, line [][2]float64) bool {
	if !yield(Event{Kind: LineBegin, Count: len(line)}, nil) {
		return false
	}
	for j, p := range line {
		if !yield(Event{Kind: Coordinate, X: p[0], Y: p[1], Index: j}, nil) {
			return false
		}
	}
	return yield(Event{Kind: LineEnd}, nil)
}
