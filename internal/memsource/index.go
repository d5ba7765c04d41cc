// Package memsource serves geometry loaded into memory (GeoJSON, WKT, CSV,
// KML) through the same query contract as a FlatGeobuf file.
package memsource

import (
	"context"
	"iter"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dhconnelly/rtreego"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

// minExtent keeps degenerate boxes (points, axis-aligned lines) acceptable
// to rtreego, which rejects zero lengths.
const minExtent = 1e-12

type kind uint8

const (
	kindPoint kind = iota
	kindLine
	kindPolygon
)

// entry is one indexed geometry of the loaded data.
type entry struct {
	id   int
	kind kind
	n    int // index into Data.Points, Lines or Polygons
	bbox geom.BBox
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect {
	return toRect(e.bbox)
}

func toRect(b geom.BBox) rtreego.Rect {
	point := rtreego.Point{b.MinX, b.MinY}
	lengths := []float64{
		math.Max(b.MaxX-b.MinX, minExtent),
		math.Max(b.MaxY-b.MinY, minExtent),
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// searchRect pads b on every side. rtreego treats boxes that share only an
// edge or a corner as disjoint, while geom.BBox counts them as intersecting.
func searchRect(b geom.BBox) rtreego.Rect {
	pad := minExtent
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		pad = math.Max(pad, math.Abs(v)*1e-12)
	}
	return toRect(geom.BBox{MinX: b.MinX - pad, MinY: b.MinY - pad, MaxX: b.MaxX + pad, MaxY: b.MaxY + pad})
}

// Index is an R-tree over every geometry in a geom.Data.
type Index struct {
	data    geom.Data
	entries []*entry
	rtree   *rtreego.Rtree
}

// New indexes d. Each point, line and polygon becomes one feature.
func New(d geom.Data) *Index {
	idx := &Index{data: d}
	add := func(k kind, n int, pts ...[][2]float64) {
		b := geom.EmptyBBox()
		for _, ring := range pts {
			for _, p := range ring {
				b = b.Extend(p)
			}
		}
		if !b.Valid() {
			return
		}
		idx.entries = append(idx.entries, &entry{id: len(idx.entries), kind: k, n: n, bbox: b})
	}
	for i, p := range d.Points {
		add(kindPoint, i, [][2]float64{p})
	}
	for i, l := range d.Lines {
		add(kindLine, i, l)
	}
	for i, poly := range d.Polygons {
		add(kindPolygon, i, poly...)
	}

	objs := make([]rtreego.Spatial, len(idx.entries))
	for i, e := range idx.entries {
		objs[i] = e
	}
	idx.rtree = rtreego.NewTree(2, 25, 50, objs...)
	return idx
}

// Open loads path with geom.Load and indexes it.
func Open(path string) (*Index, error) {
	d, err := geom.Load(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %s", path), source.ErrSourceUnavailable)
	}
	return New(d), nil
}

// Props returns the per-polygon attributes of the loaded data.
func (idx *Index) Props() []map[string]any { return idx.data.Props }

// Len returns the number of indexed features.
func (idx *Index) Len() int { return len(idx.entries) }

// Bounds returns the extent of the loaded data.
func (idx *Index) Bounds() geom.BBox { return idx.data.BBox }

// Query returns the features whose bounding box intersects bbox, in load
// order.
func (idx *Index) Query(ctx context.Context, bbox geom.BBox) (source.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !bbox.Valid() {
		return &iterator{idx: idx}, nil
	}
	hits := idx.rtree.SearchIntersect(searchRect(bbox))
	found := make([]*entry, 0, len(hits))
	for _, h := range hits {
		e := h.(*entry)
		// drop what only the search padding matched
		if e.bbox.Intersects(bbox) {
			found = append(found, e)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	return &iterator{idx: idx, hits: found, pos: -1}, nil
}

func (idx *Index) Close() error { return nil }

type iterator struct {
	idx  *Index
	hits []*entry
	pos  int
	cur  *feature
	err  error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	if it.pos >= len(it.hits) {
		it.cur = nil
		return false
	}
	it.cur = &feature{idx: it.idx, e: it.hits[it.pos]}
	return true
}

func (it *iterator) Feature() source.Feature {
	if it.cur == nil {
		return nil
	}
	return it.cur
}

func (it *iterator) Err() error { return it.err }

type feature struct {
	idx      *Index
	e        *entry
	consumed bool
}

func (f *feature) Events() iter.Seq2[source.Event, error] {
	return func(yield func(source.Event, error) bool) {
		if f.consumed {
			yield(source.Event{}, source.ErrConsumed)
			return
		}
		f.consumed = true
		d := f.idx.data
		switch f.e.kind {
		case kindPoint:
			p := d.Points[f.e.n]
			yield(source.Event{Kind: source.Point, X: p[0], Y: p[1]}, nil)
		case kindLine:
			source.LineEvents(yield, d.Lines[f.e.n])
		case kindPolygon:
			source.PolygonEvents(yield, 0, d.Polygons[f.e.n])
		}
	}
}

// Properties returns the attributes loaded with a polygon, if any.
func (f *feature) Properties() (map[string]any, error) {
	if f.e.kind != kindPolygon || f.e.n >= len(f.idx.data.Props) {
		return nil, nil
	}
	return f.idx.data.Props[f.e.n], nil
}
