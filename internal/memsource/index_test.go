package memsource

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

func testData() geom.Data {
	d, err := geom.ParseGeoJSON([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"id":1},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"id":2},"geometry":{"type":"Polygon","coordinates":[[[10,10],[11,10],[11,11],[10,10]]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[5,0],[5,3]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0.5,0.5]}}]}`))
	if err != nil {
		panic(err)
	}
	return d
}

func queryAll(t *testing.T, src source.Source, b geom.BBox) [][]source.Event {
	t.Helper()
	it, err := src.Query(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	var out [][]source.Event
	for it.Next(context.Background()) {
		evs, err := source.Collect(it.Feature())
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, evs)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestQuery(t *testing.T) {
	idx := New(testData())
	if idx.Len() != 4 {
		t.Fatalf("Len = %d", idx.Len())
	}
	tests := []struct {
		name  string
		bbox  geom.BBox
		kinds []source.Kind // first event kind per feature
	}{
		{"everything", geom.BBox{MinX: -1, MinY: -1, MaxX: 20, MaxY: 20}, []source.Kind{source.Point, source.LineBegin, source.PolygonBegin, source.PolygonBegin}},
		{"first square", geom.BBox{MinX: 0.2, MinY: 0.2, MaxX: 0.3, MaxY: 0.3}, []source.Kind{source.PolygonBegin}},
		{"vertical line", geom.BBox{MinX: 4.9, MinY: 1, MaxX: 5.1, MaxY: 2}, []source.Kind{source.LineBegin}},
		{"touching edge", geom.BBox{MinX: 1, MinY: 0, MaxX: 2, MaxY: 1}, []source.Kind{source.PolygonBegin}},
		{"touching corner", geom.BBox{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}, []source.Kind{source.PolygonBegin}},
		{"line end", geom.BBox{MinX: 5, MinY: 3, MaxX: 6, MaxY: 4}, []source.Kind{source.LineBegin}},
		{"nothing", geom.BBox{MinX: 100, MinY: 100, MaxX: 101, MaxY: 101}, nil},
		{"invalid", geom.EmptyBBox(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryAll(t, idx, tt.bbox)
			if len(got) != len(tt.kinds) {
				t.Fatalf("got %d features, want %d", len(got), len(tt.kinds))
			}
			for i, evs := range got {
				if evs[0].Kind != tt.kinds[i] {
					t.Errorf("feature %d starts with %v, want %v", i, evs[0].Kind, tt.kinds[i])
				}
			}
		})
	}
}

func TestPolygonEventsAndProperties(t *testing.T) {
	idx := New(testData())
	it, _ := idx.Query(context.Background(), geom.BBox{MinX: 10.5, MinY: 10.5, MaxX: 10.6, MaxY: 10.6})
	if !it.Next(context.Background()) {
		t.Fatal("expected a feature")
	}
	f := it.Feature()
	evs, err := source.Collect(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []source.Kind{
		source.PolygonBegin, source.RingBegin,
		source.Coordinate, source.Coordinate, source.Coordinate, source.Coordinate,
		source.RingEnd, source.PolygonEnd,
	}
	if len(evs) != len(want) {
		t.Fatalf("events = %v", evs)
	}
	for i, k := range want {
		if evs[i].Kind != k {
			t.Errorf("event %d = %v, want %v", i, evs[i].Kind, k)
		}
	}
	if !evs[1].Exterior || evs[1].Count != 4 || evs[2].X != 10 || evs[3].X != 11 {
		t.Errorf("ring events = %v", evs[1:4])
	}

	if _, err := source.Collect(f); !errors.Is(err, source.ErrConsumed) {
		t.Errorf("second Events err = %v, want ErrConsumed", err)
	}
	props, err := f.(source.Attributed).Properties()
	if err != nil || props["id"] != float64(2) {
		t.Errorf("props = %v, %v", props, err)
	}
}

func TestIteratorHonoursContext(t *testing.T) {
	idx := New(testData())
	ctx, cancel := context.WithCancel(context.Background())
	it, err := idx.Query(ctx, idx.Bounds())
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	if it.Next(ctx) {
		t.Fatal("Next after cancel should fail")
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("Err = %v", it.Err())
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("does-not-exist.geojson")
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
