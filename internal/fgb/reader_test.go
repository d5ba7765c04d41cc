package fgb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

var squareColumns = []Column{
	{Name: "id", Type: Long, Nullable: true},
	{Name: "name", Type: String, Nullable: true},
}

// squares writes n half-unit squares on a 10-wide grid; square i sits at
// (i%10, i/10).
func squares(t *testing.T, n int, nodeSize uint16) []byte {
	t.Helper()
	w := NewWriter("squares", squareColumns)
	w.NodeSize = nodeSize
	for i := 0; i < n; i++ {
		x, y := float64(i%10), float64(i/10)
		poly := orb.Polygon{{{x, y}, {x + 0.5, y}, {x + 0.5, y + 0.5}, {x, y + 0.5}, {x, y}}}
		if err := w.Add(poly, map[string]any{"id": int64(i), "name": fmt.Sprintf("sq%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type result struct {
	id     int64
	events []source.Event
}

func queryResults(t *testing.T, src source.Source, b geom.BBox) []result {
	t.Helper()
	ctx := context.Background()
	it, err := src.Query(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	var out []result
	for it.Next(ctx) {
		f := it.Feature()
		evs, err := source.Collect(f)
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		props, err := f.(source.Attributed).Properties()
		if err != nil {
			t.Fatalf("properties: %v", err)
		}
		out = append(out, result{id: props["id"].(int64), events: evs})
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func ids(rs []result) []int64 {
	var out []int64
	for _, r := range rs {
		out = append(out, r.id)
	}
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	w := NewWriter("layer", squareColumns)
	w.Title = "Buildings"
	w.Crs = &Crs{Org: "EPSG", Code: 4326, Name: "WGS 84"}
	w.Add(orb.Polygon{{{0, 0}, {2, 0}, {2, 1}, {0, 0}}}, nil)
	w.Add(orb.Polygon{{{-1, 3}, {0, 3}, {0, 4}, {-1, 3}}}, nil)
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	rd, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	h := rd.Header()
	if h.Name != "layer" || h.Title != "Buildings" || h.GeometryType != Polygon || h.FeaturesCount != 2 {
		t.Errorf("header = %+v", h)
	}
	if h.IndexNodeSize != DefaultNodeSize || !h.Indexed() {
		t.Errorf("node size = %d", h.IndexNodeSize)
	}
	if !reflect.DeepEqual(h.Columns, squareColumns) {
		t.Errorf("columns = %+v", h.Columns)
	}
	if h.Crs == nil || h.Crs.Code != 4326 || h.Crs.Org != "EPSG" {
		t.Errorf("crs = %+v", h.Crs)
	}
	if got, want := rd.Bounds(), (geom.BBox{MinX: -1, MinY: 0, MaxX: 2, MaxY: 4}); got != want {
		t.Errorf("bounds = %+v, want %+v", got, want)
	}
}

func TestQueryIndexedMatchesScan(t *testing.T) {
	indexed, err := Open(bytes.NewReader(squares(t, 100, 16)))
	if err != nil {
		t.Fatal(err)
	}
	flat, err := Open(bytes.NewReader(squares(t, 100, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if flat.Header().Indexed() {
		t.Fatal("node size 0 should disable the index")
	}
	tests := []struct {
		name string
		bbox geom.BBox
		want []int64
	}{
		{"four squares", geom.BBox{MinX: 1.2, MinY: 1.2, MaxX: 2.2, MaxY: 2.2}, []int64{11, 12, 21, 22}},
		{"gap between squares", geom.BBox{MinX: 0.6, MinY: 0.6, MaxX: 0.9, MaxY: 0.9}, nil},
		{"single corner", geom.BBox{MinX: 9.5, MinY: 9.5, MaxX: 20, MaxY: 20}, []int64{99}},
		{"outside", geom.BBox{MinX: -5, MinY: -5, MaxX: -1, MaxY: -1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := queryResults(t, indexed, tt.bbox)
			b := queryResults(t, flat, tt.bbox)
			if !reflect.DeepEqual(ids(a), tt.want) {
				t.Errorf("indexed ids = %v, want %v", ids(a), tt.want)
			}
			if !reflect.DeepEqual(a, b) {
				t.Errorf("indexed and scanned results differ")
			}
		})
	}
	all := queryResults(t, indexed, geom.BBox{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100})
	if len(all) != 100 {
		t.Errorf("full query returned %d features", len(all))
	}
}

func TestPolygonEvents(t *testing.T) {
	w := NewWriter("", nil)
	w.Add(orb.MultiPolygon{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, {{2, 2}, {4, 2}, {4, 4}}},
		{{{20, 0}, {21, 0}, {21, 1}}},
	}, nil)
	var buf bytes.Buffer
	w.WriteTo(&buf)
	rd, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	it, _ := rd.Query(context.Background(), geom.BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1})
	if !it.Next(context.Background()) {
		t.Fatalf("no feature: %v", it.Err())
	}
	evs, err := source.Collect(it.Feature())
	if err != nil {
		t.Fatal(err)
	}
	var kinds []source.Kind
	for _, e := range evs {
		if e.Kind != source.Coordinate {
			kinds = append(kinds, e.Kind)
		}
	}
	want := []source.Kind{
		source.PolygonBegin, source.RingBegin, source.RingEnd, source.RingBegin, source.RingEnd, source.PolygonEnd,
		source.PolygonBegin, source.RingBegin, source.RingEnd, source.PolygonEnd,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v", kinds)
	}
	if !evs[1].Exterior || evs[1].Count != 4 {
		t.Errorf("exterior ring = %v", evs[1])
	}
	hole := evs[7]
	if hole.Kind != source.RingBegin || hole.Exterior || hole.Count != 3 || hole.Index != 1 {
		t.Errorf("hole ring = %v", hole)
	}
	if evs[8].X != 2 || evs[8].Y != 2 || evs[8].Index != 0 {
		t.Errorf("first hole coordinate = %v", evs[8])
	}
	last := evs[len(evs)-1]
	if last.Kind != source.PolygonEnd || last.Index != 1 {
		t.Errorf("second polygon end = %v", last)
	}

	if _, err := source.Collect(it.Feature()); !errors.Is(err, source.ErrConsumed) {
		t.Errorf("second read err = %v", err)
	}
}

func TestOpenCorrupt(t *testing.T) {
	good := squares(t, 3, 16)
	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'x'
	badVersion := append([]byte(nil), good...)
	badVersion[3] = 2
	hugeHeader := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(hugeHeader[8:], 1<<30)
	garbage := append([]byte(nil), good[:12]...)
	garbage = append(garbage, bytes.Repeat([]byte{0xFF}, int(binary.LittleEndian.Uint32(good[8:])))...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", good[:6]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"huge header", hugeHeader},
		{"truncated header", good[:20]},
		{"garbage header", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tt.data))
			if !errors.Is(err, source.ErrHeaderCorrupt) {
				t.Fatalf("err = %v, want ErrHeaderCorrupt", err)
			}
		})
	}
}

func TestQueryCorruptIndex(t *testing.T) {
	good := squares(t, 3, 16)
	rd, err := Open(bytes.NewReader(good))
	if err != nil {
		t.Fatal(err)
	}
	rootOffset := rd.indexOffset + 32

	tests := []struct {
		name  string
		child uint64
	}{
		{"child below leaf level", 0},
		{"child past the last node", 1 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), good...)
			binary.LittleEndian.PutUint64(data[rootOffset:], tt.child)
			rd, err := Open(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			_, err = rd.Query(context.Background(), geom.BBox{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100})
			if !errors.Is(err, source.ErrHeaderCorrupt) {
				t.Fatalf("err = %v, want ErrHeaderCorrupt", err)
			}
		})
	}
}

func TestMalformedFeatureIsSkippable(t *testing.T) {
	data := squares(t, 20, 16)
	rd, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// point the root offset of the third feature far outside its buffer
	off := rd.featuresOffset
	for i := 0; i < 2; i++ {
		off += 4 + int64(binary.LittleEndian.Uint32(data[off:]))
	}
	broken := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(broken[off+4:], 0xFFFFFFF0)

	rd, err = Open(bytes.NewReader(broken))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it, err := rd.Query(ctx, geom.BBox{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100})
	if err != nil {
		t.Fatal(err)
	}
	good, bad := 0, 0
	for it.Next(ctx) {
		if _, err := source.Collect(it.Feature()); err != nil {
			if !source.IsFeatureError(err) {
				t.Fatalf("unexpected error class: %v", err)
			}
			bad++
			continue
		}
		good++
	}
	if it.Err() != nil {
		t.Fatal(it.Err())
	}
	if good != 19 || bad != 1 {
		t.Errorf("good = %d, bad = %d", good, bad)
	}
}

func serve(data []byte, fail *atomic.Bool, requests *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if fail != nil && fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "data.fgb", time.Time{}, bytes.NewReader(data))
	}))
}

func TestRemoteMatchesLocal(t *testing.T) {
	data := squares(t, 100, 16)
	var requests atomic.Int32
	srv := serve(data, nil, &requests)
	defer srv.Close()

	local, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	remote, err := OpenURL(context.Background(), srv.URL, WithReadAhead(512))
	if err != nil {
		t.Fatal(err)
	}
	defer remote.Close()
	for _, b := range []geom.BBox{
		{MinX: 1.2, MinY: 1.2, MaxX: 5.2, MaxY: 2.2},
		{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100},
	} {
		if l, r := queryResults(t, local, b), queryResults(t, remote, b); !reflect.DeepEqual(l, r) {
			t.Errorf("bbox %+v: remote results differ from local", b)
		}
	}
	if requests.Load() < 2 {
		t.Errorf("expected several range requests, got %d", requests.Load())
	}
}

func TestRemoteReadAheadSharesRequests(t *testing.T) {
	data := squares(t, 30, 16)
	var requests atomic.Int32
	srv := serve(data, nil, &requests)
	defer srv.Close()

	remote, err := OpenURL(context.Background(), srv.URL, WithReadAhead(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(queryResults(t, remote, geom.BBox{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100})); got != 30 {
		t.Fatalf("features = %d", got)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 with a read-ahead larger than the file", requests.Load())
	}
}

func TestRemoteTransportErrors(t *testing.T) {
	data := squares(t, 100, 16)
	var fail atomic.Bool
	var requests atomic.Int32
	srv := serve(data, &fail, &requests)
	defer srv.Close()

	fail.Store(true)
	if _, err := OpenURL(context.Background(), srv.URL); !errors.Is(err, source.ErrTransport) || !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("open err = %v", err)
	}

	fail.Store(false)
	rd, err := OpenURL(context.Background(), srv.URL, WithReadAhead(16))
	if err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	_, err = rd.Query(context.Background(), geom.BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1})
	if !errors.Is(err, source.ErrTransport) {
		t.Fatalf("query err = %v, want ErrTransport", err)
	}
}

func TestScanHonoursContext(t *testing.T) {
	rd, err := Open(bytes.NewReader(squares(t, 10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	it, err := rd.Query(ctx, geom.BBox{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100})
	if err != nil {
		t.Fatal(err)
	}
	if !it.Next(ctx) {
		t.Fatal("expected a first feature")
	}
	cancel()
	if it.Next(ctx) {
		t.Fatal("Next after cancel")
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("Err = %v", it.Err())
	}
}

func TestEmptyFile(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewWriter("empty", nil).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	rd, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got := queryResults(t, rd, geom.BBox{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}); len(got) != 0 {
		t.Errorf("got %d features", len(got))
	}
}
