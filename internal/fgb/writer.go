package fgb

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"fgbmap/internal/geom"
)

// Writer collects features and writes them as one FlatGeobuf file. Features
// are Hilbert sorted when an index is written, so file order differs from
// insertion order.
type Writer struct {
	Name        string
	Title       string
	Description string
	Crs         *Crs
	Columns     []Column
	// NodeSize is the R-tree branching factor; zero writes no index.
	NodeSize uint16

	items []witem
}

type witem struct {
	g     orb.Geometry
	typ   GeometryType
	props map[string]any
	bbox  geom.BBox
}

func NewWriter(name string, cols []Column) *Writer {
	return &Writer{Name: name, Columns: cols, NodeSize: DefaultNodeSize}
}

// Add queues one feature. Property keys without a matching column are
// dropped.
func (w *Writer) Add(g orb.Geometry, props map[string]any) error {
	if g == nil {
		return errors.New("nil geometry")
	}
	typ, err := geometryTypeOf(g)
	if err != nil {
		return err
	}
	if countPoints(g) == 0 {
		return errors.Newf("empty %s", typ)
	}
	b := g.Bound()
	w.items = append(w.items, witem{
		g:     g,
		typ:   typ,
		props: props,
		bbox:  geom.BBox{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]},
	})
	return nil
}

func (w *Writer) Len() int { return len(w.items) }

func geometryTypeOf(g orb.Geometry) (GeometryType, error) {
	switch g.(type) {
	case orb.Point:
		return Point, nil
	case orb.MultiPoint:
		return MultiPoint, nil
	case orb.LineString:
		return LineString, nil
	case orb.MultiLineString:
		return MultiLineString, nil
	case orb.Ring, orb.Polygon:
		return Polygon, nil
	case orb.MultiPolygon:
		return MultiPolygon, nil
	case orb.Collection:
		return GeometryCollection, nil
	}
	return Unknown, errors.Newf("unsupported geometry %T", g)
}

func countPoints(g orb.Geometry) int {
	switch g := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(g)
	case orb.LineString:
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, l := range g {
			n += len(l)
		}
		return n
	case orb.Ring:
		return len(g)
	case orb.Polygon:
		n := 0
		for _, r := range g {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += countPoints(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range g {
			n += countPoints(c)
		}
		return n
	}
	return 0
}

// WriteTo writes the complete file.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if w.NodeSize == 1 {
		return 0, errors.New("node size must be 0 or at least 2")
	}
	headerType := Unknown
	extent := geom.EmptyBBox()
	for i, it := range w.items {
		if i == 0 {
			headerType = it.typ
		} else if it.typ != headerType {
			headerType = Unknown
		}
		extent = extent.Union(it.bbox)
	}
	indexed := w.NodeSize > 0 && len(w.items) > 0
	if indexed {
		hilbertSort(w.items, func(it witem) geom.BBox { return it.bbox }, extent)
	}

	b := flatbuffers.NewBuilder(1024)
	features := make([][]byte, len(w.items))
	leaves := make([]NodeItem, len(w.items))
	var offset uint64
	for i, it := range w.items {
		buf, err := w.encodeFeature(b, it, headerType == Unknown)
		if err != nil {
			return 0, errors.Wrapf(err, "feature %d", i)
		}
		features[i] = buf
		leaves[i] = NodeItem{MinX: it.bbox.MinX, MinY: it.bbox.MinY, MaxX: it.bbox.MaxX, MaxY: it.bbox.MaxY, Offset: offset}
		offset += uint64(len(buf))
	}

	cw := &countingWriter{w: bufio.NewWriter(out)}
	cw.write(magic[:])
	cw.write(w.encodeHeader(b, headerType, extent))
	if indexed {
		nodes, err := buildTree(leaves, w.NodeSize)
		if err != nil {
			return cw.n, err
		}
		var nb [nodeItemSize]byte
		for _, n := range nodes {
			putNode(nb[:], n)
			cw.write(nb[:])
		}
	}
	for _, f := range features {
		cw.write(f)
	}
	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

func (w *Writer) encodeHeader(b *flatbuffers.Builder, typ GeometryType, extent geom.BBox) []byte {
	b.Reset()
	str := func(s string) flatbuffers.UOffsetT {
		if s == "" {
			return 0
		}
		return b.CreateString(s)
	}
	name, title, desc := str(w.Name), str(w.Title), str(w.Description)
	cols := buildColumns(b, w.Columns)

	var crs flatbuffers.UOffsetT
	if w.Crs != nil {
		org, cname, cdesc, wkt, code := str(w.Crs.Org), str(w.Crs.Name), str(w.Crs.Description), str(w.Crs.WKT), str(w.Crs.CodeString)
		b.StartObject(crsNumFields)
		b.PrependUOffsetTSlot(crsOrg, org, 0)
		b.PrependInt32Slot(crsCode, w.Crs.Code, 0)
		b.PrependUOffsetTSlot(crsName, cname, 0)
		b.PrependUOffsetTSlot(crsDescription, cdesc, 0)
		b.PrependUOffsetTSlot(crsWKT, wkt, 0)
		b.PrependUOffsetTSlot(crsCodeString, code, 0)
		crs = b.EndObject()
	}

	var env flatbuffers.UOffsetT
	if extent.Valid() {
		env = float64Vector(b, []float64{extent.MinX, extent.MinY, extent.MaxX, extent.MaxY})
	}

	b.StartObject(hNumFields)
	b.PrependUOffsetTSlot(hName, name, 0)
	b.PrependUOffsetTSlot(hEnvelope, env, 0)
	b.PrependByteSlot(hGeometryType, byte(typ), 0)
	b.PrependUOffsetTSlot(hColumns, cols, 0)
	b.PrependUint64Slot(hFeaturesCount, uint64(len(w.items)), 0)
	b.PrependUint16Slot(hIndexNodeSize, w.NodeSize, DefaultNodeSize)
	b.PrependUOffsetTSlot(hCrs, crs, 0)
	b.PrependUOffsetTSlot(hTitle, title, 0)
	b.PrependUOffsetTSlot(hDescription, desc, 0)
	b.FinishSizePrefixed(b.EndObject())
	return append([]byte(nil), b.FinishedBytes()...)
}

func buildColumns(b *flatbuffers.Builder, cols []Column) flatbuffers.UOffsetT {
	if len(cols) == 0 {
		return 0
	}
	offs := make([]flatbuffers.UOffsetT, len(cols))
	for i, c := range cols {
		name := b.CreateString(c.Name)
		var title, desc, meta flatbuffers.UOffsetT
		if c.Title != "" {
			title = b.CreateString(c.Title)
		}
		if c.Description != "" {
			desc = b.CreateString(c.Description)
		}
		if c.Metadata != "" {
			meta = b.CreateString(c.Metadata)
		}
		b.StartObject(cNumFields)
		b.PrependUOffsetTSlot(cName, name, 0)
		b.PrependByteSlot(cType, byte(c.Type), 0)
		b.PrependUOffsetTSlot(cTitle, title, 0)
		b.PrependUOffsetTSlot(cDescription, desc, 0)
		b.PrependInt32Slot(cWidth, c.Width, 0)
		b.PrependInt32Slot(cPrecision, c.Precision, 0)
		b.PrependInt32Slot(cScale, c.Scale, 0)
		b.PrependBoolSlot(cNullable, c.Nullable, true)
		b.PrependBoolSlot(cUnique, c.Unique, false)
		b.PrependBoolSlot(cPrimaryKey, c.PrimaryKey, false)
		b.PrependUOffsetTSlot(cMetadata, meta, 0)
		offs[i] = b.EndObject()
	}
	return offsetVector(b, offs)
}

func (w *Writer) encodeFeature(b *flatbuffers.Builder, it witem, withType bool) ([]byte, error) {
	b.Reset()
	g, err := buildGeometry(b, it.g, withType)
	if err != nil {
		return nil, err
	}
	var props flatbuffers.UOffsetT
	if len(it.props) > 0 && len(w.Columns) > 0 {
		raw, err := encodeProperties(it.props, w.Columns)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			props = b.CreateByteVector(raw)
		}
	}
	b.StartObject(fNumFields)
	b.PrependUOffsetTSlot(fGeometry, g, 0)
	b.PrependUOffsetTSlot(fProperties, props, 0)
	b.FinishSizePrefixed(b.EndObject())
	return append([]byte(nil), b.FinishedBytes()...), nil
}

// buildGeometry writes g as a Geometry table. Multi-polygons and
// collections are written as parts.
func buildGeometry(b *flatbuffers.Builder, g orb.Geometry, withType bool) (flatbuffers.UOffsetT, error) {
	typ, err := geometryTypeOf(g)
	if err != nil {
		return 0, err
	}
	var (
		xy    []float64
		ends  []uint32
		parts []flatbuffers.UOffsetT
	)
	appendPoints := func(pts []orb.Point) {
		for _, p := range pts {
			xy = append(xy, p[0], p[1])
		}
	}
	switch g := g.(type) {
	case orb.Point:
		xy = []float64{g[0], g[1]}
	case orb.MultiPoint:
		appendPoints(g)
	case orb.LineString:
		appendPoints(g)
	case orb.MultiLineString:
		for _, l := range g {
			appendPoints(l)
			ends = append(ends, uint32(len(xy)/2))
		}
	case orb.Ring:
		appendPoints(g)
	case orb.Polygon:
		for _, r := range g {
			appendPoints(r)
			ends = append(ends, uint32(len(xy)/2))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			off, err := buildGeometry(b, p, true)
			if err != nil {
				return 0, err
			}
			parts = append(parts, off)
		}
	case orb.Collection:
		for _, c := range g {
			off, err := buildGeometry(b, c, true)
			if err != nil {
				return 0, err
			}
			parts = append(parts, off)
		}
	}
	// a single part needs no ends
	if len(ends) < 2 {
		ends = nil
	}

	var partsOff, endsOff, xyOff flatbuffers.UOffsetT
	if len(parts) > 0 {
		partsOff = offsetVector(b, parts)
	}
	if len(ends) > 0 {
		b.StartVector(4, len(ends), 4)
		for i := len(ends) - 1; i >= 0; i-- {
			b.PrependUint32(ends[i])
		}
		endsOff = b.EndVector(len(ends))
	}
	if len(xy) > 0 {
		xyOff = float64Vector(b, xy)
	}
	b.StartObject(gNumFields)
	b.PrependUOffsetTSlot(gEnds, endsOff, 0)
	b.PrependUOffsetTSlot(gXY, xyOff, 0)
	if withType {
		b.PrependByteSlot(gType, byte(typ), 0)
	}
	b.PrependUOffsetTSlot(gParts, partsOff, 0)
	return b.EndObject(), nil
}

func float64Vector(b *flatbuffers.Builder, v []float64) flatbuffers.UOffsetT {
	b.StartVector(8, len(v), 8)
	for i := len(v) - 1; i >= 0; i-- {
		b.PrependFloat64(v[i])
	}
	return b.EndVector(len(v))
}

func offsetVector(b *flatbuffers.Builder, offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offs), 4)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}
