package fgb

import (
	"github.com/cockroachdb/errors"
	flatbuffers "github.com/google/flatbuffers/go"
)

// table wraps a flatbuffers table with slot-based accessors. Slot n is the
// n-th field of the schema; its vtable entry sits at 4+2n.
type table struct {
	flatbuffers.Table
}

func rootTable(buf []byte) table {
	n := flatbuffers.GetUOffsetT(buf)
	return table{flatbuffers.Table{Bytes: buf, Pos: n}}
}

func (t table) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (t table) str(slot int) string {
	if o := t.field(slot); o != 0 {
		return t.String(o + t.Pos)
	}
	return ""
}

func (t table) bytes(slot int) []byte {
	if o := t.field(slot); o != 0 {
		return t.ByteVector(o + t.Pos)
	}
	return nil
}

func (t table) u8(slot int, def uint8) uint8 {
	if o := t.field(slot); o != 0 {
		return t.GetByte(o + t.Pos)
	}
	return def
}

func (t table) boolean(slot int, def bool) bool {
	if o := t.field(slot); o != 0 {
		return t.GetBool(o + t.Pos)
	}
	return def
}

func (t table) u16(slot int, def uint16) uint16 {
	if o := t.field(slot); o != 0 {
		return t.GetUint16(o + t.Pos)
	}
	return def
}

func (t table) i32(slot int) int32 {
	if o := t.field(slot); o != 0 {
		return t.GetInt32(o + t.Pos)
	}
	return 0
}

func (t table) u64(slot int) uint64 {
	if o := t.field(slot); o != 0 {
		return t.GetUint64(o + t.Pos)
	}
	return 0
}

func (t table) float64s(slot int) []float64 {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	a := t.Vector(o)
	n := t.VectorLen(o)
	out := make([]float64, n)
	for j := range out {
		out[j] = t.GetFloat64(a + flatbuffers.UOffsetT(j*8))
	}
	return out
}

func (t table) uint32s(slot int) []uint32 {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	a := t.Vector(o)
	n := t.VectorLen(o)
	out := make([]uint32, n)
	for j := range out {
		out[j] = t.GetUint32(a + flatbuffers.UOffsetT(j*4))
	}
	return out
}

func (t table) sub(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	x := t.Indirect(o + t.Pos)
	return table{flatbuffers.Table{Bytes: t.Bytes, Pos: x}}, true
}

func (t table) tables(slot int) []table {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	a := t.Vector(o)
	n := t.VectorLen(o)
	out := make([]table, n)
	for j := range out {
		x := t.Indirect(a + flatbuffers.UOffsetT(j*4))
		out[j] = table{flatbuffers.Table{Bytes: t.Bytes, Pos: x}}
	}
	return out
}

// Header slots.
const (
	hName = iota
	hEnvelope
	hGeometryType
	hHasZ
	hHasM
	hHasT
	hHasTM
	hColumns
	hFeaturesCount
	hIndexNodeSize
	hCrs
	hTitle
	hDescription
	hMetadata
	hNumFields
)

// Column slots.
const (
	cName = iota
	cType
	cTitle
	cDescription
	cWidth
	cPrecision
	cScale
	cNullable
	cUnique
	cPrimaryKey
	cMetadata
	cNumFields
)

// Crs slots.
const (
	crsOrg = iota
	crsCode
	crsName
	crsDescription
	crsWKT
	crsCodeString
	crsNumFields
)

// Feature slots.
const (
	fGeometry = iota
	fProperties
	fColumns
	fNumFields
)

// Geometry slots.
const (
	gEnds = iota
	gXY
	gZ
	gM
	gT
	gTM
	gType
	gParts
	gNumFields
)

// decodeHeader parses a header flatbuffer without its size prefix. Broken
// offsets make the flatbuffers accessors panic; the panic is returned as an
// error.
func decodeHeader(buf []byte) (h *Header, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, errors.Newf("decode header: %v", r)
		}
	}()
	t := rootTable(buf)
	h = &Header{
		Name:          t.str(hName),
		Envelope:      t.float64s(hEnvelope),
		GeometryType:  GeometryType(t.u8(hGeometryType, 0)),
		HasZ:          t.boolean(hHasZ, false),
		HasM:          t.boolean(hHasM, false),
		HasT:          t.boolean(hHasT, false),
		HasTM:         t.boolean(hHasTM, false),
		FeaturesCount: t.u64(hFeaturesCount),
		IndexNodeSize: t.u16(hIndexNodeSize, DefaultNodeSize),
		Title:         t.str(hTitle),
		Description:   t.str(hDescription),
		Metadata:      t.str(hMetadata),
	}
	h.Columns = decodeColumns(t.tables(hColumns))
	if c, ok := t.sub(hCrs); ok {
		h.Crs = &Crs{
			Org:         c.str(crsOrg),
			Code:        c.i32(crsCode),
			Name:        c.str(crsName),
			Description: c.str(crsDescription),
			WKT:         c.str(crsWKT),
			CodeString:  c.str(crsCodeString),
		}
	}
	return h, nil
}

func decodeColumns(ts []table) []Column {
	if len(ts) == 0 {
		return nil
	}
	cols := make([]Column, len(ts))
	for i, c := range ts {
		cols[i] = Column{
			Name:        c.str(cName),
			Type:        ColumnType(c.u8(cType, 0)),
			Title:       c.str(cTitle),
			Description: c.str(cDescription),
			Width:       c.i32(cWidth),
			Precision:   c.i32(cPrecision),
			Scale:       c.i32(cScale),
			Nullable:    c.boolean(cNullable, true),
			Unique:      c.boolean(cUnique, false),
			PrimaryKey:  c.boolean(cPrimaryKey, false),
			Metadata:    c.str(cMetadata),
		}
	}
	return cols
}

// geometry is a decoded Geometry table. Z, M and time ordinates are not
// needed for rendering and are skipped.
type geometry struct {
	typ   GeometryType
	ends  []uint32
	xy    []float64
	parts []geometry
}

func decodeGeometry(t table) geometry {
	g := geometry{
		typ:  GeometryType(t.u8(gType, 0)),
		ends: t.uint32s(gEnds),
		xy:   t.float64s(gXY),
	}
	for _, p := range t.tables(gParts) {
		g.parts = append(g.parts, decodeGeometry(p))
	}
	return g
}

// record is one undecoded feature flatbuffer (size prefix stripped).
type record []byte

func (r record) decode() (g geometry, props []byte, cols []Column, ok bool) {
	t := rootTable(r)
	gt, ok := t.sub(fGeometry)
	if ok {
		g = decodeGeometry(gt)
	}
	return g, t.bytes(fProperties), decodeColumns(t.tables(fColumns)), ok
}
