// Package fgb reads and writes FlatGeobuf v3 files.
//
// A file is laid out as
//
//	magic (8 bytes) | header size (uint32) | header | packed R-tree | features
//
// where the header and every feature are flatbuffers and the packed Hilbert
// R-tree is optional. Readers work over a local io.ReaderAt or over HTTP range
// requests; both serve the source.Source contract.
package fgb

import "fmt"

var magic = [8]byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}

const (
	// DefaultNodeSize is the R-tree branching factor used when the header
	// does not set one.
	DefaultNodeSize = 16

	// maxHeaderSize bounds the header allocation for corrupt files.
	maxHeaderSize = 10 << 20
	// maxFeatureSize bounds a single feature allocation.
	maxFeatureSize = 256 << 20
)

type GeometryType uint8

const (
	Unknown GeometryType = iota
	Point
	LineString
	Polygon
	MultiPoint
	MultiLineString
	MultiPolygon
	GeometryCollection
)

func (t GeometryType) String() string {
	switch t {
	case Unknown:
		return "Unknown"
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	case MultiPoint:
		return "MultiPoint"
	case MultiLineString:
		return "MultiLineString"
	case MultiPolygon:
		return "MultiPolygon"
	case GeometryCollection:
		return "GeometryCollection"
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(t))
}

type ColumnType uint8

const (
	Byte ColumnType = iota
	UByte
	Bool
	Short
	UShort
	Int
	UInt
	Long
	ULong
	Float
	Double
	String
	Json
	DateTime
	Binary
)

var columnTypeNames = [...]string{
	"Byte", "UByte", "Bool", "Short", "UShort", "Int", "UInt", "Long",
	"ULong", "Float", "Double", "String", "Json", "DateTime", "Binary",
}

func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("ColumnType(%d)", uint8(t))
}

// Header is the decoded file header.
type Header struct {
	Name         string
	Envelope     []float64 // minX, minY, maxX, maxY when present
	GeometryType GeometryType
	HasZ         bool
	HasM         bool
	HasT         bool
	HasTM        bool
	Columns      []Column
	// FeaturesCount is zero when the writer did not know it.
	FeaturesCount uint64
	// IndexNodeSize is zero when the file has no spatial index.
	IndexNodeSize uint16
	Crs           *Crs
	Title         string
	Description   string
	Metadata      string
}

// Indexed reports whether a packed R-tree follows the header.
func (h *Header) Indexed() bool {
	return h.IndexNodeSize > 0 && h.FeaturesCount > 0
}

type Column struct {
	Name        string
	Type        ColumnType
	Title       string
	Description string
	Width       int32
	Precision   int32
	Scale       int32
	Nullable    bool
	Unique      bool
	PrimaryKey  bool
	Metadata    string
}

type Crs struct {
	Org         string
	Code        int32
	Name        string
	Description string
	WKT         string
	CodeString  string
}
