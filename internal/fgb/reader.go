package fgb

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"iter"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

type options struct {
	client    *http.Client
	readAhead int
	log       *zap.Logger
}

// Option configures a Reader.
type Option func(*options)

// WithHTTPClient sets the client used by OpenURL.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithReadAhead sets the minimum size of a remote range request.
func WithReadAhead(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readAhead = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{client: http.DefaultClient, readAhead: DefaultReadAhead, log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Reader is an opened FlatGeobuf file. It implements source.Source.
type Reader struct {
	r      rangeReader
	closer io.Closer
	header *Header
	log    *zap.Logger

	indexOffset    int64
	featuresOffset int64
}

// Open reads the header from r. The caller keeps ownership of r.
func Open(r io.ReaderAt, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	return open(context.Background(), localReader{r}, o)
}

// OpenFile opens a local FlatGeobuf file.
func OpenFile(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "open"), source.ErrSourceUnavailable)
	}
	rd, err := open(context.Background(), localReader{f}, buildOptions(opts))
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.closer = f
	return rd, nil
}

// OpenURL opens a remote FlatGeobuf file served with HTTP range support.
// Every fetch, including the ones made later by queries, uses the context
// of the call that triggers it.
func OpenURL(ctx context.Context, url string, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	h := &httpReader{client: o.client, url: url, readAhead: o.readAhead, log: o.log}
	rd, err := open(ctx, h, o)
	if err != nil {
		if errors.Is(err, source.ErrTransport) {
			return nil, errors.Mark(err, source.ErrSourceUnavailable)
		}
		return nil, err
	}
	return rd, nil
}

func open(ctx context.Context, r rangeReader, o options) (*Reader, error) {
	var pre [12]byte
	if err := readFull(ctx, r, pre[:], 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Mark(errors.New("file too short for header"), source.ErrHeaderCorrupt)
		}
		return nil, err
	}
	if !bytes.Equal(pre[:3], magic[:3]) || !bytes.Equal(pre[4:7], magic[4:7]) {
		return nil, errors.Mark(errors.Newf("bad magic % x", pre[:8]), source.ErrHeaderCorrupt)
	}
	if pre[3] != magic[3] {
		return nil, errors.Mark(errors.Newf("unsupported major version %d", pre[3]), source.ErrHeaderCorrupt)
	}
	size := binary.LittleEndian.Uint32(pre[8:])
	if size < 8 || size > maxHeaderSize {
		return nil, errors.Mark(errors.Newf("header size %d out of range", size), source.ErrHeaderCorrupt)
	}
	hb := make([]byte, size)
	if err := readFull(ctx, r, hb, int64(len(pre))); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Mark(errors.New("truncated header"), source.ErrHeaderCorrupt)
		}
		return nil, err
	}
	h, err := decodeHeader(hb)
	if err != nil {
		return nil, errors.Mark(err, source.ErrHeaderCorrupt)
	}
	if h.IndexNodeSize == 1 {
		return nil, errors.Mark(errors.New("index node size 1"), source.ErrHeaderCorrupt)
	}

	rd := &Reader{
		r:           r,
		header:      h,
		log:         o.log,
		indexOffset: int64(len(pre)) + int64(size),
	}
	rd.featuresOffset = rd.indexOffset
	if h.Indexed() {
		isz, err := indexSize(h.FeaturesCount, h.IndexNodeSize)
		if err != nil {
			return nil, errors.Mark(err, source.ErrHeaderCorrupt)
		}
		rd.featuresOffset += int64(isz)
	}
	o.log.Debug("opened flatgeobuf",
		zap.String("name", h.Name),
		zap.Stringer("geometry", h.GeometryType),
		zap.Uint64("features", h.FeaturesCount),
		zap.Uint16("node_size", h.IndexNodeSize),
		zap.Int("columns", len(h.Columns)))
	return rd, nil
}

// readFull reads len(p) bytes at off. A short read returns
// io.ErrUnexpectedEOF, nothing at all io.EOF.
func readFull(ctx context.Context, r rangeReader, p []byte, off int64) error {
	n, err := r.ReadAt(ctx, p, off)
	if n == len(p) {
		return nil
	}
	if err == io.EOF || err == nil {
		if n == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return err
}

// Header returns the decoded header.
func (rd *Reader) Header() *Header { return rd.header }

// Bounds returns the header envelope, or an invalid box when absent.
func (rd *Reader) Bounds() geom.BBox {
	e := rd.header.Envelope
	if len(e) < 4 {
		return geom.EmptyBBox()
	}
	return geom.BBox{MinX: e[0], MinY: e[1], MaxX: e[2], MaxY: e[3]}
}

func (rd *Reader) Close() error {
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}

// Query returns the features intersecting bbox. With a spatial index the
// candidates come from the packed R-tree and are returned in file order;
// otherwise the whole feature section is scanned.
func (rd *Reader) Query(ctx context.Context, bbox geom.BBox) (source.Iterator, error) {
	if !bbox.Valid() {
		return &iterator{rd: rd, done: true}, nil
	}
	if !rd.header.Indexed() {
		return &iterator{rd: rd, bbox: bbox, pos: rd.featuresOffset}, nil
	}
	readNodes := func(first, count uint64) ([]NodeItem, error) {
		buf := make([]byte, count*nodeItemSize)
		if err := readFull(ctx, rd.r, buf, rd.indexOffset+int64(first*nodeItemSize)); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, errors.Mark(errors.Newf("index truncated at node %d", first), source.ErrHeaderCorrupt)
			}
			return nil, err
		}
		nodes := make([]NodeItem, count)
		for i := range nodes {
			nodes[i] = readNode(buf[i*nodeItemSize:])
		}
		return nodes, nil
	}
	hits, err := searchTree(rd.header.FeaturesCount, rd.header.IndexNodeSize, bbox, readNodes)
	if err != nil {
		return nil, err
	}
	rd.log.Debug("index search", zap.Int("hits", len(hits)))
	return &iterator{rd: rd, bbox: bbox, hits: hits, indexed: true}, nil
}

// readRecord reads the size-prefixed feature at off. io.EOF means off is
// the end of the feature section.
func (rd *Reader) readRecord(ctx context.Context, off int64) (record, uint32, error) {
	var pre [4]byte
	if err := readFull(ctx, rd.r, pre[:], off); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, 0, source.Malformedf("truncated feature size at %d", off)
		}
		return nil, 0, err
	}
	size := binary.LittleEndian.Uint32(pre[:])
	if size < 4 || size > maxFeatureSize {
		return nil, 0, source.Malformedf("feature size %d at %d out of range", size, off)
	}
	buf := make([]byte, size)
	if err := readFull(ctx, rd.r, buf, off+4); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, source.Malformedf("truncated feature at %d", off)
		}
		return nil, 0, err
	}
	return record(buf), size, nil
}

type iterator struct {
	rd   *Reader
	bbox geom.BBox

	indexed bool
	hits    []searchHit
	next    int

	pos int64  // sequential scan: offset of the next feature
	seq uint64 // sequential scan: number of the next feature

	cur  *feature
	err  error
	done bool
}

func (it *iterator) Next(ctx context.Context) bool {
	it.cur = nil
	if it.err != nil || it.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.indexed {
		return it.nextIndexed(ctx)
	}
	return it.nextScan(ctx)
}

func (it *iterator) nextIndexed(ctx context.Context) bool {
	if it.next >= len(it.hits) {
		it.done = true
		return false
	}
	h := it.hits[it.next]
	it.next++
	rec, _, err := it.rd.readRecord(ctx, it.rd.featuresOffset+int64(h.offset))
	if err != nil {
		if err == io.EOF {
			err = source.Malformedf("feature %d offset %d past end of file", h.index, h.offset)
		}
		if !source.IsFeatureError(err) {
			it.err = err
			return false
		}
		// the index still points at the next feature; only this one is lost
		it.cur = &feature{rd: it.rd, index: h.index, err: err}
		return true
	}
	it.cur = &feature{rd: it.rd, rec: rec, index: h.index}
	return true
}

func (it *iterator) nextScan(ctx context.Context) bool {
	count := it.rd.header.FeaturesCount
	for {
		if count > 0 && it.seq >= count {
			it.done = true
			return false
		}
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		rec, size, err := it.rd.readRecord(ctx, it.pos)
		if err == io.EOF {
			it.done = true
			return false
		}
		if err != nil {
			// without an index a broken size prefix loses the position of
			// every later feature
			it.err = err
			return false
		}
		it.pos += 4 + int64(size)
		f := &feature{rd: it.rd, rec: rec, index: it.seq}
		it.seq++
		if f.decode() == nil && !f.g.bounds().Intersects(it.bbox) {
			continue
		}
		it.cur = f
		return true
	}
}

func (it *iterator) Feature() source.Feature {
	if it.cur == nil {
		return nil
	}
	return it.cur
}

func (it *iterator) Err() error { return it.err }

// feature is one record returned by a query. Decoding is lazy and cached.
type feature struct {
	rd    *Reader
	rec   record
	index uint64
	err   error // framing error from the read

	decoded bool
	g       geometry
	props   []byte
	cols    []Column
	derr    error

	consumed bool
}

func (f *feature) decode() error {
	if f.err != nil {
		return f.err
	}
	if f.decoded {
		return f.derr
	}
	f.decoded = true
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.derr = source.Malformedf("feature %d: undecodable buffer: %v", f.index, r)
			}
		}()
		var ok bool
		f.g, f.props, f.cols, ok = f.rec.decode()
		if !ok {
			f.derr = source.Malformedf("feature %d has no geometry", f.index)
		}
	}()
	return f.derr
}

// Index returns the feature number in file order.
func (f *feature) Index() uint64 { return f.index }

func (f *feature) Events() iter.Seq2[source.Event, error] {
	return func(yield func(source.Event, error) bool) {
		if f.consumed {
			yield(source.Event{}, source.ErrConsumed)
			return
		}
		f.consumed = true
		if err := f.decode(); err != nil {
			yield(source.Event{}, err)
			return
		}
		typ := f.g.typ
		if typ == Unknown {
			typ = f.rd.header.GeometryType
		}
		poly := 0
		if _, err := emitGeometry(yield, f.g, typ, &poly); err != nil {
			yield(source.Event{}, errors.Wrapf(err, "feature %d", f.index))
		}
	}
}

// Properties decodes the attribute values against the feature's own
// columns, or the header's when it has none.
func (f *feature) Properties() (map[string]any, error) {
	if err := f.decode(); err != nil {
		return nil, err
	}
	cols := f.cols
	if len(cols) == 0 {
		cols = f.rd.header.Columns
	}
	m, err := decodeProperties(f.props, cols)
	if err != nil {
		return m, errors.Mark(errors.Wrapf(err, "feature %d properties", f.index), source.ErrGeometryMalformed)
	}
	return m, nil
}
