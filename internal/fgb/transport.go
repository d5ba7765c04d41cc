package fgb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"fgbmap/internal/source"
)

// DefaultReadAhead is the minimum size of one remote range request.
const DefaultReadAhead = 64 << 10

// rangeReader is io.ReaderAt with a context for each fetch.
type rangeReader interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// localReader adapts an io.ReaderAt. Reads are synchronous; the context is
// only checked before each read.
type localReader struct {
	r io.ReaderAt
}

func (l localReader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := l.r.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, errors.Mark(errors.Wrapf(err, "read %d bytes at %d", len(p), off), source.ErrSourceUnavailable)
	}
	return n, err
}

// httpReader fetches byte ranges over HTTP and keeps the last response as a
// read-ahead window, so consecutive small reads share one request.
type httpReader struct {
	client    *http.Client
	url       string
	readAhead int
	log       *zap.Logger

	mu     sync.Mutex
	buf    []byte
	bufOff int64
}

func (h *httpReader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if off >= h.bufOff && off+int64(len(p)) <= h.bufOff+int64(len(h.buf)) {
		return copy(p, h.buf[off-h.bufOff:]), nil
	}
	length := max(len(p), h.readAhead)
	body, err := h.fetch(ctx, off, length)
	if err != nil {
		return 0, err
	}
	h.buf, h.bufOff = body, off
	n := copy(p, body)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *httpReader) fetch(ctx context.Context, off int64, length int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build request"), source.ErrTransport)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(length)-1))
	h.log.Debug("range request", zap.String("url", h.url), zap.Int64("offset", off), zap.Int("length", length))

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Mark(errors.Wrapf(err, "GET %s", h.url), source.ErrTransport)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read range at %d", off), source.ErrTransport)
		}
		return body, nil
	case http.StatusOK:
		// server ignored the range; keep the part we asked for
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, errors.Mark(errors.Wrap(err, "skip to range"), source.ErrTransport)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read range at %d", off), source.ErrTransport)
		}
		return body, nil
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	}
	return nil, errors.Mark(errors.Newf("GET %s: unexpected status %s", h.url, resp.Status), source.ErrTransport)
}
