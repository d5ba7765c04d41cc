package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"fgbmap/internal/fgb"
	"fgbmap/internal/geom"
	"fgbmap/internal/memsource"
	"fgbmap/internal/source"
)

// Extensions lists the file types Open accepts.
var Extensions = []string{".fgb", ".geojson", ".json", ".wkt", ".txt", ".csv", ".kml"}

// Supported reports whether Open can read path.
func Supported(path string) bool {
	return IsRemote(path) || slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

type OpenOptions struct {
	HTTPTimeout time.Duration
	ReadAhead   int
	Log         *zap.Logger
}

// Open picks a source for location: remote URLs and .fgb files are read as
// FlatGeobuf, everything else is loaded into memory and indexed.
func Open(ctx context.Context, location string, o OpenOptions) (source.Source, error) {
	opts := []fgb.Option{fgb.WithLogger(o.Log), fgb.WithReadAhead(o.ReadAhead)}
	switch {
	case IsRemote(location):
		opts = append(opts, fgb.WithHTTPClient(&http.Client{Timeout: o.HTTPTimeout}))
		rd, err := fgb.OpenURL(ctx, location, opts...)
		if err != nil {
			return nil, err
		}
		return rd, nil
	case strings.EqualFold(filepath.Ext(location), ".fgb"):
		rd, err := fgb.OpenFile(location, opts...)
		if err != nil {
			return nil, err
		}
		return rd, nil
	}
	idx, err := memsource.Open(location)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Bounds returns the extent of src when the source knows it.
func Bounds(src source.Source) (geom.BBox, bool) {
	b, ok := src.(interface{ Bounds() geom.BBox })
	if !ok {
		return geom.BBox{}, false
	}
	bb := b.Bounds()
	return bb, bb.Valid()
}
