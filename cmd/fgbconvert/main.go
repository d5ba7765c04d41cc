// Command fgbconvert writes GeoJSON, WKT, CSV or KML geometry as an indexed
// FlatGeobuf file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"fgbmap/internal/fgb"
	"fgbmap/internal/geom"
	"fgbmap/internal/logger"
)

func main() {
	out := flag.String("o", "", "output file (default: input name with .fgb)")
	nodeSize := flag.Uint("node-size", fgb.DefaultNodeSize, "R-tree node size; 0 writes no index")
	epsg := flag.Int("epsg", 4326, "EPSG code recorded in the header; 0 omits the CRS")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: fgbconvert [flags] input\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if _, err := logger.Init(logger.Options{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	in := flag.Arg(0)
	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + ".fgb"
	}
	if err := convert(in, *out, uint16(*nodeSize), int32(*epsg)); err != nil {
		logger.Get().Error("convert failed", zap.String("input", in), zap.Error(err))
		os.Exit(1)
	}
}

func convert(in, out string, nodeSize uint16, epsg int32) error {
	d, err := geom.Load(in)
	if err != nil {
		return errors.Wrapf(err, "load %s", in)
	}
	w := buildWriter(strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)), d)
	w.NodeSize = nodeSize
	if epsg != 0 {
		w.Crs = &fgb.Crs{Org: "EPSG", Code: epsg}
	}
	if w.Len() == 0 {
		return errors.Newf("%s: no geometry to write", in)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	n, err := w.WriteTo(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "write %s", out)
	}
	logger.Get().Info("converted",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("features", w.Len()),
		zap.Int("columns", len(w.Columns)),
		zap.Int64("bytes", n))
	return nil
}

// buildWriter queues one feature per polygon, line and point of d.
// Polygons keep their attributes.
func buildWriter(name string, d geom.Data) *fgb.Writer {
	w := fgb.NewWriter(name, fgb.InferColumns(d.Props))
	log := logger.Get()
	add := func(g orb.Geometry, props map[string]any) {
		if err := w.Add(g, props); err != nil {
			log.Warn("skipping geometry", zap.String("type", g.GeoJSONType()), zap.Error(err))
		}
	}
	for i, rings := range d.Polygons {
		poly := make(orb.Polygon, len(rings))
		for j, r := range rings {
			poly[j] = make(orb.Ring, len(r))
			for k, p := range r {
				poly[j][k] = p
			}
		}
		var props map[string]any
		if i < len(d.Props) {
			props = d.Props[i]
		}
		add(poly, props)
	}
	for _, l := range d.Lines {
		ls := make(orb.LineString, len(l))
		for k, p := range l {
			ls[k] = p
		}
		add(ls, nil)
	}
	for _, p := range d.Points {
		add(orb.Point(p), nil)
	}
	return w
}
