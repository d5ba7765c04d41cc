// Command fgbmap is a terminal map viewer for FlatGeobuf polygon layers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"fgbmap/internal/config"
	"fgbmap/internal/logger"
	"fgbmap/internal/pipeline"
	"fgbmap/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fgbmap: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "fgbmap.json", "configuration file; missing means defaults")
	src := flag.String("source", "", "FlatGeobuf path or URL, or GeoJSON/WKT/CSV/KML file (overrides config)")
	tessName := flag.String("tess", "", "tessellator: fill or earcut (overrides config)")
	logFile := flag.String("log", "", "log file (overrides config)")
	once := flag.String("once", "", "load one WIDTHxHEIGHT pixel window, print its stats and exit")
	flag.Parse()
	if flag.NArg() > 0 && *src == "" {
		*src = flag.Arg(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *src != "" {
		cfg.Source = *src
	}
	if *tessName != "" {
		cfg.Tessellator = *tessName
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.Init(logger.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("source", cfg.Source), zap.String("tessellator", cfg.Tessellator))

	if *once != "" {
		w, h, err := parseSize(*once)
		if err != nil {
			return err
		}
		return loadOnce(context.Background(), cfg, w, h, log, os.Stdout)
	}

	m := tui.New(tui.Options{Config: cfg, Log: log})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run(); err != nil {
		return errors.Wrap(err, "tui")
	}
	return nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, errors.Newf("window %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "window %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "window %q", s)
	}
	return w, h, nil
}

// loadOnce runs a single reload of the configured view without a terminal UI.
func loadOnce(ctx context.Context, cfg config.Config, w, h int, log *zap.Logger, out io.Writer) error {
	src, err := pipeline.Open(ctx, cfg.Source, pipeline.OpenOptions{
		HTTPTimeout: time.Duration(cfg.HTTPTimeout),
		ReadAhead:   cfg.ReadAhead,
		Log:         log,
	})
	if err != nil {
		return err
	}
	defer src.Close()
	t, err := cfg.NewTessellator()
	if err != nil {
		return err
	}
	res, err := pipeline.NewLoader(src, t, log).Load(ctx, pipeline.Request{Seq: 1, View: cfg.Viewport(), Width: w, Height: h})
	if err != nil {
		return err
	}
	b := res.Projection.BBox
	normals, uvs := res.Mesh.Placeholders()
	fmt.Fprintf(out, "bbox        %.6f %.6f %.6f %.6f\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	fmt.Fprintf(out, "features    %d (%d skipped)\n", res.Stats.Features, res.Stats.SkippedFeatures)
	fmt.Fprintf(out, "polygons    %d (%d skipped)\n", res.Stats.Polygons, res.Stats.SkippedPolygons)
	fmt.Fprintf(out, "vertices    %d\n", len(res.Mesh.Vertices))
	fmt.Fprintf(out, "normals     %d\n", len(normals))
	fmt.Fprintf(out, "uvs         %d\n", len(uvs))
	fmt.Fprintf(out, "triangles   %d\n", res.Mesh.Triangles())
	fmt.Fprintf(out, "read        %s\n", res.Stats.Read)
	fmt.Fprintf(out, "tessellate  %s\n", res.Stats.Tessellate)
	return nil
}
