// Package config loads the viewer configuration from JSON.
package config

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"fgbmap/internal/debounce"
	"fgbmap/internal/geom"
	"fgbmap/internal/tess"
	"fgbmap/internal/viewport"
)

// Duration is a time.Duration written as a Go duration string ("200ms").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string like \"200ms\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	// Source is a FlatGeobuf path or URL, or a GeoJSON/WKT/CSV/KML file.
	Source string `json:"source"`

	Center     [2]float64 `json:"center"`
	Resolution float64    `json:"resolution"`
	Zoom       float64    `json:"zoom"`
	MinZoom    float64    `json:"min_zoom"`
	MaxZoom    float64    `json:"max_zoom"`
	ZoomStep   float64    `json:"zoom_step"`

	PanSettle  Duration `json:"pan_settle"`
	ZoomSettle Duration `json:"zoom_settle"`

	Tessellator string `json:"tessellator"`
	FillRule    string `json:"fill_rule"`

	HTTPTimeout Duration `json:"http_timeout"`
	ReadAhead   int      `json:"read_ahead"`

	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Source:      "osm-buildings-zurich.fgb",
		Center:      [2]float64{8.53, 47.37},
		Resolution:  0.00003,
		Zoom:        1,
		MinZoom:     0.05,
		MaxZoom:     64,
		ZoomStep:    1.2,
		PanSettle:   Duration(200 * time.Millisecond),
		ZoomSettle:  Duration(150 * time.Millisecond),
		Tessellator: "fill",
		FillRule:    "evenodd",
		HTTPTimeout: Duration(30 * time.Second),
		ReadAhead:   64 << 10,
		LogFile:     "fgbmap.log",
		LogLevel:    "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []string
	if c.Resolution <= 0 {
		errs = append(errs, "resolution must be positive")
	}
	if c.MinZoom <= 0 || c.MaxZoom < c.MinZoom {
		errs = append(errs, "zoom range must satisfy 0 < min_zoom <= max_zoom")
	} else if c.Zoom < c.MinZoom || c.Zoom > c.MaxZoom {
		errs = append(errs, "zoom must lie in the zoom range")
	}
	if c.ZoomStep <= 1 {
		errs = append(errs, "zoom_step must be greater than 1")
	}
	if c.PanSettle <= 0 || c.ZoomSettle <= 0 {
		errs = append(errs, "settle durations must be positive")
	}
	if c.ReadAhead < 0 {
		errs = append(errs, "read_ahead must not be negative")
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, "http_timeout must not be negative")
	}
	if _, err := tess.New(c.Tessellator, tess.EvenOdd); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := tess.ParseFillRule(c.FillRule); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return errors.Newf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Viewport returns the initial view: zero offset at the configured zoom.
func (c Config) Viewport() viewport.State {
	return viewport.State{
		Center:     geom.Point(c.Center),
		Resolution: c.Resolution,
		Zoom:       c.Zoom,
		MinZoom:    c.MinZoom,
		MaxZoom:    c.MaxZoom,
	}
}

func (c Config) Debounce() debounce.Config {
	return debounce.Config{
		PanSettle:  time.Duration(c.PanSettle),
		ZoomSettle: time.Duration(c.ZoomSettle),
		ZoomStep:   c.ZoomStep,
		MinZoom:    c.MinZoom,
		MaxZoom:    c.MaxZoom,
	}
}

// NewTessellator builds the configured tessellation strategy.
func (c Config) NewTessellator() (tess.Tessellator, error) {
	rule, err := tess.ParseFillRule(c.FillRule)
	if err != nil {
		return nil, err
	}
	return tess.New(c.Tessellator, rule)
}
