// Package pipeline runs one map reload: project the viewport, query the
// source, assemble polygon paths, tessellate them and combine the fragments
// into a single mesh.
package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"fgbmap/internal/assemble"
	"fgbmap/internal/geom"
	"fgbmap/internal/mesh"
	"fgbmap/internal/source"
	"fgbmap/internal/tess"
	"fgbmap/internal/viewport"
)

// ErrEmptyWindow is returned for reloads of a window without pixels.
var ErrEmptyWindow = errors.New("empty window")

// Request describes one reload.
type Request struct {
	Seq    uint64
	View   viewport.State
	Width  int
	Height int
}

type Stats struct {
	Features        int
	SkippedFeatures int
	Polygons        int
	SkippedPolygons int
	Triangles       int
	Read            time.Duration
	Tessellate      time.Duration
}

// Result is a finished reload. The mesh is in pixels relative to
// Projection.Center, y up.
type Result struct {
	Seq        uint64
	Projection viewport.Projection
	Mesh       mesh.Mesh
	Stats      Stats
}

// Loader reloads meshes from one source. It holds no per-reload state and
// may run several loads at once.
type Loader struct {
	src  source.Source
	tess tess.Tessellator
	log  *zap.Logger
}

func NewLoader(src source.Source, t tess.Tessellator, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{src: src, tess: t, log: log}
}

// WithTessellator returns a loader sharing the source but tessellating with t.
func (l *Loader) WithTessellator(t tess.Tessellator) *Loader {
	c := *l
	c.tess = t
	return &c
}

func (l *Loader) Tessellator() tess.Tessellator { return l.tess }

func (l *Loader) Source() source.Source { return l.src }

// Load runs the reload described by req. Malformed features and polygons
// that fail to tessellate are skipped and counted; source, header and
// transport errors abort the reload.
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return Result{}, errors.Mark(errors.Newf("window %dx%d", req.Width, req.Height), ErrEmptyWindow)
	}
	proj := viewport.Project(req.View, req.Width, req.Height)
	if !proj.Valid() {
		return Result{}, errors.Newf("invalid projection: resolution %v, bbox %+v", proj.Resolution, proj.BBox)
	}
	log := l.log.With(zap.Uint64("seq", req.Seq))
	res := Result{Seq: req.Seq, Projection: proj}

	start := time.Now()
	paths, err := l.read(ctx, proj, &res.Stats, log)
	if err != nil {
		return Result{}, err
	}
	res.Stats.Read = time.Since(start)

	start = time.Now()
	var acc mesh.Accumulator
	for i, p := range paths {
		frag, err := l.tess.Tessellate(p)
		if err == nil {
			err = acc.Add(frag)
		}
		if err != nil {
			if errors.Is(err, tess.ErrTessellationFailure) || errors.Is(err, mesh.ErrInvalidFragment) {
				res.Stats.SkippedPolygons++
				log.Warn("skipping polygon", zap.Int("polygon", i), zap.Int("points", p.NumPoints()), zap.Error(err))
				continue
			}
			return Result{}, errors.Wrap(err, "combine mesh")
		}
	}
	res.Mesh = acc.Mesh()
	res.Stats.Polygons = len(paths)
	res.Stats.Triangles = res.Mesh.Triangles()
	res.Stats.Tessellate = time.Since(start)

	log.Info("reload",
		zap.Int("features", res.Stats.Features),
		zap.Int("skipped_features", res.Stats.SkippedFeatures),
		zap.Int("polygons", res.Stats.Polygons),
		zap.Int("skipped_polygons", res.Stats.SkippedPolygons),
		zap.Int("triangles", res.Stats.Triangles),
		zap.Duration("read", res.Stats.Read),
		zap.Duration("tessellate", res.Stats.Tessellate))
	return res, nil
}

func (l *Loader) read(ctx context.Context, proj viewport.Projection, st *Stats, log *zap.Logger) ([]geom.Path, error) {
	it, err := l.src.Query(ctx, proj.BBox)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	var paths []geom.Path
	for it.Next(ctx) {
		n := st.Features
		st.Features++
		f := it.Feature()
		ps, err := assemble.Assemble(proj, f.Events())
		if err != nil {
			if !source.IsFeatureError(err) {
				return nil, errors.Wrap(err, "read feature")
			}
			st.SkippedFeatures++
			fields := []zap.Field{zap.Int("feature", n), zap.Error(err)}
			if ix, ok := f.(interface{ Index() uint64 }); ok {
				fields = append(fields, zap.Uint64("index", ix.Index()))
			}
			log.Warn("skipping feature", fields...)
			continue
		}
		paths = append(paths, ps...)
	}
	if err := it.Err(); err != nil {
		return nil, errors.Wrap(err, "query")
	}
	return paths, nil
}
