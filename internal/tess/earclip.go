package tess

import (
	"github.com/cockroachdb/errors"
	"github.com/rclancey/earcut"

	"fgbmap/internal/geom"
	"fgbmap/internal/mesh"
)

// EarClip triangulates with ear clipping over the flattened rings. Rings
// must not self-intersect and holes must lie inside the exterior; neither is
// checked, violating input gives undefined but bounded output.
type EarClip struct{}

func (EarClip) Tessellate(p geom.Path) (mesh.Fragment, error) {
	if len(p.Rings) == 0 || len(p.Rings[0]) < 3 {
		return mesh.Fragment{}, nil
	}
	coords := p.Flatten()
	idx, err := earcut.Earcut(coords, p.HoleStarts(), 2)
	if err != nil {
		return mesh.Fragment{}, errors.Mark(errors.Wrap(err, "earcut"), ErrTessellationFailure)
	}
	f := mesh.Fragment{
		Vertices: make([][2]float32, len(coords)/2),
		Indices:  make([]uint32, len(idx)),
	}
	for i := range f.Vertices {
		f.Vertices[i] = [2]float32{float32(coords[2*i]), float32(coords[2*i+1])}
	}
	for i, v := range idx {
		if v < 0 || v >= len(f.Vertices) {
			return mesh.Fragment{}, failure("earcut returned index %d for %d vertices", v, len(f.Vertices))
		}
		f.Indices[i] = uint32(v)
	}
	return f, nil
}
