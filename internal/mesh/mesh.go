// Package mesh holds triangle buffers and combines per-polygon fragments
// into the single mesh handed to the renderer.
package mesh

import (
	"math"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidFragment is returned for fragments whose indices do not form
	// whole triangles over their own vertices.
	ErrInvalidFragment = errors.New("invalid mesh fragment")
	// ErrIndexOverflow is returned when a mesh would need indices beyond uint32.
	ErrIndexOverflow = errors.New("mesh index overflow")
)

// Fragment is the output of tessellating one polygon. Indices are local:
// 0 refers to Vertices[0].
type Fragment struct {
	Vertices [][2]float32
	Indices  []uint32
}

func (f Fragment) Triangles() int { return len(f.Indices) / 3 }

// Validate checks that every index is in range and the index count is a
// multiple of three.
func (f Fragment) Validate() error {
	if len(f.Indices)%3 != 0 {
		return errors.Mark(errors.Newf("%d indices are not whole triangles", len(f.Indices)), ErrInvalidFragment)
	}
	for i, idx := range f.Indices {
		if int(idx) >= len(f.Vertices) {
			return errors.Mark(errors.Newf("index %d at %d out of range [0,%d)", idx, i, len(f.Vertices)), ErrInvalidFragment)
		}
	}
	return nil
}

// Mesh is a combined triangle list over a shared vertex buffer.
type Mesh struct {
	Vertices [][2]float32
	Indices  []uint32
}

func (m Mesh) Triangles() int { return len(m.Indices) / 3 }

// Placeholders returns zero normals and UVs, one per vertex, for renderers
// that require those attributes.
func (m Mesh) Placeholders() (normals [][3]float32, uvs [][2]float32) {
	return make([][3]float32, len(m.Vertices)), make([][2]float32, len(m.Vertices))
}

// Accumulator concatenates fragments, shifting each fragment's indices by
// the number of vertices added before it. The zero value is ready to use.
type Accumulator struct {
	mesh Mesh
	base uint32
}

// Add appends f. A rejected fragment leaves the accumulator unchanged.
func (a *Accumulator) Add(f Fragment) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if uint64(a.base)+uint64(len(f.Vertices)) > math.MaxUint32 {
		return errors.Mark(errors.Newf("%d vertices after base %d", len(f.Vertices), a.base), ErrIndexOverflow)
	}
	a.mesh.Vertices = append(a.mesh.Vertices, f.Vertices...)
	for _, idx := range f.Indices {
		a.mesh.Indices = append(a.mesh.Indices, idx+a.base)
	}
	a.base += uint32(len(f.Vertices))
	return nil
}

// Base returns the index the next fragment's first vertex will get.
func (a *Accumulator) Base() uint32 { return a.base }

// Mesh returns the combined mesh. The accumulator keeps ownership of the
// buffers; callers must not add more fragments while using it.
func (a *Accumulator) Mesh() Mesh { return a.mesh }
