package mesh

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestAccumulatorOffsetsIndices(t *testing.T) {
	frags := []Fragment{
		{Vertices: [][2]float32{{0, 0}, {1, 0}, {0, 1}}, Indices: []uint32{0, 1, 2}},
		{},
		{Vertices: [][2]float32{{5, 5}, {6, 5}, {6, 6}, {5, 6}}, Indices: []uint32{0, 1, 2, 0, 2, 3}},
		{Vertices: [][2]float32{{9, 9}}},
		{Vertices: [][2]float32{{0, 0}, {2, 0}, {0, 2}}, Indices: []uint32{2, 1, 0}},
	}
	var acc Accumulator
	wantBase := []uint32{3, 3, 7, 8, 11}
	for i, f := range frags {
		if err := acc.Add(f); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
		if acc.Base() != wantBase[i] {
			t.Errorf("base after %d = %d, want %d", i, acc.Base(), wantBase[i])
		}
	}
	m := acc.Mesh()
	want := []uint32{0, 1, 2, 3, 4, 5, 3, 5, 6, 10, 9, 8}
	if len(m.Indices) != len(want) {
		t.Fatalf("indices = %v", m.Indices)
	}
	for i := range want {
		if m.Indices[i] != want[i] {
			t.Errorf("index %d = %d, want %d", i, m.Indices[i], want[i])
		}
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			t.Fatalf("index %d out of range", idx)
		}
	}
	if m.Triangles() != 4 {
		t.Errorf("triangles = %d", m.Triangles())
	}
	normals, uvs := m.Placeholders()
	if len(normals) != len(m.Vertices) || len(uvs) != len(m.Vertices) || normals[3] != [3]float32{} {
		t.Errorf("placeholders = %d normals, %d uvs", len(normals), len(uvs))
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	var acc Accumulator
	if err := acc.Add(Fragment{}); err != nil {
		t.Fatal(err)
	}
	if acc.Base() != 0 || len(acc.Mesh().Vertices) != 0 {
		t.Errorf("empty fragment changed the accumulator")
	}
}

func TestAccumulatorRejectsInvalidFragments(t *testing.T) {
	tests := []struct {
		name string
		f    Fragment
	}{
		{"index out of range", Fragment{Vertices: [][2]float32{{0, 0}, {1, 0}, {0, 1}}, Indices: []uint32{0, 1, 3}}},
		{"partial triangle", Fragment{Vertices: [][2]float32{{0, 0}, {1, 0}, {0, 1}}, Indices: []uint32{0, 1}}},
		{"indices without vertices", Fragment{Indices: []uint32{0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc Accumulator
			acc.Add(Fragment{Vertices: [][2]float32{{0, 0}}})
			if err := acc.Add(tt.f); !errors.Is(err, ErrInvalidFragment) {
				t.Fatalf("err = %v", err)
			}
			if acc.Base() != 1 || len(acc.Mesh().Indices) != 0 {
				t.Errorf("rejected fragment modified the mesh")
			}
		})
	}
}

func TestAccumulatorOverflow(t *testing.T) {
	acc := Accumulator{base: 1<<32 - 2}
	err := acc.Add(Fragment{Vertices: make([][2]float32, 3)})
	if !errors.Is(err, ErrIndexOverflow) {
		t.Fatalf("err = %v", err)
	}
}
