// Package tess turns assembled polygon paths into triangle fragments.
package tess

import (
	"strings"

	"github.com/cockroachdb/errors"

	"fgbmap/internal/geom"
	"fgbmap/internal/mesh"
)

// ErrTessellationFailure marks errors where a path could not be triangulated.
// The pipeline skips the polygon and keeps going.
var ErrTessellationFailure = errors.New("tessellation failure")

// Tessellator triangulates one polygon path. Output vertices are in the
// path's coordinate space and indices are local to the fragment.
// Empty or degenerate paths produce an empty fragment and no error.
type Tessellator interface {
	Tessellate(p geom.Path) (mesh.Fragment, error)
}

// FillRule decides which winding numbers count as inside.
type FillRule int

const (
	EvenOdd FillRule = iota
	NonZero
)

func (r FillRule) String() string {
	if r == NonZero {
		return "nonzero"
	}
	return "evenodd"
}

func (r FillRule) inside(winding int) bool {
	if r == NonZero {
		return winding != 0
	}
	return winding%2 != 0
}

func ParseFillRule(s string) (FillRule, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "", "evenodd":
		return EvenOdd, nil
	case "nonzero":
		return NonZero, nil
	}
	return EvenOdd, errors.Newf("unknown fill rule %q", s)
}

// Names lists the strategies accepted by New, default first.
var Names = []string{"fill", "earcut"}

// New returns the tessellator registered under name. The rule only applies
// to the fill strategy.
func New(name string, rule FillRule) (Tessellator, error) {
	switch strings.ToLower(name) {
	case "", "fill":
		return Fill{Rule: rule}, nil
	case "earcut", "earclip":
		return EarClip{}, nil
	}
	return nil, errors.Newf("unknown tessellator %q (want one of %s)", name, strings.Join(Names, ", "))
}

func failure(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrTessellationFailure)
}
