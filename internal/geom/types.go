package geom

import "math"

// Point is an x/y pair in whatever space the caller works in (source units or pixels).
type Point [2]float64

type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// EmptyBBox returns an inverted box that any Extend call will overwrite.
func EmptyBBox() BBox {
	return BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// Valid reports whether min <= max on both axes.
func (b BBox) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

func (b BBox) Intersects(o BBox) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX && b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

func (b BBox) Contains(p Point) bool {
	return p[0] >= b.MinX && p[0] <= b.MaxX && p[1] >= b.MinY && p[1] <= b.MaxY
}

func (b BBox) Extend(p Point) BBox {
	b.MinX = math.Min(b.MinX, p[0])
	b.MinY = math.Min(b.MinY, p[1])
	b.MaxX = math.Max(b.MaxX, p[0])
	b.MaxY = math.Max(b.MaxY, p[1])
	return b
}

func (b BBox) Union(o BBox) BBox {
	if !o.Valid() {
		return b
	}
	return b.Extend(Point{o.MinX, o.MinY}).Extend(Point{o.MaxX, o.MaxY})
}

func (b BBox) Center() Point {
	return Point{(b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2}
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Data is a minimal geometry container for rendering
type Data struct {
	Points   [][2]float64
	Lines    [][][2]float64
	Polygons [][][][2]float64 // polygons with rings (first outer, following holes)
	BBox     BBox
	// Props holds one property map per polygon when the loader found any.
	Props []map[string]any
}

func newData() Data {
	return Data{BBox: EmptyBBox()}
}

func (d *Data) extend(p [2]float64) {
	d.BBox = d.BBox.Extend(p)
}

func (d *Data) empty() bool {
	return len(d.Points) == 0 && len(d.Lines) == 0 && len(d.Polygons) == 0
}

// Ring is one closed boundary. The closing point is implicit: the last point
// connects back to the first.
type Ring [][2]float64

// Area returns the signed shoelace area; positive for counter-clockwise rings.
func (r Ring) Area() float64 {
	var a float64
	for i := range r {
		j := (i + 1) % len(r)
		a += r[i][0]*r[j][1] - r[j][0]*r[i][1]
	}
	return a / 2
}

// Path is one assembled polygon: Rings[0] is the exterior, the rest are holes.
type Path struct {
	Rings []Ring
}

// NumPoints returns the total number of points over all rings.
func (p Path) NumPoints() int {
	n := 0
	for _, r := range p.Rings {
		n += len(r)
	}
	return n
}

// Flatten returns all ring coordinates as x0, y0, x1, y1, ...
func (p Path) Flatten() []float64 {
	out := make([]float64, 0, p.NumPoints()*2)
	for _, r := range p.Rings {
		for _, pt := range r {
			out = append(out, pt[0], pt[1])
		}
	}
	return out
}

// HoleStarts returns the vertex index at which each hole ring begins in Flatten order.
func (p Path) HoleStarts() []int {
	if len(p.Rings) < 2 {
		return nil
	}
	holes := make([]int, 0, len(p.Rings)-1)
	n := len(p.Rings[0])
	for _, r := range p.Rings[1:] {
		holes = append(holes, n)
		n += len(r)
	}
	return holes
}
