package viewport

import (
	"math"
	"testing"

	"fgbmap/internal/geom"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestProjectZurichWindow(t *testing.T) {
	s := State{Center: geom.Point{8.53, 47.37}, Resolution: 0.00003, Zoom: 1}
	p := Project(s, 978, 733)

	want := geom.BBox{
		MinX: 8.53 - 978.0/2*0.00003,
		MinY: 47.37 - 733.0/2*0.00003,
		MaxX: 8.53 + 978.0/2*0.00003,
		MaxY: 47.37 + 733.0/2*0.00003,
	}
	if p.BBox != want {
		t.Fatalf("bbox = %+v, want %+v", p.BBox, want)
	}
	if p.Center != s.Center {
		t.Errorf("center = %v, want %v", p.Center, s.Center)
	}
	if p.Resolution != 0.00003 {
		t.Errorf("resolution = %v", p.Resolution)
	}
	if !p.Valid() {
		t.Error("projection should be valid")
	}
}

func TestProjectOffsetScalesWithZoom(t *testing.T) {
	tests := []struct {
		name   string
		zoom   float64
		offset geom.Point
	}{
		{"zoom 1", 1, geom.Point{100, -50}},
		{"zoomed out", 4, geom.Point{100, -50}},
		{"zoomed in", 0.25, geom.Point{-10, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Center: geom.Point{10, 20}, Offset: tt.offset, Resolution: 0.5, Zoom: tt.zoom}
			p := Project(s, 200, 100)
			res := 0.5 * tt.zoom
			if !approx(p.Center[0], 10+tt.offset[0]*res) || !approx(p.Center[1], 20+tt.offset[1]*res) {
				t.Fatalf("center = %v", p.Center)
			}
			// the unpanned center sits exactly -offset pixels away on screen
			px, py := p.Project(10, 20)
			if !approx(px, -tt.offset[0]) || !approx(py, -tt.offset[1]) {
				t.Errorf("unpanned center projects to (%v, %v), want %v", px, py, tt.offset)
			}
			if !approx(p.BBox.Width(), 200*res) || !approx(p.BBox.Height(), 100*res) {
				t.Errorf("bbox size = %v x %v", p.BBox.Width(), p.BBox.Height())
			}
		})
	}
}

func TestProjectUnprojectRoundTrip(t *testing.T) {
	p := Project(State{Center: geom.Point{8.53, 47.37}, Offset: geom.Point{12, -7}, Resolution: 0.00003, Zoom: 1.7}, 640, 480)
	coords := []geom.Point{{8.53, 47.37}, {8.5312, 47.3699}, {8.4, 47.5}, {-122.4, 37.8}}
	for _, c := range coords {
		px, py := p.Project(c[0], c[1])
		x, y := p.Unproject(px, py)
		if math.Abs(x-c[0]) > 1e-9 || math.Abs(y-c[1]) > 1e-9 {
			t.Errorf("round trip %v -> (%v, %v) -> (%v, %v)", c, px, py, x, y)
		}
	}
}

func TestProjectYAxisPointsUp(t *testing.T) {
	p := Project(State{Center: geom.Point{0, 0}, Resolution: 1, Zoom: 1}, 10, 10)
	_, py := p.Project(0, 5)
	if py <= 0 {
		t.Fatalf("north of center should project to positive y, got %v", py)
	}
}

func TestApplyClampsZoom(t *testing.T) {
	s := State{Zoom: 1, MinZoom: 0.1, MaxZoom: 8}
	s.Apply(Change{ZoomChanged: true, Zoom: 0.001})
	if s.Zoom != 0.1 {
		t.Errorf("zoom = %v, want 0.1", s.Zoom)
	}
	s.Apply(Change{ZoomChanged: true, Zoom: 100})
	if s.Zoom != 8 {
		t.Errorf("zoom = %v, want 8", s.Zoom)
	}
	s.Apply(Change{OffsetChanged: true, Offset: geom.Point{3, 4}})
	if s.Offset != (geom.Point{3, 4}) || s.Zoom != 8 {
		t.Errorf("state = %+v", s)
	}
}
