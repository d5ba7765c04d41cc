package tui

import (
	"math"
	"strings"

	"fgbmap/internal/viewport"
)

// liveProjection is the projection the camera shows right now, including
// pan and zoom that have not settled yet.
func (m Model) liveProjection(w, h int) viewport.Projection {
	s := m.view
	s.Offset = m.deb.Focus()
	s.Zoom = m.deb.LiveZoom()
	return viewport.Project(s, w, h)
}

// placement maps mesh vertices, which are pixels around the projection the
// mesh was built with, onto the live canvas. Screen y grows downwards.
type placement struct {
	scale  float64
	tx, ty float64
	halfW  float64
	halfH  float64
}

func newPlacement(built, live viewport.Projection, w, h int) placement {
	return placement{
		scale: built.Resolution / live.Resolution,
		tx:    (built.Center[0] - live.Center[0]) / live.Resolution,
		ty:    (built.Center[1] - live.Center[1]) / live.Resolution,
		halfW: float64(w) / 2,
		halfH: float64(h) / 2,
	}
}

func (p placement) apply(v [2]float32) (float64, float64) {
	x := float64(v[0])*p.scale + p.tx
	y := float64(v[1])*p.scale + p.ty
	return p.halfW + x, p.halfH - y
}

// cellToLonLat converts a map cell to source coordinates under the live camera.
func (m Model) cellToLonLat(cx, cy, w, h int) (float64, float64, bool) {
	if w <= 0 || h <= 0 || m.view.Resolution <= 0 {
		return 0, 0, false
	}
	pw, ph := w*2, h*4
	live := m.liveProjection(pw, ph)
	if !live.Valid() {
		return 0, 0, false
	}
	px := float64(cx*2+1) - float64(pw)/2
	py := float64(ph)/2 - float64(cy*4+2)
	x, y := live.Unproject(px, py)
	return x, y, true
}

// renderMap draws the current mesh into a w x h cell braille canvas.
func (m Model) renderMap(w, h int) string {
	br := newBrailleBuf(w, h)
	if m.hasMesh && m.meshProj.Valid() {
		pw, ph := w*2, h*4
		live := m.liveProjection(pw, ph)
		if live.Valid() {
			m.drawMesh(br, newPlacement(m.meshProj, live, pw, ph))
		}
	}
	return strings.Join(br.toLines(), "\n")
}

func (m Model) drawMesh(br *brailleBuf, pl placement) {
	idx := m.mesh.Indices
	for i := 0; i+2 < len(idx); i += 3 {
		var pts [3][2]float64
		for k := range pts {
			pts[k][0], pts[k][1] = pl.apply(m.mesh.Vertices[idx[i+k]])
		}
		if m.wireframe {
			for k := range pts {
				a, b := pts[k], pts[(k+1)%3]
				br.drawSegment(a[0], a[1], b[0], b[1])
			}
			continue
		}
		br.fillTriangle(pts)
	}
}

// fillTriangle sets every micro-pixel whose center lies inside the triangle.
// Both windings are accepted since the y flip reverses orientation.
func (b *brailleBuf) fillTriangle(t [3][2]float64) {
	area := edge(t[0], t[1], t[2])
	if area == 0 || math.IsNaN(area) {
		return
	}
	minX := math.Floor(min(t[0][0], t[1][0], t[2][0]))
	maxX := math.Ceil(max(t[0][0], t[1][0], t[2][0]))
	minY := math.Floor(min(t[0][1], t[1][1], t[2][1]))
	maxY := math.Ceil(max(t[0][1], t[1][1], t[2][1]))
	x0, x1 := clampInt(minX, 0, b.w*2-1), clampInt(maxX, 0, b.w*2-1)
	y0, y1 := clampInt(minY, 0, b.h*4-1), clampInt(maxY, 0, b.h*4-1)
	if maxX < 0 || maxY < 0 || minX > float64(b.w*2) || minY > float64(b.h*4) {
		return
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := [2]float64{float64(x) + 0.5, float64(y) + 0.5}
			w0 := edge(t[1], t[2], p)
			w1 := edge(t[2], t[0], p)
			w2 := edge(t[0], t[1], p)
			if area > 0 && w0 >= 0 && w1 >= 0 && w2 >= 0 ||
				area < 0 && w0 <= 0 && w1 <= 0 && w2 <= 0 {
				b.setPixel(x, y)
			}
		}
	}
}

func edge(a, b, p [2]float64) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// drawSegment clips a segment to the canvas before rasterizing it.
func (b *brailleBuf) drawSegment(x0, y0, x1, y1 float64) {
	xmax, ymax := float64(b.w*2-1), float64(b.h*4-1)
	t0, t1 := 0.0, 1.0
	dx, dy := x1-x0, y1-y0
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = math.Min(t1, r)
		}
		return true
	}
	if !clip(-dx, x0) || !clip(dx, xmax-x0) || !clip(-dy, y0) || !clip(dy, ymax-y0) {
		return
	}
	b.drawLineMicro(
		int(math.Round(x0+t0*dx)), int(math.Round(y0+t0*dy)),
		int(math.Round(x0+t1*dx)), int(math.Round(y0+t1*dy)),
	)
}

func clampInt(v float64, lo, hi int) int {
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}
