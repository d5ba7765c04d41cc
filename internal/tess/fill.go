package tess

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"fgbmap/internal/geom"
	"fgbmap/internal/mesh"
)

// Fill triangulates a path with a plane sweep. Edges are first split where
// they cross or touch each other, then a sweep in increasing y cuts the
// filled area into y-monotone pieces and triangulates each piece as the
// sweep line passes over it. Self-intersecting and overlapping rings are
// handled according to Rule.
type Fill struct {
	Rule FillRule
}

func (f Fill) Tessellate(p geom.Path) (frag mesh.Fragment, err error) {
	segs, err := ringSegments(p)
	if err != nil || len(segs) == 0 {
		return mesh.Fragment{}, err
	}
	g := planarize(segs)
	if len(g.edges) == 0 {
		return mesh.Fragment{}, nil
	}

	// an inconsistent sweep can leave a chain empty; report it like any
	// other inconsistency instead of crashing the reload
	defer func() {
		if r := recover(); r != nil {
			frag, err = mesh.Fragment{}, failure("sweep: %v", r)
		}
	}()
	s := sweep{rule: f.Rule, pts: g.pts}
	if err := s.run(g.edges); err != nil {
		return mesh.Fragment{}, err
	}
	return fragment(g.pts, s.tris), nil
}

type segment struct {
	from, to geom.Point
}

// ringSegments returns the closed boundary of every ring as segments,
// dropping repeated points and the explicit closing point.
func ringSegments(p geom.Path) ([]segment, error) {
	var segs []segment
	for _, r := range p.Rings {
		pts := make([]geom.Point, 0, len(r))
		for _, pt := range r {
			if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
				return nil, failure("non-finite coordinate %v", pt)
			}
			if len(pts) > 0 && pts[len(pts)-1] == geom.Point(pt) {
				continue
			}
			pts = append(pts, pt)
		}
		for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
			pts = pts[:len(pts)-1]
		}
		if len(pts) < 2 {
			continue
		}
		for i := range pts {
			segs = append(segs, segment{pts[i], pts[(i+1)%len(pts)]})
		}
	}
	return segs, nil
}

type edge struct {
	a, b int // a precedes b in sweep order
	// winding is +1 when the ring runs from a to b, summed over coincident edges
	winding int
}

type graph struct {
	pts   []geom.Point // sorted by (y, x)
	edges []edge
}

// planarize splits segments at crossings and at endpoints lying on other
// segments, merges coincident pieces and drops those whose windings cancel.
func planarize(segs []segment) graph {
	ext := geom.EmptyBBox()
	for _, s := range segs {
		ext = ext.Extend(s.from).Extend(s.to)
	}
	tol := 1e-10 * math.Max(ext.Width(), ext.Height())

	cuts := make([][]geom.Point, len(segs))
	for i := range segs {
		for j := i + 1; j < len(segs); j++ {
			s, t := segs[i], segs[j]
			if !segBounds(s).Intersects(segBounds(t)) {
				continue
			}
			if pt, ok := crossing(s, t); ok {
				cuts[i] = append(cuts[i], pt)
				cuts[j] = append(cuts[j], pt)
			}
			for _, end := range [2]geom.Point{t.from, t.to} {
				if onInterior(s, end, tol) {
					cuts[i] = append(cuts[i], end)
				}
			}
			for _, end := range [2]geom.Point{s.from, s.to} {
				if onInterior(t, end, tol) {
					cuts[j] = append(cuts[j], end)
				}
			}
		}
	}

	var pts []geom.Point
	ids := make(map[geom.Point]int)
	vertex := func(p geom.Point) int {
		if id, ok := ids[p]; ok {
			return id
		}
		ids[p] = len(pts)
		pts = append(pts, p)
		return len(pts) - 1
	}
	type piece struct{ from, to int }
	var pieces []piece
	for i, s := range segs {
		dir := sub(s.to, s.from)
		c := cuts[i]
		sort.SliceStable(c, func(x, y int) bool {
			return dot(sub(c[x], s.from), dir) < dot(sub(c[y], s.from), dir)
		})
		prev := vertex(s.from)
		for _, p := range append(c, s.to) {
			cur := vertex(p)
			if cur != prev {
				pieces = append(pieces, piece{prev, cur})
				prev = cur
			}
		}
	}

	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return before(pts[order[x]], pts[order[y]]) })
	rank := make([]int, len(pts))
	sorted := make([]geom.Point, len(pts))
	for r, id := range order {
		rank[id] = r
		sorted[r] = pts[id]
	}

	var edges []edge
	merged := make(map[[2]int]int)
	for _, pc := range pieces {
		e := edge{a: rank[pc.from], b: rank[pc.to], winding: 1}
		if e.a > e.b {
			e.a, e.b, e.winding = e.b, e.a, -1
		}
		if k, ok := merged[[2]int{e.a, e.b}]; ok {
			edges[k].winding += e.winding
			continue
		}
		merged[[2]int{e.a, e.b}] = len(edges)
		edges = append(edges, e)
	}
	edges = slices.DeleteFunc(edges, func(e edge) bool { return e.winding == 0 })
	return graph{pts: sorted, edges: edges}
}

func segBounds(s segment) geom.BBox {
	return geom.EmptyBBox().Extend(s.from).Extend(s.to)
}

// crossing returns the point where s and t cross away from their endpoints.
func crossing(s, t segment) (geom.Point, bool) {
	r, q := sub(s.to, s.from), sub(t.to, t.from)
	d := cross(r, q)
	if d == 0 {
		return geom.Point{}, false
	}
	w := sub(t.from, s.from)
	u := cross(w, q) / d
	v := cross(w, r) / d
	const margin = 1e-9
	if u <= margin || u >= 1-margin || v <= margin || v >= 1-margin {
		return geom.Point{}, false
	}
	return geom.Point{s.from[0] + u*r[0], s.from[1] + u*r[1]}, true
}

// onInterior reports whether p lies on s within tol, excluding its endpoints.
func onInterior(s segment, p geom.Point, tol float64) bool {
	if p == s.from || p == s.to {
		return false
	}
	r := sub(s.to, s.from)
	l2 := dot(r, r)
	if l2 == 0 {
		return false
	}
	w := sub(p, s.from)
	if t := dot(w, r) / l2; t <= 0 || t >= 1 {
		return false
	}
	return math.Abs(cross(r, w))/math.Sqrt(l2) <= tol
}

// before is the sweep order: increasing y, then increasing x.
func before(p, q geom.Point) bool {
	if p[1] != q[1] {
		return p[1] < q[1]
	}
	return p[0] < q[0]
}

type activeEdge struct {
	edge
	wr  int     // winding number right of the edge
	reg *region // filled area right of the edge, nil when outside
}

type sweep struct {
	rule FillRule
	pts  []geom.Point
	ael  []*activeEdge // left to right along the sweep line
	tris [][3]int
}

func (s *sweep) run(edges []edge) error {
	up := make([][]edge, len(s.pts))
	for _, e := range edges {
		up[e.a] = append(up[e.a], e)
	}
	for v := range s.pts {
		if err := s.step(v, up[v]); err != nil {
			return err
		}
	}
	if len(s.ael) != 0 {
		return failure("%d edges still active after the sweep", len(s.ael))
	}
	return nil
}

func (s *sweep) step(v int, up []edge) error {
	lo, hi := -1, -1
	for i, e := range s.ael {
		if e.b != v {
			continue
		}
		if lo >= 0 && i != hi+1 {
			return failure("edges ending at %v are not adjacent", s.pts[v])
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	if lo < 0 && len(up) == 0 {
		return nil
	}

	var left, right *region
	p := lo
	if lo >= 0 {
		left = s.regionLeftOf(lo)
		if left != nil {
			left.addRight(s, v)
		}
		for _, e := range s.ael[lo:hi] {
			if e.reg != nil {
				e.reg.finish(s, v)
			}
		}
		right = s.ael[hi].reg
		if right != nil {
			right.addLeft(s, v)
		}
		s.ael = slices.Delete(s.ael, lo, hi+1)
		if len(up) == 0 {
			switch {
			case left != nil && right != nil:
				s.ael[lo-1].reg = &region{pending: left.main, main: right.main}
			case left != nil || right != nil:
				return failure("fill differs on the two sides of %v", s.pts[v])
			}
			return nil
		}
	} else {
		p = s.position(v)
		if c := s.regionLeftOf(p); c != nil {
			left, right = c.split(s, v)
		}
	}

	wr := 0
	if p > 0 {
		s.ael[p-1].reg = left
		wr = s.ael[p-1].wr
	}
	origin := s.pts[v]
	slices.SortStableFunc(up, func(d1, d2 edge) int {
		c := cross(sub(s.pts[d1.b], origin), sub(s.pts[d2.b], origin))
		return cmp.Compare(c, 0)
	})
	added := make([]*activeEdge, len(up))
	for i, e := range up {
		wr += e.winding
		ae := &activeEdge{edge: e, wr: wr}
		switch {
		case i == len(up)-1:
			if (right != nil) != s.rule.inside(wr) {
				return failure("fill differs on the two sides of %v", origin)
			}
			ae.reg = right
		case s.rule.inside(wr):
			ae.reg = newRegion(v)
		}
		added[i] = ae
	}
	s.ael = slices.Insert(s.ael, p, added...)
	return nil
}

func (s *sweep) regionLeftOf(i int) *region {
	if i == 0 {
		return nil
	}
	return s.ael[i-1].reg
}

// position returns how many active edges have v on their right.
func (s *sweep) position(v int) int {
	pv := s.pts[v]
	for i, e := range s.ael {
		pa := s.pts[e.a]
		if cross(sub(s.pts[e.b], pa), sub(pv, pa)) >= 0 {
			return i
		}
	}
	return len(s.ael)
}

func (s *sweep) emit(a, b, c int) {
	s.tris = append(s.tris, [3]int{a, b, c})
}

// region is a filled area between two active edges. Below an unresolved
// merge vertex it consists of two monotone pieces: pending on the left and
// main on the right, both ending at that vertex.
type region struct {
	main    *chain
	pending *chain
}

func newRegion(v int) *region {
	return &region{main: newChain(v)}
}

func (r *region) addLeft(s *sweep, v int) {
	if r.pending != nil {
		r.pending.finish(s, v)
		r.pending = nil
	}
	r.main.add(s, v, leftSide)
}

func (r *region) addRight(s *sweep, v int) {
	if r.pending != nil {
		r.pending.add(s, v, rightSide)
		r.main.finish(s, v)
		r.main, r.pending = r.pending, nil
		return
	}
	r.main.add(s, v, rightSide)
}

func (r *region) finish(s *sweep, v int) {
	if r.pending != nil {
		r.pending.finish(s, v)
	}
	r.main.finish(s, v)
}

// split divides the region at v, which starts new edges inside it, by a
// diagonal from v to the most recent vertex of the region.
func (r *region) split(s *sweep, v int) (left, right *region) {
	if r.pending != nil {
		r.pending.add(s, v, rightSide)
		r.main.add(s, v, leftSide)
		return &region{main: r.pending}, &region{main: r.main}
	}
	h := r.main.top()
	if h.side == leftSide {
		l := newChain(h.v)
		l.add(s, v, rightSide)
		r.main.add(s, v, leftSide)
		return &region{main: l}, &region{main: r.main}
	}
	r.main.add(s, v, rightSide)
	rc := newChain(h.v)
	rc.add(s, v, leftSide)
	return &region{main: r.main}, &region{main: rc}
}

type side uint8

const (
	bottom side = iota
	leftSide
	rightSide
)

type chainVertex struct {
	v    int
	side side
}

// chain is the untriangulated part of a monotone piece: a reflex chain on one
// side whose first vertex may belong to the other side.
type chain struct {
	stack []chainVertex
}

func newChain(v int) *chain {
	return &chain{stack: []chainVertex{{v: v}}}
}

func (c *chain) top() chainVertex {
	return c.stack[len(c.stack)-1]
}

func (c *chain) add(s *sweep, v int, sd side) {
	last := c.top()
	if last.side != sd {
		for i := 0; i+1 < len(c.stack); i++ {
			s.emit(v, c.stack[i].v, c.stack[i+1].v)
		}
		c.stack = append(c.stack[:0], last, chainVertex{v, sd})
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
	for len(c.stack) > 0 {
		prev := c.top()
		if !s.convex(v, last.v, prev.v, sd) {
			break
		}
		s.emit(v, last.v, prev.v)
		last = prev
		c.stack = c.stack[:len(c.stack)-1]
	}
	c.stack = append(c.stack, last, chainVertex{v, sd})
}

// finish closes the piece at its last vertex v.
func (c *chain) finish(s *sweep, v int) {
	for i := 0; i+1 < len(c.stack); i++ {
		s.emit(v, c.stack[i].v, c.stack[i+1].v)
	}
	c.stack = nil
}

// convex reports whether the triangle v, last, prev lies inside the piece,
// given that last and prev are on side sd.
func (s *sweep) convex(v, last, prev int, sd side) bool {
	c := cross(sub(s.pts[v], s.pts[last]), sub(s.pts[prev], s.pts[last]))
	if sd == leftSide {
		return c < 0
	}
	return c > 0
}

// fragment turns counter-clockwise triangles over pts into a fragment
// holding only the vertices the triangles use.
func fragment(pts []geom.Point, tris [][3]int) mesh.Fragment {
	var f mesh.Fragment
	remap := make([]int, len(pts))
	for i := range remap {
		remap[i] = -1
	}
	for _, t := range tris {
		if cross(sub(pts[t[1]], pts[t[0]]), sub(pts[t[2]], pts[t[0]])) < 0 {
			t[1], t[2] = t[2], t[1]
		}
		for _, i := range t {
			if remap[i] < 0 {
				remap[i] = len(f.Vertices)
				f.Vertices = append(f.Vertices, [2]float32{float32(pts[i][0]), float32(pts[i][1])})
			}
			f.Indices = append(f.Indices, uint32(remap[i]))
		}
	}
	return f
}

func sub(a, b geom.Point) geom.Point { return geom.Point{a[0] - b[0], a[1] - b[1]} }
func dot(a, b geom.Point) float64    { return a[0]*b[0] + a[1]*b[1] }
func cross(a, b geom.Point) float64  { return a[0]*b[1] - a[1]*b[0] }
