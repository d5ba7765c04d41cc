package fgb

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"fgbmap/internal/geom"
	"fgbmap/internal/source"
)

const nodeItemSize = 40

// NodeItem is one node of the packed R-tree. For leaves Offset is the byte
// offset of the feature within the feature section; for internal nodes it
// is the index of the first child node.
type NodeItem struct {
	MinX, MinY, MaxX, MaxY float64
	Offset                 uint64
}

func emptyNode() NodeItem {
	return NodeItem{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func (n *NodeItem) expand(o NodeItem) {
	n.MinX = math.Min(n.MinX, o.MinX)
	n.MinY = math.Min(n.MinY, o.MinY)
	n.MaxX = math.Max(n.MaxX, o.MaxX)
	n.MaxY = math.Max(n.MaxY, o.MaxY)
}

func (n NodeItem) intersects(b geom.BBox) bool {
	return n.MinX <= b.MaxX && n.MaxX >= b.MinX && n.MinY <= b.MaxY && n.MaxY >= b.MinY
}

func (n NodeItem) bbox() geom.BBox {
	return geom.BBox{MinX: n.MinX, MinY: n.MinY, MaxX: n.MaxX, MaxY: n.MaxY}
}

func putNode(b []byte, n NodeItem) {
	binary.LittleEndian.PutUint64(b[0:], math.Float64bits(n.MinX))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(n.MinY))
	binary.LittleEndian.PutUint64(b[16:], math.Float64bits(n.MaxX))
	binary.LittleEndian.PutUint64(b[24:], math.Float64bits(n.MaxY))
	binary.LittleEndian.PutUint64(b[32:], n.Offset)
}

func readNode(b []byte) NodeItem {
	return NodeItem{
		MinX:   math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		MinY:   math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		MaxX:   math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
		MaxY:   math.Float64frombits(binary.LittleEndian.Uint64(b[24:])),
		Offset: binary.LittleEndian.Uint64(b[32:]),
	}
}

// levelRange is a half-open range of node indices.
type levelRange struct {
	start, end uint64
}

// levelBounds returns the node range of every tree level, leaves first and
// the root last. Leaves are stored at the end of the node array and the
// root at index 0.
func levelBounds(numItems uint64, nodeSize uint16) ([]levelRange, error) {
	if nodeSize < 2 {
		return nil, errors.Newf("node size %d must be at least 2", nodeSize)
	}
	if numItems == 0 {
		return nil, errors.New("number of items must be greater than 0")
	}
	ns := uint64(nodeSize)
	n := numItems
	numNodes := n
	levelNumNodes := []uint64{n}
	for {
		n = (n + ns - 1) / ns
		numNodes += n
		levelNumNodes = append(levelNumNodes, n)
		if n == 1 {
			break
		}
	}
	bounds := make([]levelRange, len(levelNumNodes))
	n = numNodes
	for i, size := range levelNumNodes {
		bounds[i] = levelRange{start: n - size, end: n}
		n -= size
	}
	return bounds, nil
}

// indexSize returns the byte size of the packed R-tree for numItems
// features.
func indexSize(numItems uint64, nodeSize uint16) (uint64, error) {
	bounds, err := levelBounds(numItems, nodeSize)
	if err != nil {
		return 0, err
	}
	return bounds[0].end * nodeItemSize, nil
}

// buildTree packs leaves, already in their final (Hilbert) order, into a
// complete node array ready to be written.
func buildTree(leaves []NodeItem, nodeSize uint16) ([]NodeItem, error) {
	bounds, err := levelBounds(uint64(len(leaves)), nodeSize)
	if err != nil {
		return nil, err
	}
	nodes := make([]NodeItem, bounds[0].end)
	copy(nodes[bounds[0].start:], leaves)
	for i := 0; i < len(bounds)-1; i++ {
		pos := bounds[i].start
		end := bounds[i].end
		newpos := bounds[i+1].start
		for pos < end {
			node := emptyNode()
			node.Offset = pos
			for j := 0; j < int(nodeSize) && pos < end; j++ {
				node.expand(nodes[pos])
				pos++
			}
			nodes[newpos] = node
			newpos++
		}
	}
	return nodes, nil
}

// searchHit is one matching leaf.
type searchHit struct {
	offset uint64 // byte offset in the feature section
	index  uint64 // feature number in file order
}

// searchTree walks the tree level by level, reading one block of sibling
// nodes per visited parent through readNodes.
func searchTree(numItems uint64, nodeSize uint16, b geom.BBox, readNodes func(first, count uint64) ([]NodeItem, error)) ([]searchHit, error) {
	bounds, err := levelBounds(numItems, nodeSize)
	if err != nil {
		return nil, err
	}
	leafStart := bounds[0].start
	type pending struct {
		index uint64
		level int
	}
	queue := []pending{{index: 0, level: len(bounds) - 1}}
	var hits []searchHit
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		lvl := bounds[p.level]
		if p.index < lvl.start || p.index >= lvl.end {
			return nil, errors.Mark(errors.Newf("node %d outside level %d", p.index, p.level), source.ErrHeaderCorrupt)
		}
		end := min(p.index+uint64(nodeSize), lvl.end)
		nodes, err := readNodes(p.index, end-p.index)
		if err != nil {
			return nil, err
		}
		isLeaf := p.level == 0
		for i, n := range nodes {
			if !n.intersects(b) {
				continue
			}
			if isLeaf {
				hits = append(hits, searchHit{offset: n.Offset, index: p.index + uint64(i) - leafStart})
				continue
			}
			queue = append(queue, pending{index: n.Offset, level: p.level - 1})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })
	return hits, nil
}

// hilbert maps a position on a 2^16 x 2^16 grid to its distance along the
// Hilbert curve.
func hilbert(x, y uint32) uint32 {
	a := x ^ y
	b := 0xFFFF ^ a
	c := 0xFFFF ^ (x | y)
	d := x & (y ^ 0xFFFF)

	A := a | (b >> 1)
	B := (a >> 1) ^ a
	C := ((c >> 1) ^ (b & (d >> 1))) ^ c
	D := ((a & (c >> 1)) ^ (d >> 1)) ^ d

	a, b, c, d = A, B, C, D
	A = (a & (a >> 2)) ^ (b & (b >> 2))
	B = (a & (b >> 2)) ^ (b & ((a ^ b) >> 2))
	C ^= (a & (c >> 2)) ^ (b & (d >> 2))
	D ^= (b & (c >> 2)) ^ ((a ^ b) & (d >> 2))

	a, b, c, d = A, B, C, D
	A = (a & (a >> 4)) ^ (b & (b >> 4))
	B = (a & (b >> 4)) ^ (b & ((a ^ b) >> 4))
	C ^= (a & (c >> 4)) ^ (b & (d >> 4))
	D ^= (b & (c >> 4)) ^ ((a ^ b) & (d >> 4))

	a, b, c, d = A, B, C, D
	C ^= (a & (c >> 8)) ^ (b & (d >> 8))
	D ^= (b & (c >> 8)) ^ ((a ^ b) & (d >> 8))

	a = C ^ (C >> 1)
	b = D ^ (D >> 1)

	i0 := x ^ y
	i1 := b | (0xFFFF ^ (i0 | a))

	i0 = (i0 | (i0 << 8)) & 0x00FF00FF
	i0 = (i0 | (i0 << 4)) & 0x0F0F0F0F
	i0 = (i0 | (i0 << 2)) & 0x33333333
	i0 = (i0 | (i0 << 1)) & 0x55555555

	i1 = (i1 | (i1 << 8)) & 0x00FF00FF
	i1 = (i1 | (i1 << 4)) & 0x0F0F0F0F
	i1 = (i1 | (i1 << 2)) & 0x33333333
	i1 = (i1 | (i1 << 1)) & 0x55555555

	return (i1 << 1) | i0
}

// hilbertSort orders items by the Hilbert value of their box centers within
// extent. The sort is stable so equal keys keep input order.
func hilbertSort[T any](items []T, box func(T) geom.BBox, extent geom.BBox) {
	const hilbertMax = (1 << 16) - 1
	w, h := extent.Width(), extent.Height()
	key := func(b geom.BBox) uint32 {
		var x, y uint32
		if w > 0 {
			x = uint32(math.Floor(hilbertMax * ((b.MinX+b.MaxX)/2 - extent.MinX) / w))
		}
		if h > 0 {
			y = uint32(math.Floor(hilbertMax * ((b.MinY+b.MaxY)/2 - extent.MinY) / h))
		}
		return hilbert(x, y)
	}
	keys := make([]uint32, len(items))
	for i, it := range items {
		keys[i] = key(box(it))
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
	sorted := make([]T, len(items))
	for i, k := range idx {
		sorted[i] = items[k]
	}
	copy(items, sorted)
}
