package tui

// brailleBuf is a canvas of w x h terminal cells, each holding a 2x4 block
// of micro-pixels rendered as one braille glyph.
type brailleBuf struct {
	w, h int
	m    []uint8 // row-major cell masks
}

// dotBits maps a micro-pixel position inside a cell, [column][row], to its
// braille dot.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func newBrailleBuf(w, h int) *brailleBuf {
	return &brailleBuf{w: w, h: h, m: make([]uint8, w*h)}
}

// setPixel sets a micro-pixel. Coordinates outside the canvas are ignored.
func (b *brailleBuf) setPixel(mx, my int) {
	if mx < 0 || my < 0 || mx >= b.w*2 || my >= b.h*4 {
		return
	}
	b.m[(my/4)*b.w+mx/2] |= dotBits[mx%2][my%4]
}

// drawLineMicro draws a line on the microgrid using Bresenham
func (b *brailleBuf) drawLineMicro(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		b.setPixel(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// count returns the number of cells with at least one dot set.
func (b *brailleBuf) count() int {
	n := 0
	for _, c := range b.m {
		if c != 0 {
			n++
		}
	}
	return n
}

func (b *brailleBuf) toLines() []string {
	out := make([]string, b.h)
	row := make([]rune, b.w)
	for y := range out {
		for x := range row {
			if mask := b.m[y*b.w+x]; mask != 0 {
				row[x] = rune(0x2800 + int(mask))
			} else {
				row[x] = ' '
			}
		}
		out[y] = string(row)
	}
	return out
}
