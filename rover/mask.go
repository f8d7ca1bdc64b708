package rover

// Mask is a binary image, 1 where a pixel fell inside the color band.
type Mask struct {
	W, H int
	Pix  []uint8
}

func newMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, p := range m.Pix {
		n += int(p)
	}
	return n
}

// erode applies one 3x3 erosion. Pixels outside the mask never erode.
func (m *Mask) erode() *Mask {
	out := newMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.Pix[y*m.W+x] == 0 {
				continue
			}
			keep := uint8(1)
			for dy := -1; dy <= 1 && keep == 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
						continue
					}
					if m.Pix[ny*m.W+nx] == 0 {
						keep = 0
						break
					}
				}
			}
			out.Pix[y*m.W+x] = keep
		}
	}
	return out
}

// dilate applies one 3x3 dilation. Pixels outside the mask never dilate.
func (m *Mask) dilate() *Mask {
	out := newMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.Pix[y*m.W+x] == 0 {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
						continue
					}
					out.Pix[ny*m.W+nx] = 1
				}
			}
		}
	}
	return out
}

var (
	neighbors4 = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [8][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// externalBoundaries returns the boundary pixels of each 8-connected region
// that is not nested inside a hole of another region. Regions are ordered by
// their first pixel in raster order.
func (m *Mask) externalBoundaries() [][]point {
	if len(m.Pix) == 0 {
		return nil
	}
	outside := m.outerBackground()
	labels := make([]int32, len(m.Pix))
	var regions [][]point
	var stack []int

	for start, v := range m.Pix {
		if v == 0 || labels[start] != 0 {
			continue
		}
		label := int32(len(regions) + 1)
		labels[start] = label
		stack = append(stack[:0], start)

		var boundary []point
		external := false
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%m.W, idx/m.W

			edge := false
			for _, d := range neighbors4 {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
					edge = true
					external = true
					continue
				}
				n := ny*m.W + nx
				if m.Pix[n] == 0 {
					edge = true
					if outside[n] {
						external = true
					}
				}
			}
			if edge {
				boundary = append(boundary, point{X: x, Y: y})
			}

			for _, d := range neighbors8 {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
					continue
				}
				n := ny*m.W + nx
				if m.Pix[n] == 1 && labels[n] == 0 {
					labels[n] = label
					stack = append(stack, n)
				}
			}
		}
		if !external {
			boundary = nil
		}
		regions = append(regions, boundary)
	}

	out := regions[:0]
	for _, b := range regions {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// outerBackground marks background pixels 4-connected to the frame border.
func (m *Mask) outerBackground() []bool {
	outside := make([]bool, len(m.Pix))
	var stack []int
	seed := func(x, y int) {
		idx := y*m.W + x
		if m.Pix[idx] == 0 && !outside[idx] {
			outside[idx] = true
			stack = append(stack, idx)
		}
	}
	for x := 0; x < m.W; x++ {
		seed(x, 0)
		seed(x, m.H-1)
	}
	for y := 0; y < m.H; y++ {
		seed(0, y)
		seed(m.W-1, y)
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := idx%m.W, idx/m.W
		for _, d := range neighbors4 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
				continue
			}
			seed(nx, ny)
		}
	}
	return outside
}
