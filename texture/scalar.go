package texture

import "fmt"

// Scalar is a single-channel 32-bit float texture with an optional mip chain.
//
// Loads clamp coordinates to the level bounds, so kernels never read outside
// 0..(size-1) even when a ray or filter footprint leaves the image.
//
// Scalar is not safe for concurrent writes to the same texel; passes write
// disjoint tiles.
type Scalar struct {
	desc   Desc
	levels [][]float32
	widths []int
	hgts   []int
}

// NewScalar allocates a zero-filled scalar texture.
func NewScalar(desc Desc) (*Scalar, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Format != FormatR32Float {
		return nil, fmt.Errorf("%w: scalar texture needs R32Float, got %s", ErrFormatMismatch, desc.Format)
	}

	n := desc.Levels()
	s := &Scalar{
		desc:   desc,
		levels: make([][]float32, n),
		widths: make([]int, n),
		hgts:   make([]int, n),
	}
	for l := range n {
		w, h := desc.MipSize(l)
		s.levels[l] = make([]float32, w*h)
		s.widths[l] = w
		s.hgts[l] = h
	}
	return s, nil
}

// NewScalarFrom wraps existing level 0 data (row-major, width*height values).
// The data is used directly, not copied.
func NewScalarFrom(label string, width, height int, data []float32) (*Scalar, error) {
	desc := Desc2D(label, width, height, FormatR32Float)
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrInvalidDimensions, len(data), width, height)
	}
	return &Scalar{
		desc:   desc,
		levels: [][]float32{data},
		widths: []int{width},
		hgts:   []int{height},
	}, nil
}

// Desc returns the texture descriptor.
func (s *Scalar) Desc() Desc { return s.desc }

// Width returns the level 0 width.
func (s *Scalar) Width() int { return s.widths[0] }

// Height returns the level 0 height.
func (s *Scalar) Height() int { return s.hgts[0] }

// Levels returns the number of mip levels.
func (s *Scalar) Levels() int { return len(s.levels) }

// LevelSize returns the size of the given level.
func (s *Scalar) LevelSize(level int) (int, int) {
	return s.widths[level], s.hgts[level]
}

// Level returns the raw row-major data of a level.
func (s *Scalar) Level(level int) []float32 { return s.levels[level] }

// Load returns the texel at (x, y) of level, clamping the coordinates.
func (s *Scalar) Load(level, x, y int) float32 {
	w, h := s.widths[level], s.hgts[level]
	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	return s.levels[level][y*w+x]
}

// Store writes the texel at (x, y) of level. Out-of-bounds writes are dropped.
func (s *Scalar) Store(level, x, y int, v float32) {
	w, h := s.widths[level], s.hgts[level]
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	s.levels[level][y*w+x] = v
}

// Fill sets every texel of every level to v.
func (s *Scalar) Fill(v float32) {
	for _, lvl := range s.levels {
		for i := range lvl {
			lvl[i] = v
		}
	}
}

// clear zeroes all levels before reuse from a pool.
func (s *Scalar) clear() { s.Fill(0) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
