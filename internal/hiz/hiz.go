// Package hiz builds the hierarchical depth (Hi-Z) pyramid.
//
// Level 0 is a copy of the scene depth at buffer resolution. Every further
// level halves the previous one (never below one texel) and keeps the
// nearest depth of its footprint, so a coarse texel bounds every surface
// it covers: a ray in front of that depth cannot hit anything below it.
package hiz

import (
	"fmt"

	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
)

// Convention is the device depth convention of the host renderer.
type Convention uint8

const (
	// Reversed depth: near plane at 1, far plane at 0. Nearer is larger.
	Reversed Convention = iota

	// Standard depth: near plane at 0, far plane at 1. Nearer is smaller.
	Standard
)

// String returns the convention name.
func (c Convention) String() string {
	switch c {
	case Reversed:
		return "Reversed"
	case Standard:
		return "Standard"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Nearer returns the depth closer to the camera.
func (c Convention) Nearer(a, b float32) float32 {
	if c == Standard {
		return min(a, b)
	}
	return max(a, b)
}

// IsNearer reports whether a is strictly closer to the camera than b.
func (c Convention) IsNearer(a, b float32) bool {
	if c == Standard {
		return a < b
	}
	return a > b
}

// Far returns the far-plane depth value.
func (c Convention) Far() float32 {
	if c == Standard {
		return 1
	}
	return 0
}

// IsFar reports whether d is at (or past) the far plane, i.e. background.
func (c Convention) IsFar(d float32) bool {
	if c == Standard {
		return d >= 1
	}
	return d <= 0
}

// Pyramid is the per-frame Hi-Z mip chain. It is read-only once built.
type Pyramid struct {
	tex  *texture.Scalar
	conv Convention
}

// Build allocates the pyramid from the frame scope and fills every level.
// depth is the buffer-sized scene depth; only its level 0 is read.
func Build(d *parallel.Dispatcher, s *texture.Scope, depth *texture.Scalar, conv Convention) (*Pyramid, error) {
	tex, err := Alloc(s, depth.Width(), depth.Height())
	if err != nil {
		return nil, err
	}
	Fill(d, depth, tex, conv)
	return Wrap(tex, conv), nil
}

// Alloc allocates an empty pyramid texture with the full mip chain of a
// width x height buffer.
func Alloc(s *texture.Scope, width, height int) (*texture.Scalar, error) {
	tex, err := s.Scalar(texture.Desc{
		Label:     "HZB",
		Width:     width,
		Height:    height,
		Format:    texture.FormatR32Float,
		MipLevels: texture.FullMipCount(width, height),
		Usage:     texture.UsageStorage | texture.UsageCopy,
	})
	if err != nil {
		return nil, fmt.Errorf("hiz: allocate pyramid: %w", err)
	}
	return tex, nil
}

// Fill writes every level of tex from the scene depth.
func Fill(d *parallel.Dispatcher, depth, tex *texture.Scalar, conv Convention) {
	copyLevel0(d, depth, tex)
	for level := 1; level < tex.Levels(); level++ {
		reduce(d, tex, level, conv)
	}
}

// Wrap returns the pyramid view of a filled texture.
func Wrap(tex *texture.Scalar, conv Convention) *Pyramid {
	return &Pyramid{tex: tex, conv: conv}
}

// copyLevel0 copies the scene depth into level 0 at full resolution.
func copyLevel0(d *parallel.Dispatcher, depth, dst *texture.Scalar) {
	w, h := dst.LevelSize(0)
	src := depth.Level(0)
	out := dst.Level(0)
	d.Dispatch(w, h, shader.HZBCopy.GroupSize(), func(x, y int) {
		out[y*w+x] = src[y*w+x]
	})
}

// reduce writes level from level-1 with the nearer-depth extremum.
// Odd input sizes widen the footprint of the last column/row to 3 texels so
// the trailing texels are not dropped.
func reduce(d *parallel.Dispatcher, tex *texture.Scalar, level int, conv Convention) {
	iw, ih := tex.LevelSize(level - 1)
	ow, oh := tex.LevelSize(level)
	maxX, maxY := iw-1, ih-1
	extraX := iw%2 == 1
	extraY := ih%2 == 1

	d.Dispatch(ow, oh, shader.HZBBuild.GroupSize(), func(x, y int) {
		x0, y0 := 2*x, 2*y
		x1 := min(x0+1, maxX)
		y1 := min(y0+1, maxY)

		v := conv.Nearer(
			conv.Nearer(tex.Load(level-1, x0, y0), tex.Load(level-1, x1, y0)),
			conv.Nearer(tex.Load(level-1, x0, y1), tex.Load(level-1, x1, y1)),
		)

		lastX := extraX && x == ow-1
		lastY := extraY && y == oh-1
		if lastX {
			x2 := min(x0+2, maxX)
			v = conv.Nearer(v, conv.Nearer(tex.Load(level-1, x2, y0), tex.Load(level-1, x2, y1)))
		}
		if lastY {
			y2 := min(y0+2, maxY)
			v = conv.Nearer(v, conv.Nearer(tex.Load(level-1, x0, y2), tex.Load(level-1, x1, y2)))
		}
		if lastX && lastY {
			v = conv.Nearer(v, tex.Load(level-1, min(x0+2, maxX), min(y0+2, maxY)))
		}

		tex.Store(level, x, y, v)
	})
}

// Levels returns the number of mip levels.
func (p *Pyramid) Levels() int { return p.tex.Levels() }

// MaxLevel returns the coarsest level index.
func (p *Pyramid) MaxLevel() int { return p.tex.Levels() - 1 }

// Size returns the size of a level.
func (p *Pyramid) Size(level int) (int, int) { return p.tex.LevelSize(level) }

// Load returns the nearest depth of texel (x, y) at level, clamped to the
// level bounds.
func (p *Pyramid) Load(level, x, y int) float32 { return p.tex.Load(level, x, y) }

// Convention returns the depth convention the pyramid was reduced with.
func (p *Pyramid) Convention() Convention { return p.conv }

// Texture returns the underlying mip texture.
func (p *Pyramid) Texture() *texture.Scalar { return p.tex }

// LevelCount returns the number of pyramid levels for a w x h depth buffer:
// floor(log2(max(w, h))) + 1.
func LevelCount(w, h int) int { return texture.FullMipCount(w, h) }

// LevelSize returns the size of level k of a w x h pyramid.
func LevelSize(w, h, k int) (int, int) { return texture.MipSize(w, h, k) }
