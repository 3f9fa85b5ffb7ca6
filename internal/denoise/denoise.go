// Package denoise implements the edge-aware spatial filter of the SSGI
// pipeline.
//
// The filter is a joint bilateral average over a square neighbourhood: each
// tap is weighted by its spatial distance, by how close its depth is to the
// center's, and by how well its normal agrees with the center's. Lighting
// is smoothed along surfaces but not across silhouettes or creases.
package denoise

import (
	"errors"
	"math"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
)

// Default filter parameters.
const (
	DefaultRadius    = 2
	DefaultSharpness = 1.0

	// MaxRadius bounds the neighbourhood to 17x17 taps.
	MaxRadius = 8
)

// depthTolerance is the relative linear-depth difference that costs a tap
// e^-1 of its weight at sharpness 1.
const depthTolerance = 0.05

// ErrMissingInput is returned when a required input is nil.
var ErrMissingInput = errors.New("denoise: missing input")

// Params configures the filter.
type Params struct {
	// Radius is the half size of the neighbourhood in pixels. Zero copies
	// the input.
	Radius int

	// Sharpness scales the depth falloff. Higher values preserve edges more.
	Sharpness float32
}

// DefaultParams returns the default filter parameters.
func DefaultParams() Params {
	return Params{Radius: DefaultRadius, Sharpness: DefaultSharpness}
}

// Inputs are the textures the filter reads.
type Inputs struct {
	// Source is the viewport-sized trace result.
	Source *texture.RGBA

	// Depth is the buffer-sized scene depth.
	Depth *texture.Scalar

	// Normal holds world normals in xyz. May be nil.
	Normal *texture.RGBA

	Frame      viewframe.Frame
	Convention hiz.Convention
}

// Filter writes the bilateral average of in.Source into dst, which must be
// viewport sized. Returns the number of groups launched along each axis.
func Filter(d *parallel.Dispatcher, in Inputs, dst *texture.RGBA, p Params) ([2]int, error) {
	if in.Source == nil || in.Depth == nil || dst == nil {
		return [2]int{}, ErrMissingInput
	}
	radius := min(max(p.Radius, 0), MaxRadius)
	f := in.Frame
	w, h := f.Width(), f.Height()

	if radius == 0 {
		gx, gy := d.Dispatch(w, h, shader.Denoise.GroupSize(), func(x, y int) {
			dst.Store(x, y, in.Source.Load(x, y))
		})
		return [2]int{gx, gy}, nil
	}

	kernel := CachedSpatialKernel(radius)
	sharp := max(p.Sharpness, 0)

	gx, gy := d.Dispatch(w, h, shader.Denoise.GroupSize(), func(x, y int) {
		bx, by := f.ToBuffer(x, y)
		dc := in.Depth.Load(0, bx, by)
		center := in.Source.Load(x, y)
		if in.Convention.IsFar(dc) {
			dst.Store(x, y, center)
			return
		}
		zc := f.LinearDepth(float32(bx)+0.5, float32(by)+0.5, dc)
		nc, hasNormal := loadNormal(in.Normal, bx, by)

		var sum [4]float32
		var wsum float32
		for oy := -radius; oy <= radius; oy++ {
			sy := min(max(y+oy, 0), h-1)
			ky := kernel[oy+radius]
			for ox := -radius; ox <= radius; ox++ {
				sx := min(max(x+ox, 0), w-1)
				tbx, tby := f.ToBuffer(sx, sy)
				dt := in.Depth.Load(0, tbx, tby)
				if in.Convention.IsFar(dt) {
					continue
				}

				wt := ky * kernel[ox+radius]

				zt := f.LinearDepth(float32(tbx)+0.5, float32(tby)+0.5, dt)
				rel := abs32(zt-zc) / max(zc, 1e-6)
				wt *= float32(math.Exp(float64(-sharp * rel / depthTolerance)))

				// Normal agreement raised to the 8th power.
				if hasNormal {
					if nt, ok := loadNormal(in.Normal, tbx, tby); ok {
						c := max(nc[0]*nt[0]+nc[1]*nt[1]+nc[2]*nt[2], 0)
						wt *= pow8(c)
					}
				}

				if wt <= 0 {
					continue
				}
				v := in.Source.Load(sx, sy)
				sum[0] += v[0] * wt
				sum[1] += v[1] * wt
				sum[2] += v[2] * wt
				sum[3] += v[3] * wt
				wsum += wt
			}
		}

		if wsum <= 0 {
			dst.Store(x, y, center)
			return
		}
		inv := 1 / wsum
		dst.Store(x, y, [4]float32{sum[0] * inv, sum[1] * inv, sum[2] * inv, sum[3] * inv})
	})
	return [2]int{gx, gy}, nil
}

// loadNormal returns the unit normal at a buffer pixel, or false when the
// proxy is absent or holds a zero vector there.
func loadNormal(n *texture.RGBA, bx, by int) ([3]float32, bool) {
	if n == nil {
		return [3]float32{}, false
	}
	v := n.Load(bx, by)
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if l < 1e-4 {
		return [3]float32{}, false
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}, true
}

func pow8(v float32) float32 {
	v2 := v * v
	v4 := v2 * v2
	return v4 * v4
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
