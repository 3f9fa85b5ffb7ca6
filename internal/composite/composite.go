// Package composite writes the SSGI result back into the scene colour.
//
// One selector picks the buffer to show for the active mode, one blend pass
// combines it with the scene colour into a frame-scoped target, and a copy
// writes that target over the scene colour's view rectangle.
package composite

import (
	"errors"
	"image"
	"math"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
)

// ErrMissingInput is returned when a required input is nil.
var ErrMissingInput = errors.New("composite: missing input")

// Sources are the buffers a mode can select. Unused ones may be nil.
type Sources struct {
	// Final is the lighting that is blended into the scene.
	Final *texture.RGBA

	RawTrace *texture.RGBA
	Denoised *texture.RGBA

	// History is the temporal result, which becomes next frame's history.
	History *texture.RGBA

	// Diagnostic is the trace's auxiliary output.
	Diagnostic *texture.RGBA

	// Visualization is the output of a visualize pass.
	Visualization *texture.RGBA
}

// Select returns the buffer shown by mode m. Unknown modes show Final.
func Select(m Mode, s Sources) *texture.RGBA {
	switch m {
	case ModeRawTrace:
		return s.RawTrace
	case ModeDenoised:
		return s.Denoised
	case ModeHistory:
		return s.History
	case ModeIterations, ModeHitUV, ModeRayDirection:
		return s.Diagnostic
	case ModeDepthPyramid, ModeWorldPosition, ModeRayStart, ModeDepthCheck:
		return s.Visualization
	default:
		return s.Final
	}
}

// Composite blends the viewport-sized src with the scene colour inside the
// frame's view rectangle into the viewport-sized dst. Scene alpha is
// preserved.
func Composite(d *parallel.Dispatcher, scene *texture.RGBA, f viewframe.Frame, src *texture.RGBA, b Blend, dst *texture.RGBA) ([2]int, error) {
	if scene == nil || src == nil || dst == nil {
		return [2]int{}, ErrMissingInput
	}
	gx, gy := d.Dispatch(f.Width(), f.Height(), shader.Composite.GroupSize(), func(x, y int) {
		c := scene.Load(f.ToBuffer(x, y))
		g := src.Load(x, y)
		var out [4]float32
		switch b {
		case BlendModulate:
			out = [4]float32{c[0] * (1 + g[0]), c[1] * (1 + g[1]), c[2] * (1 + g[2]), c[3]}
		case BlendReplace:
			out = [4]float32{g[0], g[1], g[2], c[3]}
		default:
			out = [4]float32{c[0] + g[0], c[1] + g[1], c[2] + g[2], c[3]}
		}
		dst.Store(x, y, out)
	})
	return [2]int{gx, gy}, nil
}

// CopyBack writes the viewport-sized src over the frame's view rectangle of
// the scene colour.
func CopyBack(src, scene *texture.RGBA, f viewframe.Frame) {
	texture.CopyRect(scene, f.ViewRect.Min, src, image.Rect(0, 0, f.Width(), f.Height()))
}

// VisualizePyramid writes level 0 of the pyramid as grey levels, bright
// near the camera and fading with view distance. Background is black.
func VisualizePyramid(d *parallel.Dispatcher, pyr *hiz.Pyramid, f viewframe.Frame, dst *texture.RGBA) {
	conv := pyr.Convention()
	d.Dispatch(f.Width(), f.Height(), shader.Composite.GroupSize(), func(x, y int) {
		bx, by := f.ToBuffer(x, y)
		z := pyr.Load(0, bx, by)
		if conv.IsFar(z) {
			dst.Store(x, y, [4]float32{0, 0, 0, 1})
			return
		}
		v := 1 / (1 + 0.1*f.LinearDepth(float32(bx)+0.5, float32(by)+0.5, z))
		dst.Store(x, y, [4]float32{v, v, v, 1})
	})
}

// VisualizeWorld writes the fractional part of every reconstructed world
// position, which shows one-unit bands that must stay fixed in the world as
// the camera moves. Background is black.
func VisualizeWorld(d *parallel.Dispatcher, depth *texture.Scalar, conv hiz.Convention, f viewframe.Frame, dst *texture.RGBA) {
	d.Dispatch(f.Width(), f.Height(), shader.Composite.GroupSize(), func(x, y int) {
		bx, by := f.ToBuffer(x, y)
		z := depth.Load(0, bx, by)
		if conv.IsFar(z) {
			dst.Store(x, y, [4]float32{0, 0, 0, 1})
			return
		}
		p := f.ScreenToWorld(float32(bx)+0.5, float32(by)+0.5, z)
		dst.Store(x, y, [4]float32{fract(p[0]), fract(p[1]), fract(p[2]), 1})
	})
}

// VisualizeRayStart writes the viewport UV every ray starts from: the
// reconstructed world position of the pixel projected back to the screen.
// A consistent frame shows a smooth red-green ramp equal to the pixel UV.
// Points that project behind the camera are magenta. Background is black.
func VisualizeRayStart(d *parallel.Dispatcher, depth *texture.Scalar, conv hiz.Convention, f viewframe.Frame, dst *texture.RGBA) {
	d.Dispatch(f.Width(), f.Height(), shader.Composite.GroupSize(), func(x, y int) {
		bx, by := f.ToBuffer(x, y)
		z := depth.Load(0, bx, by)
		if conv.IsFar(z) {
			dst.Store(x, y, [4]float32{0, 0, 0, 1})
			return
		}
		sx, sy, _, ok := f.WorldToScreen(f.ScreenToWorld(float32(bx)+0.5, float32(by)+0.5, z))
		if !ok {
			dst.Store(x, y, [4]float32{1, 0, 1, 1})
			return
		}
		u := (sx - f.ViewMin[0]) * f.InvViewSize[0]
		v := (sy - f.ViewMin[1]) * f.InvViewSize[1]
		dst.Store(x, y, [4]float32{u, v, 0, 1})
	})
}

// depthCheckTolerance is the device depth error the depth check accepts.
const depthCheckTolerance = 1e-3

// VisualizeDepthCheck writes device depth as grey, bright near the camera
// in both conventions. A pixel is red when pyramid level 0 disagrees with
// the scene depth or when its depth does not survive a world round trip.
// Background is black.
func VisualizeDepthCheck(d *parallel.Dispatcher, pyr *hiz.Pyramid, depth *texture.Scalar, f viewframe.Frame, dst *texture.RGBA) {
	conv := pyr.Convention()
	d.Dispatch(f.Width(), f.Height(), shader.Composite.GroupSize(), func(x, y int) {
		bx, by := f.ToBuffer(x, y)
		z := depth.Load(0, bx, by)
		if conv.IsFar(z) {
			dst.Store(x, y, [4]float32{0, 0, 0, 1})
			return
		}
		px, py := float32(bx)+0.5, float32(by)+0.5
		_, _, rz, ok := f.WorldToScreen(f.ScreenToWorld(px, py, z))
		if !ok || pyr.Load(0, bx, by) != z || abs32(rz-z) > depthCheckTolerance {
			dst.Store(x, y, [4]float32{1, 0, 0, 1})
			return
		}
		g := z
		if conv == hiz.Standard {
			g = 1 - z
		}
		dst.Store(x, y, [4]float32{g, g, g, 1})
	})
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func fract(v float32) float32 {
	return v - float32(math.Floor(float64(v)))
}
