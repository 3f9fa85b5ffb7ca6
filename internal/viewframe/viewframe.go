// Package viewframe resolves the coordinate frame shared by every SSGI pass.
//
// The logical viewport can be a sub-rectangle of the physical buffer
// (dynamic resolution, editor viewports). Every pass converts between
// viewport pixels, buffer pixels, UVs and world space through one Frame
// value computed once per frame, so no two passes disagree on where a
// pixel is.
package viewframe

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// minClipW rejects points at or behind the camera plane when projecting.
const minClipW = 1e-6

// Frame is the per-frame coordinate bundle.
type Frame struct {
	// ViewRect is the viewport inside the buffer, in buffer pixels.
	ViewRect image.Rectangle

	// ViewMin is the viewport origin in buffer pixels.
	ViewMin mgl32.Vec2

	// ViewSize and InvViewSize are the viewport size and its reciprocal.
	ViewSize    mgl32.Vec2
	InvViewSize mgl32.Vec2

	// BufferSize and InvBufferSize are the physical buffer size and its reciprocal.
	BufferSize    mgl32.Vec2
	InvBufferSize mgl32.Vec2

	// InvViewProj maps clip space (NDC x, y, device depth, 1) to world space.
	InvViewProj mgl32.Mat4

	// ViewProj maps world space to clip space.
	ViewProj mgl32.Mat4
}

// Resolve computes the frame for a view rectangle inside a buffer.
//
// The rectangle is clipped to the buffer and every size is clamped to at
// least one pixel. A zero invViewProj is derived from viewProj. Resolve is a
// pure function of its arguments.
func Resolve(viewRect image.Rectangle, bufferSize image.Point, invViewProj, viewProj mgl32.Mat4) Frame {
	bw, bh := max(bufferSize.X, 1), max(bufferSize.Y, 1)

	vr := viewRect.Canon()
	minX := min(max(vr.Min.X, 0), bw-1)
	minY := min(max(vr.Min.Y, 0), bh-1)
	maxX := min(max(vr.Max.X, minX+1), bw)
	maxY := min(max(vr.Max.Y, minY+1), bh)
	r := image.Rect(minX, minY, maxX, maxY)

	if invViewProj == (mgl32.Mat4{}) {
		invViewProj = viewProj.Inv()
	}

	vw, vh := float32(r.Dx()), float32(r.Dy())
	return Frame{
		ViewRect:      r,
		ViewMin:       mgl32.Vec2{float32(r.Min.X), float32(r.Min.Y)},
		ViewSize:      mgl32.Vec2{vw, vh},
		InvViewSize:   mgl32.Vec2{1 / vw, 1 / vh},
		BufferSize:    mgl32.Vec2{float32(bw), float32(bh)},
		InvBufferSize: mgl32.Vec2{1 / float32(bw), 1 / float32(bh)},
		InvViewProj:   invViewProj,
		ViewProj:      viewProj,
	}
}

// Width returns the viewport width in pixels.
func (f Frame) Width() int { return f.ViewRect.Dx() }

// Height returns the viewport height in pixels.
func (f Frame) Height() int { return f.ViewRect.Dy() }

// ToBuffer maps a viewport pixel to its buffer pixel.
func (f Frame) ToBuffer(x, y int) (int, int) {
	return f.ViewRect.Min.X + x, f.ViewRect.Min.Y + y
}

// ViewportUV returns the UV of a viewport pixel center.
func (f Frame) ViewportUV(x, y int) mgl32.Vec2 {
	return mgl32.Vec2{(float32(x) + 0.5) * f.InvViewSize[0], (float32(y) + 0.5) * f.InvViewSize[1]}
}

// BufferUV returns the buffer UV of a buffer-space position.
func (f Frame) BufferUV(bx, by float32) mgl32.Vec2 {
	return mgl32.Vec2{bx * f.InvBufferSize[0], by * f.InvBufferSize[1]}
}

// ScreenToWorld reconstructs the world position of a buffer-space position
// (pixel centers at +0.5) with the given device depth.
func (f Frame) ScreenToWorld(bx, by, depth float32) mgl32.Vec3 {
	u := (bx - f.ViewMin[0]) * f.InvViewSize[0]
	v := (by - f.ViewMin[1]) * f.InvViewSize[1]
	clip := mgl32.Vec4{u*2 - 1, 1 - v*2, depth, 1}
	w := f.InvViewProj.Mul4x1(clip)
	if w[3] == 0 {
		return w.Vec3()
	}
	return w.Vec3().Mul(1 / w[3])
}

// LinearDepth returns the view-space distance along the camera axis of a
// buffer-space position with the given device depth. It is linear in world
// units, unlike device depth, and is what depth-similarity tests compare.
func (f Frame) LinearDepth(bx, by, depth float32) float32 {
	u := (bx - f.ViewMin[0]) * f.InvViewSize[0]
	v := (by - f.ViewMin[1]) * f.InvViewSize[1]
	m := f.InvViewProj
	// Row 3 of the inverse gives 1 / clip w.
	hw := m[3]*(u*2-1) + m[7]*(1-v*2) + m[11]*depth + m[15]
	if hw == 0 {
		return 0
	}
	return abs32(1 / hw)
}

// WorldToScreen projects a world position to buffer space.
// ok is false when the point is at or behind the camera plane.
func (f Frame) WorldToScreen(p mgl32.Vec3) (bx, by, depth float32, ok bool) {
	clip := f.ViewProj.Mul4x1(p.Vec4(1))
	if clip[3] <= minClipW {
		return 0, 0, 0, false
	}
	inv := 1 / clip[3]
	ndcX, ndcY := clip[0]*inv, clip[1]*inv
	u := ndcX*0.5 + 0.5
	v := 0.5 - ndcY*0.5
	return f.ViewMin[0] + u*f.ViewSize[0], f.ViewMin[1] + v*f.ViewSize[1], clip[2] * inv, true
}

// ContainsBuffer reports whether a buffer-space position lies in the viewport.
func (f Frame) ContainsBuffer(bx, by float32) bool {
	return bx >= float32(f.ViewRect.Min.X) && by >= float32(f.ViewRect.Min.Y) &&
		bx < float32(f.ViewRect.Max.X) && by < float32(f.ViewRect.Max.Y)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
