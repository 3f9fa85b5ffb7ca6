// Package synth renders small analytic scenes into SSGI frame inputs.
//
// Scenes are ray cast on the CPU, so the depth, colour, normal and velocity
// buffers agree exactly with the camera matrices. Tests and the command-line
// driver use them in place of a rasterizer.
package synth

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/internal/hiz"
)

// Camera is a perspective camera looking at a target.
type Camera struct {
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3

	// FovY is the vertical field of view in degrees.
	FovY float32

	Near float32
	Far  float32
}

// DefaultCamera looks at the origin from slightly above and in front.
func DefaultCamera() Camera {
	return Camera{
		Eye:    mgl32.Vec3{0, 2.5, 7},
		Target: mgl32.Vec3{0, 0.75, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   60,
		Near:   0.1,
		Far:    100,
	}
}

// Orbit returns the camera rotated around its target by angle degrees
// about the world up axis.
func (c Camera) Orbit(angle float32) Camera {
	rot := mgl32.HomogRotate3DY(mgl32.DegToRad(angle))
	off := c.Eye.Sub(c.Target)
	c.Eye = c.Target.Add(rot.Mul4x1(off.Vec4(0)).Vec3())
	return c
}

// View returns the world-to-view matrix.
func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}

// Projection returns the projection matrix for the depth convention.
func (c Camera) Projection(aspect float32, conv hiz.Convention) mgl32.Mat4 {
	if conv == hiz.Standard {
		return Perspective(c.FovY, aspect, c.Near, c.Far)
	}
	return ReversedPerspective(c.FovY, aspect, c.Near, c.Far)
}

// ViewProj returns projection * view.
func (c Camera) ViewProj(aspect float32, conv hiz.Convention) mgl32.Mat4 {
	return c.Projection(aspect, conv).Mul4(c.View())
}

// Perspective returns a right-handed projection mapping view depth
// [-near, -far] to device depth [0, 1].
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(mgl32.DegToRad(fovy))/2))
	a := far / (near - far)
	b := near * far / (near - far)
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, a, -1,
		0, 0, b, 0,
	}
}

// ReversedPerspective returns a right-handed projection mapping view depth
// [-near, -far] to device depth [1, 0].
func ReversedPerspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(mgl32.DegToRad(fovy))/2))
	a := near / (far - near)
	b := near * far / (far - near)
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, a, -1,
		0, 0, b, 0,
	}
}
