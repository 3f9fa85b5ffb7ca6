package trace

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DitherPeriod is the number of distinct per-frame noise patterns.
// The frame index wraps at this value.
const DitherPeriod = 1024

// DitherIndex returns the noise seed of a frame.
func DitherIndex(frameNumber uint64) uint32 {
	return uint32(frameNumber % DitherPeriod)
}

// ign is interleaved gradient noise in [0, 1), shifted per frame.
func ign(x, y float32, frame uint32) float32 {
	f := float32(frame % 64)
	x += 5.588238 * f
	y += 5.588238 * f
	return fract(52.9829189 * fract(0.06711056*x+0.00583715*y))
}

func fract(v float32) float32 {
	return v - float32(math.Floor(float64(v)))
}

// samplePair returns two decorrelated jitter values for a pixel.
func samplePair(x, y int, frame uint32) (float32, float32) {
	u1 := ign(float32(x), float32(y), frame)
	// Golden-ratio rotation of the frame index keeps the second value
	// independent of the first.
	u2 := fract(ign(float32(y)+17, float32(x)+31, frame) + 0.618034*float32(frame/64))
	return u1, u2
}

// cosineHemisphere maps two uniform values to a cosine-weighted direction
// around n.
func cosineHemisphere(n mgl32.Vec3, u1, u2 float32) mgl32.Vec3 {
	t, b := basis(n)
	r := float32(math.Sqrt(float64(u1)))
	phi := 2 * math.Pi * float64(u2)
	x := r * float32(math.Cos(phi))
	y := r * float32(math.Sin(phi))
	z := float32(math.Sqrt(float64(max(0, 1-u1))))
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()
}

// basis builds an orthonormal tangent frame around unit vector n.
func basis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	sign := float32(1)
	if n[2] < 0 {
		sign = -1
	}
	a := -1 / (sign + n[2])
	b := n[0] * n[1] * a
	t := mgl32.Vec3{1 + sign*n[0]*n[0]*a, sign * b, -sign * n[0]}
	bt := mgl32.Vec3{b, sign + n[1]*n[1]*a, -n[1]}
	return t, bt
}
