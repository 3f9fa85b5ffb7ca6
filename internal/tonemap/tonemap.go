// Package tonemap converts HDR linear colour to 8-bit sRGB for previews.
//
// The sRGB transfer curve is tabulated once: 4096 entries give 12 bits of
// linear precision, more than enough for an 8-bit result.
package tonemap

import (
	"image"
	"math"

	"github.com/gogpu/ssgi/texture"
)

const lutSize = 4096

var encodeLUT [lutSize]uint8

func init() {
	for i := range lutSize {
		encodeLUT[i] = encodeExact(float64(i) / (lutSize - 1))
	}
}

// encodeExact applies the sRGB transfer curve to a linear value in [0, 1].
func encodeExact(l float64) uint8 {
	var s float64
	if l <= 0.0031308 {
		s = l * 12.92
	} else {
		s = 1.055*math.Pow(l, 1.0/2.4) - 0.055
	}
	v := int(s*255 + 0.5)
	//nolint:gosec // G115: clamped to [0,255]
	return uint8(min(max(v, 0), 255))
}

// Encode converts a linear value to an sRGB byte. Values outside [0, 1]
// clamp; NaN encodes as 0.
func Encode(l float32) uint8 {
	if !(l > 0) {
		return 0
	}
	if l >= 1 {
		return 255
	}
	return encodeLUT[int(l*(lutSize-1)+0.5)]
}

// Reinhard compresses an HDR value into [0, 1).
func Reinhard(v float32) float32 {
	v = max(v, 0)
	return v / (1 + v)
}

// Image tone maps t with the Reinhard curve and encodes it as opaque sRGB.
func Image(t *texture.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.Width(), t.Height()))
	for y := range t.Height() {
		for x := range t.Width() {
			c := t.Load(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = Encode(Reinhard(c[0]))
			img.Pix[i+1] = Encode(Reinhard(c[1]))
			img.Pix[i+2] = Encode(Reinhard(c[2]))
			img.Pix[i+3] = 255
		}
	}
	return img
}
