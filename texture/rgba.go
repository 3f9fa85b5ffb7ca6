package texture

import (
	"fmt"
	"image"
	"math"

	"github.com/mrjoshuak/go-openexr/half"
)

// RGBA is a four-channel float texture (single level).
//
// RGBA16Float textures keep their texels as half floats, so values written
// by one pass and read by the next are rounded the same way a GPU target of
// that format rounds them. RGBA32Float keeps full precision.
type RGBA struct {
	desc   Desc
	width  int
	height int
	f32    []float32
	f16    []half.Half
}

// NewRGBA allocates a zero-filled RGBA texture.
func NewRGBA(desc Desc) (*RGBA, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Format.Channels() != 4 {
		return nil, fmt.Errorf("%w: RGBA texture needs 4 channels, got %s", ErrFormatMismatch, desc.Format)
	}
	if desc.Levels() != 1 {
		return nil, fmt.Errorf("%w: RGBA textures have a single level", ErrInvalidMipCount)
	}

	t := &RGBA{desc: desc, width: desc.Width, height: desc.Height}
	n := desc.Width * desc.Height * 4
	if desc.Format == FormatRGBA16Float {
		t.f16 = make([]half.Half, n)
	} else {
		t.f32 = make([]float32, n)
	}
	return t, nil
}

// MustRGBA is like NewRGBA but panics on an invalid descriptor.
// Intended for tests and fixed-size placeholders.
func MustRGBA(desc Desc) *RGBA {
	t, err := NewRGBA(desc)
	if err != nil {
		panic(err)
	}
	return t
}

// Desc returns the texture descriptor.
func (t *RGBA) Desc() Desc { return t.desc }

// Width returns the width in pixels.
func (t *RGBA) Width() int { return t.width }

// Height returns the height in pixels.
func (t *RGBA) Height() int { return t.height }

// Size returns the size as an image.Point.
func (t *RGBA) Size() image.Point { return image.Pt(t.width, t.height) }

// Format returns the texel format.
func (t *RGBA) Format() Format { return t.desc.Format }

// Load returns the texel at (x, y), clamping the coordinates.
func (t *RGBA) Load(x, y int) [4]float32 {
	x = clampInt(x, 0, t.width-1)
	y = clampInt(y, 0, t.height-1)
	i := (y*t.width + x) * 4
	if t.f16 != nil {
		return [4]float32{t.f16[i].Float32(), t.f16[i+1].Float32(), t.f16[i+2].Float32(), t.f16[i+3].Float32()}
	}
	return [4]float32{t.f32[i], t.f32[i+1], t.f32[i+2], t.f32[i+3]}
}

// Store writes the texel at (x, y). Out-of-bounds writes are dropped.
func (t *RGBA) Store(x, y int, v [4]float32) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return
	}
	i := (y*t.width + x) * 4
	if t.f16 != nil {
		t.f16[i] = half.FromFloat32(v[0])
		t.f16[i+1] = half.FromFloat32(v[1])
		t.f16[i+2] = half.FromFloat32(v[2])
		t.f16[i+3] = half.FromFloat32(v[3])
		return
	}
	t.f32[i] = v[0]
	t.f32[i+1] = v[1]
	t.f32[i+2] = v[2]
	t.f32[i+3] = v[3]
}

// Sample bilinearly filters the texture at continuous texel coordinates
// (texel centers at +0.5), clamping to the edge.
func (t *RGBA) Sample(fx, fy float32) [4]float32 {
	px := fx - 0.5
	py := fy - 0.5
	x0 := int(math.Floor(float64(px)))
	y0 := int(math.Floor(float64(py)))
	tx := px - float32(x0)
	ty := py - float32(y0)

	c00 := t.Load(x0, y0)
	c10 := t.Load(x0+1, y0)
	c01 := t.Load(x0, y0+1)
	c11 := t.Load(x0+1, y0+1)

	var out [4]float32
	for c := range 4 {
		top := c00[c] + (c10[c]-c00[c])*tx
		bot := c01[c] + (c11[c]-c01[c])*tx
		out[c] = top + (bot-top)*ty
	}
	return out
}

// Fill sets every texel to v.
func (t *RGBA) Fill(v [4]float32) {
	if t.f16 != nil {
		h := [4]half.Half{half.FromFloat32(v[0]), half.FromFloat32(v[1]), half.FromFloat32(v[2]), half.FromFloat32(v[3])}
		for i := 0; i < len(t.f16); i += 4 {
			copy(t.f16[i:i+4], h[:])
		}
		return
	}
	for i := 0; i < len(t.f32); i += 4 {
		t.f32[i], t.f32[i+1], t.f32[i+2], t.f32[i+3] = v[0], v[1], v[2], v[3]
	}
}

// CopyRect copies the src rectangle r of src to dst at dstMin.
// The rectangle is clipped to both textures.
func CopyRect(dst *RGBA, dstMin image.Point, src *RGBA, r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, src.width, src.height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Store(dstMin.X+x-r.Min.X, dstMin.Y+y-r.Min.Y, src.Load(x, y))
		}
	}
}

// Clone returns a deep copy of t.
func (t *RGBA) Clone() *RGBA {
	c := &RGBA{desc: t.desc, width: t.width, height: t.height}
	if t.f16 != nil {
		c.f16 = append([]half.Half(nil), t.f16...)
	} else {
		c.f32 = append([]float32(nil), t.f32...)
	}
	return c
}

// Equal reports whether a and b have the same format, size and texels.
func Equal(a, b *RGBA) bool {
	if a.desc.Format != b.desc.Format || a.width != b.width || a.height != b.height {
		return false
	}
	if a.f16 != nil {
		for i := range a.f16 {
			if a.f16[i] != b.f16[i] {
				return false
			}
		}
		return true
	}
	for i := range a.f32 {
		if math.Float32bits(a.f32[i]) != math.Float32bits(b.f32[i]) {
			return false
		}
	}
	return true
}

// clear zeroes all texels before reuse from a pool.
func (t *RGBA) clear() {
	clear(t.f16)
	clear(t.f32)
}
