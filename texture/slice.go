package texture

import "image"

// Slice is a texture paired with the view rectangle the frame renders into.
// The logical viewport may be smaller than the physical buffer under
// dynamic resolution or in editor viewports.
type Slice struct {
	Texture  *RGBA
	ViewRect image.Rectangle
}

// IsValid reports whether the slice has a texture and a non-empty view rect
// inside it.
func (s Slice) IsValid() bool {
	if s.Texture == nil || s.ViewRect.Empty() {
		return false
	}
	return s.ViewRect.In(image.Rect(0, 0, s.Texture.Width(), s.Texture.Height()))
}

// Size returns the view rectangle size.
func (s Slice) Size() image.Point { return s.ViewRect.Size() }

// FullSlice returns a slice covering the whole texture.
func FullSlice(t *RGBA) Slice {
	return Slice{Texture: t, ViewRect: image.Rect(0, 0, t.Width(), t.Height())}
}
