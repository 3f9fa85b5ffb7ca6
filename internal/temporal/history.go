// Package temporal implements history-based temporal accumulation.
//
// The accumulator blends the current frame's lighting with last frame's
// result, fetched at the reprojected position of every pixel. History lives
// in a single slot owned by History; each frame either reuses it or, on the
// first frame and after a viewport resize, starts over with weight zero.
package temporal

import (
	"fmt"
	"image"

	"github.com/gogpu/ssgi/texture"
)

// DefaultWeight is the history weight of a valid history.
const DefaultWeight = 0.9

// State is the state of the history slot.
type State uint8

const (
	// NoHistory means no usable history exists: first frame, after a
	// resize, or after Release.
	NoHistory State = iota

	// Valid means the slot holds last frame's result at the current size.
	Valid
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NoHistory:
		return "NoHistory"
	case Valid:
		return "Valid"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Reset explains why a frame started without history.
type Reset uint8

const (
	// ResetNone means history was reused.
	ResetNone Reset = iota

	// ResetFirstFrame means no history had been recorded yet.
	ResetFirstFrame

	// ResetResize means the viewport size changed since the history was
	// recorded.
	ResetResize
)

// String returns the reset reason.
func (r Reset) String() string {
	switch r {
	case ResetNone:
		return "None"
	case ResetFirstFrame:
		return "FirstFrame"
	case ResetResize:
		return "Resize"
	default:
		return fmt.Sprintf("Reset(%d)", r)
	}
}

// Frame is the history view handed to one frame by Prepare.
type Frame struct {
	// Texture is the previous result, or a zero-filled placeholder of the
	// current size when there is none.
	Texture *texture.RGBA

	// Weight is the blend weight of the history.
	Weight float32

	// Reset is why the history was not used, if it was not.
	Reset Reset
}

// History owns the persistent history slot.
//
// History is not safe for concurrent use; the pipeline processes one frame
// at a time.
type History struct {
	tex    *texture.RGBA
	extent image.Point
	state  State
	weight float32
	format texture.Format
}

// NewHistory creates an empty history slot that stores results in format
// and blends valid history with weight.
func NewHistory(format texture.Format, weight float32) *History {
	return &History{format: format, weight: weight}
}

// State returns the slot state.
func (h *History) State() State { return h.state }

// Extent returns the size of the stored history, zero when there is none.
func (h *History) Extent() image.Point { return h.extent }

// Format returns the texel format of the history.
func (h *History) Format() texture.Format { return h.format }

// Prepare returns the history to read this frame at viewport size size.
//
// A stored history of a different size is handed to the scope, which
// releases it when the frame ends, and the frame runs with weight zero.
// Without history a zero-filled placeholder is allocated from the scope.
func (h *History) Prepare(s *texture.Scope, size image.Point) (Frame, error) {
	if h.state == Valid && h.extent == size {
		return Frame{Texture: h.tex, Weight: h.weight}, nil
	}

	reset := ResetFirstFrame
	if h.state == Valid {
		reset = ResetResize
		s.Adopt(h.tex)
		h.tex = nil
		h.extent = image.Point{}
		h.state = NoHistory
	}

	ph, err := s.RGBA(texture.Desc{
		Label:  "SSGI.HistoryPlaceholder",
		Width:  size.X,
		Height: size.Y,
		Format: h.format,
		Usage:  texture.UsageStorage,
	})
	if err != nil {
		return Frame{}, fmt.Errorf("temporal: allocate history placeholder: %w", err)
	}
	return Frame{Texture: ph, Weight: 0, Reset: reset}, nil
}

// Commit makes result the history of the next frame. The result is taken
// out of the scope; the history it replaces is handed to the scope so it
// stays alive until every pass of the current frame has read it.
func (h *History) Commit(s *texture.Scope, result *texture.RGBA) {
	s.Extract(result)
	if h.tex != nil && h.tex != result {
		s.Adopt(h.tex)
	}
	h.tex = result
	h.extent = result.Size()
	h.state = Valid
}

// Release drops the stored history.
func (h *History) Release(a *texture.Allocator) {
	if h.tex != nil {
		a.Release(h.tex)
	}
	h.tex = nil
	h.extent = image.Point{}
	h.state = NoHistory
}
