package ssgi

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/texture"
)

// FrameInputs are the per-frame resources handed to Process.
type FrameInputs struct {
	// SceneDepth is the buffer-sized device depth. Nil means the renderer
	// produced no depth this frame; the frame is bypassed.
	SceneDepth *texture.Scalar

	// SceneColor is the lit scene colour and the viewport inside it. The
	// composite is written back over its view rectangle.
	SceneColor texture.Slice

	// Normal holds buffer-sized world normals in xyz. Optional; zero texels
	// and a nil texture fall back to normals rebuilt from depth.
	Normal *texture.RGBA

	// Velocity holds buffer-sized viewport-UV motion in xy, current minus
	// previous. Optional; nil means no motion.
	Velocity *texture.RGBA

	// ViewProj maps world space to clip space.
	ViewProj mgl32.Mat4

	// InvViewProj maps clip space to world space. A zero matrix is derived
	// from ViewProj.
	InvViewProj mgl32.Mat4

	// FrameNumber is the host's frame counter. It seeds the ray jitter.
	FrameNumber uint64
}

// BypassReason explains why a frame was returned untouched.
type BypassReason uint8

const (
	// BypassNone means the frame was processed.
	BypassNone BypassReason = iota

	// BypassDisabled means the runtime toggle is off.
	BypassDisabled

	// BypassMissingDepth means no scene depth was supplied.
	BypassMissingDepth

	// BypassMissingColor means the scene colour slice is empty or invalid.
	BypassMissingColor

	// BypassSizeMismatch means the scene depth and colour buffers differ in size.
	BypassSizeMismatch

	// BypassClosed means the pipeline was closed.
	BypassClosed

	// BypassAllocation means a frame texture could not be allocated.
	BypassAllocation
)

// String returns the bypass reason.
func (r BypassReason) String() string {
	switch r {
	case BypassNone:
		return "None"
	case BypassDisabled:
		return "Disabled"
	case BypassMissingDepth:
		return "MissingDepth"
	case BypassMissingColor:
		return "MissingColor"
	case BypassSizeMismatch:
		return "SizeMismatch"
	case BypassClosed:
		return "Closed"
	case BypassAllocation:
		return "Allocation"
	default:
		return fmt.Sprintf("BypassReason(%d)", r)
	}
}

// PassTiming records one dispatched pass.
type PassTiming struct {
	// Name is the pass label, e.g. "HZB" or "SSGI.Trace".
	Name string

	// Width and Height are the dispatch extent in threads.
	Width  int
	Height int

	// Groups is the number of thread groups along x and y.
	Groups [2]int

	Duration time.Duration
}

// FrameReport describes what Process did with a frame.
type FrameReport struct {
	FrameNumber uint64

	// Bypass is why the frame was not processed, BypassNone if it was.
	Bypass BypassReason

	// DebugMode and PassOrder are the settings the frame ran with.
	DebugMode DebugMode
	PassOrder PassOrder

	// ViewSize is the resolved viewport size.
	ViewSize [2]int

	// DitherIndex is the ray jitter seed (FrameNumber mod 1024).
	DitherIndex uint32

	// HistoryWeight is the weight history was blended with this frame.
	HistoryWeight float32

	// HistoryReset is true when the frame started without history, with
	// HistoryResetReason naming why.
	HistoryReset       bool
	HistoryResetReason string

	// PyramidLevels is the number of depth pyramid levels built.
	PyramidLevels int

	// Hits and Iterations are the ray hit count and total cell steps.
	Hits       int64
	Iterations int64

	// Allocations lists every texture the frame requested.
	Allocations []texture.Desc

	// Passes lists the dispatched passes in order.
	Passes []PassTiming

	// Total is the wall time of Process.
	Total time.Duration
}

// Processed reports whether the frame ran the effect.
func (r *FrameReport) Processed() bool { return r.Bypass == BypassNone }
