package gpu

import (
	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/viewframe"
)

// Parameter blocks. Field order, types and padding mirror the uniform
// structs in shader/wgsl; matrices are column-major like mgl32.

// copyParams mirrors CopyParams in hzb_copy.wgsl (16 bytes).
type copyParams struct {
	Size [2]uint32
	_    [2]uint32
}

// buildParams mirrors BuildParams in hzb_build.wgsl (32 bytes).
type buildParams struct {
	InputMax   [2]int32
	OutputSize [2]uint32
	Reversed   uint32
	_          [3]uint32
}

// traceParams mirrors TraceParams in ssgi_trace.wgsl (192 bytes).
type traceParams struct {
	InvViewProj   [16]float32
	ViewProj      [16]float32
	ViewMin       [2]float32
	ViewSize      [2]float32
	InvViewSize   [2]float32
	BufferSize    [2]float32
	MaxMip        int32
	MaxIterations int32
	Thickness     float32
	RayLength     float32
	Intensity     float32
	FrameIndex    uint32
	Reversed      uint32
	HasNormals    uint32
}

// denoiseParams mirrors DenoiseParams in ssgi_denoise.wgsl (112 bytes).
type denoiseParams struct {
	InvViewProj [16]float32
	ViewMin     [2]float32
	InvViewSize [2]float32
	ViewSize    [2]uint32
	Radius      int32
	Sharpness   float32
	Reversed    uint32
	HasNormals  uint32
	_           [2]uint32
}

// temporalParams mirrors TemporalParams in ssgi_temporal.wgsl (48 bytes).
type temporalParams struct {
	ViewMin      [2]float32
	InvViewSize  [2]float32
	ViewSize     [2]uint32
	Weight       float32
	ClampHistory uint32
	HasVelocity  uint32
	_            [3]uint32
}

// compositeParams mirrors CompositeParams in ssgi_composite.wgsl (32 bytes).
type compositeParams struct {
	ViewMin  [2]uint32
	ViewSize [2]uint32
	Blend    uint32
	_        [3]uint32
}

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func reversed(conv hiz.Convention) uint32 { return flag(conv == hiz.Reversed) }

//nolint:gosec // G115: viewport extents are non-negative and fit in uint32
func viewU32(f viewframe.Frame) (viewMin, viewSize [2]uint32) {
	viewMin = [2]uint32{uint32(f.ViewRect.Min.X), uint32(f.ViewRect.Min.Y)}
	viewSize = [2]uint32{uint32(f.Width()), uint32(f.Height())}
	return viewMin, viewSize
}
