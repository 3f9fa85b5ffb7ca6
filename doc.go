// Package ssgi provides screen-space global illumination for real-time
// renderers.
//
// # Overview
//
// ssgi approximates one bounce of indirect diffuse light from what is
// already on screen. Every frame it builds a hierarchical depth pyramid
// from the scene depth, marches one ray per pixel through that pyramid,
// filters the noisy result in space and in time, and adds it back into the
// scene colour.
//
// # Quick Start
//
//	import "github.com/gogpu/ssgi"
//
//	p, err := ssgi.New(ssgi.WithIntensity(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	// Every frame:
//	out, report := p.Process(ssgi.FrameInputs{
//	    SceneDepth:  depth,
//	    SceneColor:  texture.FullSlice(color),
//	    Normal:      normals,
//	    Velocity:    motion,
//	    ViewProj:    viewProj,
//	    FrameNumber: frame,
//	})
//
// # Passes
//
// A processed frame runs, in order:
//   - HZB: copy of the scene depth plus one reduction per pyramid level
//   - SSGI.Trace: Hi-Z ray march, one ray per viewport pixel
//   - SSGI.Denoise: joint bilateral filter guided by depth and normals
//   - SSGI.Temporal: blend with last frame's reprojected result
//   - SSGI.Composite: blend into the scene colour and copy back
//
// The spatial and temporal passes can be swapped at runtime, see PassOrder.
// Each pass is a kernel dispatched over 8x8 thread groups on a worker pool;
// package shader holds the WGSL version of every kernel for hosts that run
// them on a GPU.
//
// # Failure Handling
//
// Process never returns an error. A frame without depth or colour, or with
// the effect disabled, is returned untouched before any texture is
// allocated, and the FrameReport says why. A change of viewport size drops
// the history and the next frame starts over with history weight zero.
//
// # Coordinate Conventions
//
//   - Buffer pixels have the origin at the top-left, y down; centers at +0.5
//   - Viewport UV is [0, 1] over the view rectangle
//   - Velocity is current minus previous viewport UV
//   - Depth is reversed (near 1, far 0) unless WithDepthConvention says otherwise
package ssgi
