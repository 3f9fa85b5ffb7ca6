package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/ssgi/internal/composite"
	"github.com/gogpu/ssgi/internal/denoise"
	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/temporal"
	"github.com/gogpu/ssgi/internal/trace"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
	"github.com/gogpu/wgpu"
)

// hitAlpha is the result alpha above which a trace texel counts as a hit.
const hitAlpha = 0.5

func groups(k shader.Kernel, width, height int) [2]int {
	gx, gy, _ := k.Groups(width, height)
	return [2]int{int(gx), int(gy)}
}

// lock takes the executor lock and reports ErrClosed after Close.
func (e *Executor) lock() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Pyramid fills every level of tex from the scene depth with hzb_copy and
// one hzb_build dispatch per coarser level.
func (e *Executor) Pyramid(depth, tex *texture.Scalar, conv hiz.Convention) error {
	if depth == nil || tex == nil {
		return fmt.Errorf("gpu: pyramid: %w", ErrMissingInput)
	}
	w, h := tex.LevelSize(0)
	if depth.Width() != w || depth.Height() != h {
		return fmt.Errorf("gpu: pyramid: depth %dx%d, pyramid %dx%d", depth.Width(), depth.Height(), w, h)
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	//nolint:gosec // G115: texture sizes fit in 32 bits
	cp := copyParams{Size: [2]uint32{uint32(w), uint32(h)}}
	if err := e.reduceLevel(shader.HZBCopy, depth, 0, tex, 0, structBytes(&cp)); err != nil {
		return err
	}
	for level := 1; level < tex.Levels(); level++ {
		iw, ih := tex.LevelSize(level - 1)
		ow, oh := tex.LevelSize(level)
		//nolint:gosec // G115
		bp := buildParams{
			InputMax:   [2]int32{int32(iw - 1), int32(ih - 1)},
			OutputSize: [2]uint32{uint32(ow), uint32(oh)},
			Reversed:   reversed(conv),
		}
		if err := e.reduceLevel(shader.HZBBuild, tex, level-1, tex, level, structBytes(&bp)); err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
	}
	return nil
}

// reduceLevel runs one Hi-Z kernel from src level into dst level.
func (e *Executor) reduceLevel(k shader.Kernel, src *texture.Scalar, srcLevel int, dst *texture.Scalar, dstLevel int, params []byte) error {
	b := e.newBatch()
	defer b.release()

	in, err := b.scalar(k.Name+".in", src, srcLevel, 1)
	if err != nil {
		return fmt.Errorf("gpu: %s: %w", k.Name, err)
	}
	ow, oh := dst.LevelSize(dstLevel)
	out, err := b.storage(k.Name+".out", ow, oh, gputypes.TextureFormatR32Float)
	if err != nil {
		return fmt.Errorf("gpu: %s: %w", k.Name, err)
	}
	ub, size, err := b.uniform(k.Name+".params", params)
	if err != nil {
		return fmt.Errorf("gpu: %s: %w", k.Name, err)
	}

	rows, err := e.dispatch(b, k, ow, oh, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: in},
		{Binding: 1, TextureView: out.view},
		{Binding: 2, Buffer: ub, Size: size},
	}, out)
	if err != nil {
		return err
	}
	decodeR32(rows, int(out.pitch), ow, oh, dst.Level(dstLevel))
	return nil
}

// Trace runs ssgi_trace into the viewport-sized out. The kernel has no
// diagnostic output and does not count iterations; Hits is counted from
// the hit flag in the result alpha.
func (e *Executor) Trace(in trace.Inputs, out *texture.RGBA, p trace.Params) (trace.Stats, error) {
	if in.Pyramid == nil || in.Depth == nil || in.Color.Texture == nil || out == nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, trace.ErrMissingInput)
	}
	if err := e.lock(); err != nil {
		return trace.Stats{}, err
	}
	defer e.mu.Unlock()

	if p.MaxIterations <= 0 {
		p.MaxIterations = trace.DefaultMaxIterations
	}
	p.MaxMip = min(max(p.MaxMip, 0), in.Pyramid.MaxLevel())
	f := in.Frame
	w, h := f.Width(), f.Height()

	b := e.newBatch()
	defer b.release()

	pyr := in.Pyramid.Texture()
	hzb, err := b.scalar("HZB", pyr, 0, pyr.Levels())
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}
	color, err := b.rgba("SceneColor", in.Color.Texture)
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}
	depth, err := b.scalar("SceneDepth", in.Depth, 0, 1)
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}
	normals, err := b.rgba("Normals", in.Normal)
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}
	dst, err := b.storage("SSGI.Trace", w, h, gputypes.TextureFormatRGBA16Float)
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}
	//nolint:gosec // G115: iteration and mip counts are small
	tp := traceParams{
		InvViewProj:   f.InvViewProj,
		ViewProj:      f.ViewProj,
		ViewMin:       f.ViewMin,
		ViewSize:      f.ViewSize,
		InvViewSize:   f.InvViewSize,
		BufferSize:    f.BufferSize,
		MaxMip:        int32(p.MaxMip),
		MaxIterations: int32(p.MaxIterations),
		Thickness:     p.Thickness,
		RayLength:     p.RayLength,
		Intensity:     p.Intensity,
		FrameIndex:    p.FrameIndex,
		Reversed:      reversed(in.Pyramid.Convention()),
		HasNormals:    flag(in.Normal != nil),
	}
	ub, size, err := b.uniform("SSGI.TraceParams", structBytes(&tp))
	if err != nil {
		return trace.Stats{}, fmt.Errorf("gpu: %s: %w", shader.Trace.Name, err)
	}

	rows, err := e.dispatch(b, shader.Trace, w, h, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: hzb},
		{Binding: 1, TextureView: color},
		{Binding: 2, TextureView: depth},
		{Binding: 3, TextureView: normals},
		{Binding: 4, TextureView: dst.view},
		{Binding: 5, Buffer: ub, Size: size},
	}, dst)
	if err != nil {
		return trace.Stats{}, err
	}
	decodeRGBA16(rows, int(dst.pitch), out)

	s := trace.Stats{Groups: groups(shader.Trace, w, h)}
	for y := range h {
		for x := range w {
			if out.Load(x, y)[3] > hitAlpha {
				s.Hits++
			}
		}
	}
	return s, nil
}

// Denoise runs ssgi_denoise from in.Source into the viewport-sized dst.
func (e *Executor) Denoise(in denoise.Inputs, dst *texture.RGBA, p denoise.Params) ([2]int, error) {
	if in.Source == nil || in.Depth == nil || dst == nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, denoise.ErrMissingInput)
	}
	if err := e.lock(); err != nil {
		return [2]int{}, err
	}
	defer e.mu.Unlock()

	f := in.Frame
	w, h := f.Width(), f.Height()
	b := e.newBatch()
	defer b.release()

	src, err := b.rgba("SSGI.DenoiseSource", in.Source)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, err)
	}
	depth, err := b.scalar("SceneDepth", in.Depth, 0, 1)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, err)
	}
	normals, err := b.rgba("Normals", in.Normal)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, err)
	}
	out, err := b.storage("SSGI.Denoise", w, h, gputypes.TextureFormatRGBA16Float)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, err)
	}
	_, viewSize := viewU32(f)
	//nolint:gosec // G115: radius is clamped to MaxRadius
	dp := denoiseParams{
		InvViewProj: f.InvViewProj,
		ViewMin:     f.ViewMin,
		InvViewSize: f.InvViewSize,
		ViewSize:    viewSize,
		Radius:      int32(min(max(p.Radius, 0), denoise.MaxRadius)),
		Sharpness:   max(p.Sharpness, 0),
		Reversed:    reversed(in.Convention),
		HasNormals:  flag(in.Normal != nil),
	}
	ub, size, err := b.uniform("SSGI.DenoiseParams", structBytes(&dp))
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Denoise.Name, err)
	}

	rows, err := e.dispatch(b, shader.Denoise, w, h, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: src},
		{Binding: 1, TextureView: depth},
		{Binding: 2, TextureView: normals},
		{Binding: 3, TextureView: out.view},
		{Binding: 4, Buffer: ub, Size: size},
	}, out)
	if err != nil {
		return [2]int{}, err
	}
	decodeRGBA16(rows, int(out.pitch), dst)
	return groups(shader.Denoise, w, h), nil
}

// Accumulate runs ssgi_temporal, blending in.Current with the reprojected
// history into the viewport-sized dst.
func (e *Executor) Accumulate(in temporal.Inputs, dst *texture.RGBA, p temporal.Params) ([2]int, error) {
	if in.Current == nil || in.History == nil || dst == nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, temporal.ErrMissingInput)
	}
	if err := e.lock(); err != nil {
		return [2]int{}, err
	}
	defer e.mu.Unlock()

	f := in.Frame
	w, h := f.Width(), f.Height()
	b := e.newBatch()
	defer b.release()

	current, err := b.rgba("SSGI.TemporalCurrent", in.Current)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, err)
	}
	history, err := b.filterable("SSGI.History", in.History)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, err)
	}
	velocity, err := b.rgba("Velocity", in.Velocity)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, err)
	}
	out, err := b.storage("SSGI.Temporal", w, h, gputypes.TextureFormatRGBA16Float)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, err)
	}
	_, viewSize := viewU32(f)
	tp := temporalParams{
		ViewMin:      f.ViewMin,
		InvViewSize:  f.InvViewSize,
		ViewSize:     viewSize,
		Weight:       min(max(p.Weight, 0), 1),
		ClampHistory: flag(p.Clamp),
		HasVelocity:  flag(in.Velocity != nil),
	}
	ub, size, err := b.uniform("SSGI.TemporalParams", structBytes(&tp))
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Temporal.Name, err)
	}

	rows, err := e.dispatch(b, shader.Temporal, w, h, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: current},
		{Binding: 1, TextureView: history},
		{Binding: 2, Sampler: e.sampler},
		{Binding: 3, TextureView: velocity},
		{Binding: 4, TextureView: out.view},
		{Binding: 5, Buffer: ub, Size: size},
	}, out)
	if err != nil {
		return [2]int{}, err
	}
	decodeRGBA16(rows, int(out.pitch), dst)
	return groups(shader.Temporal, w, h), nil
}

// Composite runs ssgi_composite, blending src with the scene colour inside
// the frame's view rectangle into the viewport-sized dst. The kernel
// writes RGBA16Float, so dst should have that format.
func (e *Executor) Composite(scene *texture.RGBA, f viewframe.Frame, src *texture.RGBA, blend composite.Blend, dst *texture.RGBA) ([2]int, error) {
	if scene == nil || src == nil || dst == nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Composite.Name, composite.ErrMissingInput)
	}
	if err := e.lock(); err != nil {
		return [2]int{}, err
	}
	defer e.mu.Unlock()

	w, h := f.Width(), f.Height()
	b := e.newBatch()
	defer b.release()

	color, err := b.rgba("SceneColor", scene)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Composite.Name, err)
	}
	gi, err := b.rgba("SSGI.CompositeSource", src)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Composite.Name, err)
	}
	out, err := b.storage("SSGI.Composite", w, h, gputypes.TextureFormatRGBA16Float)
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Composite.Name, err)
	}
	viewMin, viewSize := viewU32(f)
	cp := compositeParams{ViewMin: viewMin, ViewSize: viewSize, Blend: uint32(blend)}
	ub, size, err := b.uniform("SSGI.CompositeParams", structBytes(&cp))
	if err != nil {
		return [2]int{}, fmt.Errorf("gpu: %s: %w", shader.Composite.Name, err)
	}

	rows, err := e.dispatch(b, shader.Composite, w, h, []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: color},
		{Binding: 1, TextureView: gi},
		{Binding: 2, TextureView: out.view},
		{Binding: 3, Buffer: ub, Size: size},
	}, out)
	if err != nil {
		return [2]int{}, err
	}
	decodeRGBA16(rows, int(out.pitch), dst)
	return groups(shader.Composite, w, h), nil
}
