package ssgi

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/ssgi/internal/composite"
	"github.com/gogpu/ssgi/internal/denoise"
	"github.com/gogpu/ssgi/internal/gpu"
	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/temporal"
	"github.com/gogpu/ssgi/internal/trace"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/texture"
)

// Pipeline is the SSGI post-processing stage.
//
// A Pipeline keeps the temporal history between frames. Process is safe
// for concurrent use but frames are processed one at a time. Settings may
// be changed at any time from any goroutine.
type Pipeline struct {
	mu        sync.Mutex
	cfg       config
	settings  Settings
	dispatch  *parallel.Dispatcher
	alloc     *texture.Allocator
	ownsAlloc bool
	history   *temporal.History
	exec      *gpu.Executor
	closed    bool
}

// New creates a pipeline. It returns ErrInvalidOption if an option value is
// out of range.
func New(opts ...Option) (*Pipeline, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		dispatch: parallel.NewDispatcher(cfg.workers),
		alloc:    cfg.allocator,
		history:  temporal.NewHistory(cfg.format, cfg.historyWeight),
	}
	if p.alloc == nil {
		p.alloc = texture.NewAllocator(0)
		p.ownsAlloc = true
	}
	p.settings.SetEnabled(cfg.initialEnabled)

	backend := "cpu"
	if cfg.device != nil {
		exec, err := gpu.New(cfg.device, Logger())
		if err != nil {
			Logger().Warn("ssgi: GPU device unusable, running on CPU", "err", err)
		} else {
			p.exec = exec
			backend = "gpu: " + exec.Adapter()
		}
	}

	Logger().Info("ssgi: pipeline created",
		"workers", p.dispatch.Workers(),
		"backend", backend,
		"depth", cfg.convention,
		"format", cfg.format,
		"blend", cfg.blend)
	return p, nil
}

// OnGPU reports whether the passes run on the host device.
func (p *Pipeline) OnGPU() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exec != nil
}

// onDevice runs a pass on the GPU executor and reports whether it did.
// A failing pass closes the executor: this and every later pass run on
// the CPU.
func (p *Pipeline) onDevice(pass string, frame uint64, run func(*gpu.Executor) error) bool {
	if p.exec == nil {
		return false
	}
	if err := run(p.exec); err != nil {
		Logger().Warn("ssgi: GPU pass failed, falling back to CPU",
			"pass", pass,
			"frame", frame,
			"err", err)
		p.exec.Close()
		p.exec = nil
		return false
	}
	return true
}

// Settings returns the runtime toggles of the pipeline.
func (p *Pipeline) Settings() *Settings { return &p.settings }

// Allocator returns the allocator frame textures come from.
func (p *Pipeline) Allocator() *texture.Allocator { return p.alloc }

// HasHistory reports whether a valid history is stored for the next frame.
func (p *Pipeline) HasHistory() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.State() == temporal.Valid
}

// Close releases the history and stops the worker pool. Closing twice
// returns ErrPipelineClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}
	p.closed = true
	p.history.Release(p.alloc)
	if p.exec != nil {
		p.exec.Close()
		p.exec = nil
	}
	p.dispatch.Close()
	if p.ownsAlloc {
		p.alloc.Close()
	}
	Logger().Info("ssgi: pipeline closed")
	return nil
}

// Process runs the effect on one frame and returns the scene colour slice,
// with the composite written over its view rectangle.
//
// Process never fails: a frame that cannot be processed is returned
// untouched and the report says why. No texture is allocated for a
// bypassed frame.
func (p *Pipeline) Process(in FrameInputs) (texture.Slice, FrameReport) {
	start := time.Now()
	s := p.settings.snapshot()
	report := FrameReport{
		FrameNumber: in.FrameNumber,
		DebugMode:   s.debugMode,
		PassOrder:   s.passOrder,
		DitherIndex: trace.DitherIndex(in.FrameNumber),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if reason := p.checkInputs(in, s); reason != BypassNone {
		report.Bypass = reason
		report.Total = time.Since(start)
		return in.SceneColor, report
	}

	f := p.run(in, s, &report)
	if report.Bypass == BypassNone {
		Logger().Debug("ssgi: frame",
			"frame", in.FrameNumber,
			"view", fmt.Sprintf("%dx%d", f.Width(), f.Height()),
			"hits", report.Hits,
			"total", time.Since(start))
	}
	report.Total = time.Since(start)
	return in.SceneColor, report
}

// checkInputs decides whether the frame bypasses the effect.
func (p *Pipeline) checkInputs(in FrameInputs, s snapshot) BypassReason {
	log := Logger()
	switch {
	case p.closed:
		log.Warn("ssgi: frame bypassed, pipeline closed", "frame", in.FrameNumber)
		return BypassClosed
	case !s.enabled:
		return BypassDisabled
	case in.SceneDepth == nil:
		log.Warn("ssgi: frame bypassed, missing scene depth", "frame", in.FrameNumber)
		return BypassMissingDepth
	case !in.SceneColor.IsValid():
		log.Warn("ssgi: frame bypassed, missing scene colour", "frame", in.FrameNumber)
		return BypassMissingColor
	case in.SceneDepth.Width() != in.SceneColor.Texture.Width() ||
		in.SceneDepth.Height() != in.SceneColor.Texture.Height():
		log.Warn("ssgi: frame bypassed, depth and colour sizes differ",
			"frame", in.FrameNumber,
			"depth", fmt.Sprintf("%dx%d", in.SceneDepth.Width(), in.SceneDepth.Height()),
			"color", in.SceneColor.Texture.Size())
		return BypassSizeMismatch
	}
	return BypassNone
}

// bufferSized returns t if it matches the buffer size, nil otherwise.
func bufferSized(t *texture.RGBA, size image.Point, name string) *texture.RGBA {
	if t == nil {
		return nil
	}
	if t.Size() != size {
		Logger().Debug("ssgi: ignoring input with wrong size", "input", name, "size", t.Size(), "buffer", size)
		return nil
	}
	return t
}

// passRecorder times passes into the frame report.
type passRecorder struct {
	report *FrameReport
	log    *slog.Logger
}

func (r passRecorder) record(name string, w, h int, groups [2]int, started time.Time) {
	pt := PassTiming{Name: name, Width: w, Height: h, Groups: groups, Duration: time.Since(started)}
	r.report.Passes = append(r.report.Passes, pt)
	r.log.Debug("ssgi: pass",
		"name", name,
		"size", fmt.Sprintf("%dx%d", w, h),
		"groups", fmt.Sprintf("%dx%d", groups[0], groups[1]),
		"duration", pt.Duration)
}

// run records and executes every pass of a frame that is not bypassed.
func (p *Pipeline) run(in FrameInputs, s snapshot, report *FrameReport) viewframe.Frame {
	cfg := p.cfg
	conv := cfg.convention.hiz()
	color := in.SceneColor
	buffer := color.Texture.Size()

	f := viewframe.Resolve(color.ViewRect, buffer, in.InvViewProj, in.ViewProj)
	vw, vh := f.Width(), f.Height()
	report.ViewSize = [2]int{vw, vh}

	normal := bufferSized(in.Normal, buffer, "normal")
	velocity := bufferSized(in.Velocity, buffer, "velocity")

	scope := p.alloc.Begin(fmt.Sprintf("SSGI frame %d", in.FrameNumber))
	defer func() {
		report.Allocations = scope.Allocations()
		scope.End()
	}()

	rec := passRecorder{report: report, log: Logger()}
	fail := func(err error) viewframe.Frame {
		Logger().Warn("ssgi: frame bypassed, allocation failed", "frame", in.FrameNumber, "err", err)
		report.Bypass = BypassAllocation
		return f
	}
	target := func(label string) (*texture.RGBA, error) {
		return scope.RGBA(texture.Desc{
			Label:  label,
			Width:  vw,
			Height: vh,
			Format: cfg.format,
			Usage:  texture.UsageStorage,
		})
	}

	// Depth pyramid.
	t0 := time.Now()
	hzb, err := hiz.Alloc(scope, buffer.X, buffer.Y)
	if err != nil {
		return fail(err)
	}
	if !p.onDevice("HZB", in.FrameNumber, func(e *gpu.Executor) error {
		return e.Pyramid(in.SceneDepth, hzb, conv)
	}) {
		hiz.Fill(p.dispatch, in.SceneDepth, hzb, conv)
	}
	pyr := hiz.Wrap(hzb, conv)
	rec.record("HZB", buffer.X, buffer.Y, [2]int{
		parallel.GroupCount(buffer.X, parallel.DefaultGroupSize),
		parallel.GroupCount(buffer.Y, parallel.DefaultGroupSize),
	}, t0)
	report.PyramidLevels = pyr.Levels()

	// Trace.
	traced, err := target("SSGI.Trace")
	if err != nil {
		return fail(err)
	}
	var aux *texture.RGBA
	diag := s.debugMode.diagnostic()
	if diag != trace.DiagnosticNone {
		if aux, err = target("SSGI.Debug"); err != nil {
			return fail(err)
		}
	}
	tp := trace.Params{
		MaxMip:        pyr.MaxLevel(),
		MaxIterations: cfg.maxIterations,
		Thickness:     cfg.thickness,
		RayLength:     cfg.rayLength,
		Intensity:     cfg.intensity,
		FrameIndex:    report.DitherIndex,
	}
	tin := trace.Inputs{
		Pyramid: pyr,
		Color:   color,
		Depth:   in.SceneDepth,
		Normal:  normal,
		Frame:   f,
	}
	t0 = time.Now()
	var ts trace.Stats
	// The kernel has no diagnostic output.
	if diag != trace.DiagnosticNone || !p.onDevice("SSGI.Trace", in.FrameNumber, func(e *gpu.Executor) error {
		ts, err = e.Trace(tin, traced, tp)
		return err
	}) {
		ts, err = trace.Trace(p.dispatch, tin, trace.Outputs{Result: traced, Aux: aux, Diagnostic: diag}, tp)
		if err != nil {
			return fail(err)
		}
	}
	rec.record("SSGI.Trace", vw, vh, ts.Groups, t0)
	report.Hits, report.Iterations = ts.Hits, ts.Iterations

	// History.
	hf, err := p.history.Prepare(scope, image.Pt(vw, vh))
	if err != nil {
		return fail(err)
	}
	report.HistoryWeight = hf.Weight
	if hf.Reset != temporal.ResetNone {
		report.HistoryReset = true
		report.HistoryResetReason = hf.Reset.String()
		Logger().Info("ssgi: history reset",
			"frame", in.FrameNumber,
			"reason", hf.Reset,
			"size", fmt.Sprintf("%dx%d", vw, vh))
	}

	// Spatial and temporal filters, in the configured order.
	denoised, err := target("SSGI.Denoise")
	if err != nil {
		return fail(err)
	}
	accumulated, err := target("SSGI.Temporal")
	if err != nil {
		return fail(err)
	}
	spatial := func(src *texture.RGBA) error {
		din := denoise.Inputs{
			Source:     src,
			Depth:      in.SceneDepth,
			Normal:     normal,
			Frame:      f,
			Convention: conv,
		}
		dp := denoise.Params{Radius: cfg.denoiseRadius, Sharpness: cfg.denoiseSharp}
		t0 := time.Now()
		var g [2]int
		var err error
		if !p.onDevice("SSGI.Denoise", in.FrameNumber, func(e *gpu.Executor) error {
			g, err = e.Denoise(din, denoised, dp)
			return err
		}) {
			g, err = denoise.Filter(p.dispatch, din, denoised, dp)
		}
		rec.record("SSGI.Denoise", vw, vh, g, t0)
		return err
	}
	temporalPass := func(src *texture.RGBA) error {
		tin := temporal.Inputs{
			Current:  src,
			History:  hf.Texture,
			Velocity: velocity,
			Frame:    f,
		}
		tp := temporal.Params{Weight: hf.Weight, Clamp: cfg.historyClamp}
		t0 := time.Now()
		var g [2]int
		var err error
		if !p.onDevice("SSGI.Temporal", in.FrameNumber, func(e *gpu.Executor) error {
			g, err = e.Accumulate(tin, accumulated, tp)
			return err
		}) {
			g, err = temporal.Accumulate(p.dispatch, tin, accumulated, tp)
		}
		rec.record("SSGI.Temporal", vw, vh, g, t0)
		return err
	}

	final := accumulated
	if s.passOrder == TemporalThenDenoise {
		if err := temporalPass(traced); err != nil {
			return fail(err)
		}
		if err := spatial(accumulated); err != nil {
			return fail(err)
		}
		final = denoised
	} else {
		if err := spatial(traced); err != nil {
			return fail(err)
		}
		if err := temporalPass(denoised); err != nil {
			return fail(err)
		}
	}

	// Visualizations.
	var viz *texture.RGBA
	mode := s.debugMode.mode()
	if mode.IsVisualization() {
		if viz, err = target("SSGI.Visualize"); err != nil {
			return fail(err)
		}
		t0 := time.Now()
		switch mode {
		case composite.ModeDepthPyramid:
			composite.VisualizePyramid(p.dispatch, pyr, f, viz)
		case composite.ModeWorldPosition:
			composite.VisualizeWorld(p.dispatch, in.SceneDepth, conv, f, viz)
		case composite.ModeRayStart:
			composite.VisualizeRayStart(p.dispatch, in.SceneDepth, conv, f, viz)
		case composite.ModeDepthCheck:
			composite.VisualizeDepthCheck(p.dispatch, pyr, in.SceneDepth, f, viz)
		}
		rec.record("SSGI.Visualize", vw, vh, [2]int{
			parallel.GroupCount(vw, parallel.DefaultGroupSize),
			parallel.GroupCount(vh, parallel.DefaultGroupSize),
		}, t0)
	}

	// Composite and copy back.
	src := composite.Select(mode, composite.Sources{
		Final:         final,
		RawTrace:      traced,
		Denoised:      denoised,
		History:       accumulated,
		Diagnostic:    aux,
		Visualization: viz,
	})
	// The composite target has the scene's format, not the history format.
	out, err := scope.RGBA(texture.Desc{
		Label:  "SSGI.Composite",
		Width:  vw,
		Height: vh,
		Format: color.Texture.Format(),
		Usage:  texture.UsageStorage,
	})
	if err != nil {
		return fail(err)
	}
	blend := composite.BlendFor(mode, composite.Blend(cfg.blend))
	t0 = time.Now()
	var g [2]int
	// The kernel writes RGBA16Float; wider scene formats composite on the CPU.
	if out.Format() != texture.FormatRGBA16Float || !p.onDevice("SSGI.Composite", in.FrameNumber, func(e *gpu.Executor) error {
		g, err = e.Composite(color.Texture, f, src, blend, out)
		return err
	}) {
		g, err = composite.Composite(p.dispatch, color.Texture, f, src, blend, out)
		if err != nil {
			return fail(err)
		}
	}
	composite.CopyBack(out, color.Texture, f)
	rec.record("SSGI.Composite", vw, vh, g, t0)

	p.history.Commit(scope, accumulated)
	return f
}
