package ssgi

import (
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/synth"
	"github.com/gogpu/ssgi/internal/trace"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/texture"
)

// =============================================================================
// Helpers
// =============================================================================

func newTestPipeline(t testing.TB, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(append([]Option{WithWorkers(2)}, opts...)...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func cornerInputs(t testing.TB, w, h int, format texture.Format, frame uint64) FrameInputs {
	t.Helper()
	f, err := synth.CornerScene().Render(synth.RenderOptions{
		Width:       w,
		Height:      h,
		Camera:      synth.DefaultCamera(),
		ColorFormat: format,
	})
	if err != nil {
		t.Fatal(err)
	}
	return inputsFrom(f, frame)
}

func flatInputs(t testing.TB, w, h int, frame uint64) FrameInputs {
	t.Helper()
	f, err := synth.Flat(w, h, hiz.Reversed, [4]float32{0.2, 0.4, 0.6, 1})
	if err != nil {
		t.Fatal(err)
	}
	return inputsFrom(f, frame)
}

func inputsFrom(f *synth.Frame, frame uint64) FrameInputs {
	return FrameInputs{
		SceneDepth:  f.Depth,
		SceneColor:  texture.Slice{Texture: f.Color, ViewRect: f.ViewRect},
		Normal:      f.Normal,
		Velocity:    f.Velocity,
		ViewProj:    f.ViewProj,
		InvViewProj: f.InvViewProj,
		FrameNumber: frame,
	}
}

func passNames(r FrameReport) []string {
	names := make([]string, len(r.Passes))
	for i, p := range r.Passes {
		names[i] = p.Name
	}
	return names
}

// =============================================================================
// Bypass
// =============================================================================

func TestProcessDisabledIsBitIdentical(t *testing.T) {
	p := newTestPipeline(t)
	p.Settings().SetEnabled(false)

	in := cornerInputs(t, 32, 24, texture.FormatRGBA16Float, 1)
	before := in.SceneColor.Texture.Clone()

	out, report := p.Process(in)
	if report.Bypass != BypassDisabled {
		t.Errorf("Bypass = %v, want Disabled", report.Bypass)
	}
	if out.Texture != in.SceneColor.Texture || out.ViewRect != in.SceneColor.ViewRect {
		t.Error("bypassed frame must return the input slice")
	}
	if !texture.Equal(before, in.SceneColor.Texture) {
		t.Error("disabled pipeline modified the scene colour")
	}
	if n := p.Allocator().Stats().Allocations; n != 0 {
		t.Errorf("allocations = %d, want 0", n)
	}
}

func TestProcessMissingDepthAllocatesNothing(t *testing.T) {
	p := newTestPipeline(t)
	in := cornerInputs(t, 32, 24, texture.FormatRGBA16Float, 1)
	in.SceneDepth = nil
	before := in.SceneColor.Texture.Clone()

	_, report := p.Process(in)
	if report.Bypass != BypassMissingDepth {
		t.Errorf("Bypass = %v, want MissingDepth", report.Bypass)
	}
	if len(report.Allocations) != 0 || p.Allocator().Stats().Allocations != 0 {
		t.Errorf("bypassed frame allocated %d textures", len(report.Allocations))
	}
	if !texture.Equal(before, in.SceneColor.Texture) {
		t.Error("bypassed frame modified the scene colour")
	}
	if p.HasHistory() {
		t.Error("bypassed frame recorded history")
	}
}

func TestProcessBypassReasons(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name   string
		mutate func(*FrameInputs)
		want   BypassReason
	}{
		{"MissingColor", func(in *FrameInputs) { in.SceneColor.Texture = nil }, BypassMissingColor},
		{"EmptyViewRect", func(in *FrameInputs) { in.SceneColor.ViewRect = image.Rectangle{} }, BypassMissingColor},
		{"ViewRectOutside", func(in *FrameInputs) { in.SceneColor.ViewRect = image.Rect(10, 10, 100, 100) }, BypassMissingColor},
		{"SizeMismatch", func(in *FrameInputs) {
			d, _ := texture.NewScalar(texture.Desc2D("SceneDepth", 8, 8, texture.FormatR32Float))
			in.SceneDepth = d
		}, BypassSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := flatInputs(t, 16, 16, 0)
			tt.mutate(&in)
			if _, r := p.Process(in); r.Bypass != tt.want {
				t.Errorf("Bypass = %v, want %v", r.Bypass, tt.want)
			}
		})
	}
	if n := p.Allocator().Stats().Allocations; n != 0 {
		t.Errorf("allocations = %d, want 0", n)
	}
}

func TestProcessAfterClose(t *testing.T) {
	p, err := New(WithWorkers(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := p.Close(); !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("second Close() = %v, want ErrPipelineClosed", err)
	}
	if _, r := p.Process(flatInputs(t, 8, 8, 0)); r.Bypass != BypassClosed {
		t.Errorf("Bypass = %v, want Closed", r.Bypass)
	}
}

// =============================================================================
// History
// =============================================================================

func TestProcessHistoryWeights(t *testing.T) {
	p := newTestPipeline(t, WithHistoryWeight(0.9))

	_, r := p.Process(flatInputs(t, 32, 16, 0))
	if r.HistoryWeight != 0 || !r.HistoryReset || r.HistoryResetReason != "FirstFrame" {
		t.Errorf("first frame: weight=%v reset=%v (%s)", r.HistoryWeight, r.HistoryReset, r.HistoryResetReason)
	}
	if !p.HasHistory() {
		t.Error("no history after the first frame")
	}

	_, r = p.Process(flatInputs(t, 32, 16, 1))
	if r.HistoryWeight != 0.9 || r.HistoryReset {
		t.Errorf("second frame: weight=%v reset=%v, want 0.9 false", r.HistoryWeight, r.HistoryReset)
	}

	_, r = p.Process(flatInputs(t, 24, 16, 2))
	if r.HistoryWeight != 0 || r.HistoryResetReason != "Resize" {
		t.Errorf("after resize: weight=%v reason=%s, want 0 Resize", r.HistoryWeight, r.HistoryResetReason)
	}
}

func TestProcessResizeReallocates(t *testing.T) {
	p := newTestPipeline(t, WithWorkers(0))

	_, r := p.Process(flatInputs(t, 1920, 1080, 0))
	if !r.Processed() {
		t.Fatalf("frame bypassed: %v", r.Bypass)
	}
	_, r = p.Process(flatInputs(t, 1280, 720, 1))
	if !r.Processed() {
		t.Fatalf("frame bypassed: %v", r.Bypass)
	}

	if r.HistoryWeight != 0 {
		t.Errorf("history weight after resize = %v, want 0", r.HistoryWeight)
	}
	if len(r.Allocations) == 0 {
		t.Fatal("resized frame allocated nothing")
	}
	for _, a := range r.Allocations {
		if a.Width != 1280 || a.Height != 720 {
			t.Errorf("%s allocated at %dx%d, want 1280x720", a.Label, a.Width, a.Height)
		}
	}
	if r.ViewSize != [2]int{1280, 720} {
		t.Errorf("ViewSize = %v", r.ViewSize)
	}
	// Only the history outlives the frame.
	if st := p.Allocator().Stats(); st.LiveTextures != 1 {
		t.Errorf("live textures = %d, want 1", st.LiveTextures)
	}
}

// =============================================================================
// Results
// =============================================================================

func TestProcessFlatSceneIsZero(t *testing.T) {
	p := newTestPipeline(t)
	for frame := range uint64(4) {
		in := flatInputs(t, 40, 24, frame)
		before := in.SceneColor.Texture.Clone()
		_, r := p.Process(in)
		if !r.Processed() {
			t.Fatalf("frame %d bypassed: %v", frame, r.Bypass)
		}
		if r.Hits != 0 {
			t.Errorf("frame %d: hits = %d, want 0", frame, r.Hits)
		}
		if !texture.Equal(before, in.SceneColor.Texture) {
			t.Fatalf("frame %d: far-plane scene gained lighting", frame)
		}
	}

	// The history is zero too.
	p.Settings().SetDebugMode(DebugModeHistory)
	in := flatInputs(t, 40, 24, 4)
	p.Process(in)
	for y := range 24 {
		for x := range 40 {
			if v := in.SceneColor.Texture.Load(x, y); v[0] != 0 || v[1] != 0 || v[2] != 0 {
				t.Fatalf("history (%d,%d) = %v, want zero", x, y, v)
			}
		}
	}
}

func TestProcessKeepsSceneFormatPrecision(t *testing.T) {
	// Values a half float cannot hold exactly must survive a frame that
	// adds no light, whatever the history format.
	c := [4]float32{0.1234567, 0.7654321, 3.3333333, 1}
	for _, hist := range []texture.Format{texture.FormatRGBA16Float, texture.FormatRGBA32Float} {
		t.Run(hist.String(), func(t *testing.T) {
			p := newTestPipeline(t, WithHistoryFormat(hist))
			in := flatInputs(t, 24, 16, 0)
			color := texture.MustRGBA(texture.Desc2D("SceneColor", 24, 16, texture.FormatRGBA32Float))
			color.Fill(c)
			in.SceneColor.Texture = color
			before := color.Clone()

			_, r := p.Process(in)
			if !r.Processed() {
				t.Fatalf("frame bypassed: %v", r.Bypass)
			}
			if r.Hits != 0 {
				t.Fatalf("hits = %d, want 0", r.Hits)
			}
			if !texture.Equal(before, color) {
				t.Errorf("texel (0,0) = %v, want %v", color.Load(0, 0), c)
			}
			for _, a := range r.Allocations {
				if a.Label == "SSGI.Composite" && a.Format != texture.FormatRGBA32Float {
					t.Errorf("composite target format = %v, want RGBA32Float", a.Format)
				}
			}
		})
	}
}

func TestProcessAddsLighting(t *testing.T) {
	p := newTestPipeline(t)
	in := cornerInputs(t, 64, 48, texture.FormatRGBA32Float, 0)
	before := in.SceneColor.Texture.Clone()

	_, r := p.Process(in)
	if r.Hits == 0 {
		t.Fatal("no ray hit anything")
	}
	brighter := false
	for y := range 48 {
		for x := range 64 {
			a, b := before.Load(x, y), in.SceneColor.Texture.Load(x, y)
			for c := range 3 {
				if b[c] < a[c] {
					t.Fatalf("(%d,%d) got darker: %v -> %v", x, y, a, b)
				}
				if b[c] > a[c] {
					brighter = true
				}
			}
			if math.IsNaN(float64(b[0])) {
				t.Fatalf("(%d,%d) is NaN", x, y)
			}
		}
	}
	if !brighter {
		t.Error("additive composite added no light")
	}

	want := []string{"HZB", "SSGI.Trace", "SSGI.Denoise", "SSGI.Temporal", "SSGI.Composite"}
	got := passNames(r)
	if len(got) != len(want) {
		t.Fatalf("passes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("passes = %v, want %v", got, want)
		}
	}
	if r.Passes[1].Groups != [2]int{8, 6} {
		t.Errorf("trace groups = %v, want [8 6]", r.Passes[1].Groups)
	}
}

// referenceTrace runs the trace pass alone on in with the default
// parameters and returns its result.
func referenceTrace(t *testing.T, in FrameInputs) *texture.RGBA {
	t.Helper()
	d := parallel.NewDispatcher(1)
	defer d.Close()
	alloc := texture.NewAllocator(0)
	defer alloc.Close()
	scope := alloc.Begin("reference")
	defer scope.End()

	pyr, err := hiz.Build(d, scope, in.SceneDepth, hiz.Reversed)
	if err != nil {
		t.Fatal(err)
	}
	f := viewframe.Resolve(in.SceneColor.ViewRect, in.SceneColor.Texture.Size(), in.InvViewProj, in.ViewProj)
	out := texture.MustRGBA(texture.Desc2D("trace", f.Width(), f.Height(), texture.FormatRGBA32Float))
	p := trace.DefaultParams(pyr.Levels())
	p.FrameIndex = trace.DitherIndex(in.FrameNumber)
	if _, err := trace.Trace(d, trace.Inputs{
		Pyramid: pyr,
		Color:   in.SceneColor,
		Depth:   in.SceneDepth,
		Normal:  in.Normal,
		Frame:   f,
	}, trace.Outputs{Result: out}, p); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestProcessRawTraceDebugMode(t *testing.T) {
	const w, h = 48, 32
	opts := []Option{WithHistoryFormat(texture.FormatRGBA32Float), WithDenoiseRadius(2)}

	// Run two frames per mode so the second one blends a valid history
	// and the raw, filtered and accumulated buffers all differ.
	run := func(mode DebugMode) (FrameInputs, *texture.RGBA, FrameReport) {
		p := newTestPipeline(t, opts...)
		p.Settings().SetDebugMode(mode)
		p.Process(cornerInputs(t, w, h, texture.FormatRGBA32Float, 0))
		in := cornerInputs(t, w, h, texture.FormatRGBA32Float, 1)
		scene := in.SceneColor.Texture.Clone()
		_, r := p.Process(in)
		if r.HistoryWeight == 0 {
			t.Fatalf("%v: second frame has no history", mode)
		}
		return in, scene, r
	}

	rawIn, scene, r := run(DebugModeRawTrace)
	if r.DebugMode != DebugModeRawTrace {
		t.Errorf("report debug mode = %v", r.DebugMode)
	}
	finalIn, _, _ := run(DebugModeFinal)
	histIn, _, _ := run(DebugModeHistory)

	want := referenceTrace(t, cornerInputs(t, w, h, texture.FormatRGBA32Float, 1))
	raw := rawIn.SceneColor.Texture
	for y := range h {
		for x := range w {
			g, tr, s := raw.Load(x, y), want.Load(x, y), scene.Load(x, y)
			if g[0] != tr[0] || g[1] != tr[1] || g[2] != tr[2] {
				t.Fatalf("(%d,%d) raw trace view = %v, want trace %v", x, y, g, tr)
			}
			if g[3] != s[3] {
				t.Fatalf("(%d,%d) alpha changed: %v -> %v", x, y, s[3], g[3])
			}
		}
	}

	if texture.Equal(raw, finalIn.SceneColor.Texture) {
		t.Error("raw trace view equals the final composite")
	}
	if texture.Equal(raw, histIn.SceneColor.Texture) {
		t.Error("raw trace view equals the history view")
	}
}

func TestProcessDiagnosticModesAllocateDebugTarget(t *testing.T) {
	tests := []struct {
		mode  DebugMode
		label string
	}{
		{DebugModeIterations, "SSGI.Debug"},
		{DebugModeHitUV, "SSGI.Debug"},
		{DebugModeRayDirection, "SSGI.Debug"},
		{DebugModeDepthPyramid, "SSGI.Visualize"},
		{DebugModeWorldPosition, "SSGI.Visualize"},
		{DebugModeRayStart, "SSGI.Visualize"},
		{DebugModeDepthCheck, "SSGI.Visualize"},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			p := newTestPipeline(t)
			p.Settings().SetDebugMode(tt.mode)
			_, r := p.Process(cornerInputs(t, 32, 24, texture.FormatRGBA16Float, 0))
			found := false
			for _, a := range r.Allocations {
				if a.Label == tt.label {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s allocation in %v", tt.label, r.Allocations)
			}
		})
	}
}

func TestProcessDitherIndex(t *testing.T) {
	tests := []struct {
		frame uint64
		want  uint32
	}{
		{0, 0},
		{5, 5},
		{1024, 0},
		{1029, 5},
		{123456789, 123456789 % 1024},
	}
	p := newTestPipeline(t)
	for _, tt := range tests {
		_, r := p.Process(flatInputs(t, 8, 8, tt.frame))
		if r.DitherIndex != tt.want {
			t.Errorf("frame %d: DitherIndex = %d, want %d", tt.frame, r.DitherIndex, tt.want)
		}
	}

	// Frames 1024 apart trace identically.
	run := func(frame uint64) *texture.RGBA {
		p := newTestPipeline(t)
		p.Settings().SetDebugMode(DebugModeRawTrace)
		in := cornerInputs(t, 32, 24, texture.FormatRGBA16Float, frame)
		p.Process(in)
		return in.SceneColor.Texture
	}
	if !texture.Equal(run(5), run(1029)) {
		t.Error("frames 5 and 1029 traced differently")
	}
}

func TestProcessPassOrder(t *testing.T) {
	p := newTestPipeline(t)
	p.Settings().SetPassOrder(TemporalThenDenoise)
	_, r := p.Process(cornerInputs(t, 32, 24, texture.FormatRGBA16Float, 0))

	names := passNames(r)
	ti, di := -1, -1
	for i, n := range names {
		switch n {
		case "SSGI.Temporal":
			ti = i
		case "SSGI.Denoise":
			di = i
		}
	}
	if ti < 0 || di < 0 || ti > di {
		t.Errorf("passes = %v, want temporal before denoise", names)
	}
	if r.PassOrder != TemporalThenDenoise {
		t.Errorf("report pass order = %v", r.PassOrder)
	}
}

func TestProcessSubViewport(t *testing.T) {
	p := newTestPipeline(t)
	f, err := synth.CornerScene().Render(synth.RenderOptions{
		Width: 64, Height: 48, ViewRect: image.Rect(8, 8, 56, 40), Camera: synth.DefaultCamera(),
	})
	if err != nil {
		t.Fatal(err)
	}
	in := inputsFrom(f, 0)
	before := f.Color.Clone()

	_, r := p.Process(in)
	if r.ViewSize != [2]int{48, 32} {
		t.Errorf("ViewSize = %v, want [48 32]", r.ViewSize)
	}
	for y := range 48 {
		for x := range 64 {
			if image.Pt(x, y).In(in.SceneColor.ViewRect) {
				continue
			}
			if f.Color.Load(x, y) != before.Load(x, y) {
				t.Fatalf("(%d,%d) outside the view rect was modified", x, y)
			}
		}
	}
}

func TestProcessConcurrentSettings(t *testing.T) {
	p := newTestPipeline(t)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			p.Settings().SetDebugMode(DebugMode(i % 12))
			p.Settings().SetEnabled(i%3 != 0)
			p.Settings().SetPassOrder(PassOrder(i % 2))
		}
	}()
	for frame := range uint64(10) {
		p.Process(flatInputs(t, 16, 16, frame))
	}
	wg.Wait()
}

func BenchmarkProcess_720p(b *testing.B) {
	p := newTestPipeline(b, WithWorkers(0))
	in := cornerInputs(b, 1280, 720, texture.FormatRGBA16Float, 0)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		in.FrameNumber++
		p.Process(in)
	}
}
