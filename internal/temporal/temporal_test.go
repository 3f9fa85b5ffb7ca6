package temporal

import (
	"image"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/texture"
)

// =============================================================================
// History state machine
// =============================================================================

func rgba(t *testing.T, s *texture.Scope, w, h int) *texture.RGBA {
	t.Helper()
	tex, err := s.RGBA(texture.Desc2D("SSGI.Temporal", w, h, texture.FormatRGBA16Float))
	if err != nil {
		t.Fatal(err)
	}
	return tex
}

func TestHistoryFirstFrame(t *testing.T) {
	alloc := texture.NewAllocator(0)
	defer alloc.Close()
	h := NewHistory(texture.FormatRGBA16Float, DefaultWeight)

	s := alloc.Begin("frame0")
	hf, err := h.Prepare(s, image.Pt(32, 16))
	if err != nil {
		t.Fatal(err)
	}
	if hf.Weight != 0 || hf.Reset != ResetFirstFrame {
		t.Errorf("first frame: weight=%v reset=%v, want 0 FirstFrame", hf.Weight, hf.Reset)
	}
	if hf.Texture.Size() != image.Pt(32, 16) {
		t.Errorf("placeholder size = %v", hf.Texture.Size())
	}
	if v := hf.Texture.Load(3, 3); v != [4]float32{} {
		t.Errorf("placeholder not zero: %v", v)
	}

	out := rgba(t, s, 32, 16)
	h.Commit(s, out)
	s.End()

	if h.State() != Valid || h.Extent() != image.Pt(32, 16) {
		t.Errorf("after commit: state=%v extent=%v", h.State(), h.Extent())
	}
	if st := alloc.Stats(); st.LiveTextures != 1 {
		t.Errorf("live textures = %d, want 1 (the history)", st.LiveTextures)
	}
}

func TestHistorySteadyState(t *testing.T) {
	alloc := texture.NewAllocator(0)
	defer alloc.Close()
	h := NewHistory(texture.FormatRGBA16Float, 0.8)

	var prev *texture.RGBA
	for frame := range 4 {
		s := alloc.Begin("frame")
		hf, err := h.Prepare(s, image.Pt(8, 8))
		if err != nil {
			t.Fatal(err)
		}
		if frame > 0 {
			if hf.Weight != 0.8 || hf.Reset != ResetNone {
				t.Errorf("frame %d: weight=%v reset=%v", frame, hf.Weight, hf.Reset)
			}
			if hf.Texture != prev {
				t.Errorf("frame %d: history is not last frame's result", frame)
			}
		}
		out := rgba(t, s, 8, 8)
		h.Commit(s, out)
		s.End()
		prev = out
	}
	if st := alloc.Stats(); st.LiveTextures != 1 {
		t.Errorf("live textures = %d, want 1", st.LiveTextures)
	}
}

func TestHistoryResize(t *testing.T) {
	alloc := texture.NewAllocator(0)
	defer alloc.Close()
	h := NewHistory(texture.FormatRGBA16Float, DefaultWeight)

	s := alloc.Begin("1080p")
	if _, err := h.Prepare(s, image.Pt(1920, 1080)); err != nil {
		t.Fatal(err)
	}
	old := rgba(t, s, 1920, 1080)
	h.Commit(s, old)
	s.End()

	s = alloc.Begin("720p")
	hf, err := h.Prepare(s, image.Pt(1280, 720))
	if err != nil {
		t.Fatal(err)
	}
	if hf.Weight != 0 || hf.Reset != ResetResize {
		t.Errorf("after resize: weight=%v reset=%v, want 0 Resize", hf.Weight, hf.Reset)
	}
	if hf.Texture == old || hf.Texture.Size() != image.Pt(1280, 720) {
		t.Errorf("placeholder = %v, want a fresh 1280x720 texture", hf.Texture.Size())
	}
	if h.State() != NoHistory {
		t.Errorf("state = %v, want NoHistory", h.State())
	}
	for _, a := range s.Allocations() {
		if a.Width != 1280 || a.Height != 720 {
			t.Errorf("allocation %v at old size", a)
		}
	}

	// The old history stays alive until the frame ends.
	if st := alloc.Stats(); st.LiveTextures != 2 {
		t.Errorf("live textures during frame = %d, want 2", st.LiveTextures)
	}
	h.Commit(s, rgba(t, s, 1280, 720))
	s.End()
	if st := alloc.Stats(); st.LiveTextures != 1 {
		t.Errorf("live textures after frame = %d, want 1", st.LiveTextures)
	}
}

func TestHistoryRelease(t *testing.T) {
	alloc := texture.NewAllocator(0)
	defer alloc.Close()
	h := NewHistory(texture.FormatRGBA32Float, DefaultWeight)

	s := alloc.Begin("frame")
	h.Prepare(s, image.Pt(4, 4))
	h.Commit(s, rgba(t, s, 4, 4))
	s.End()

	h.Release(alloc)
	if h.State() != NoHistory || h.Extent() != (image.Point{}) {
		t.Errorf("after release: state=%v extent=%v", h.State(), h.Extent())
	}
	if st := alloc.Stats(); st.LiveTextures != 0 {
		t.Errorf("live textures = %d, want 0", st.LiveTextures)
	}

	s = alloc.Begin("again")
	defer s.End()
	hf, _ := h.Prepare(s, image.Pt(4, 4))
	if hf.Reset != ResetFirstFrame {
		t.Errorf("reset after release = %v, want FirstFrame", hf.Reset)
	}
}

func TestStateStrings(t *testing.T) {
	if NoHistory.String() != "NoHistory" || Valid.String() != "Valid" {
		t.Error("unexpected state names")
	}
	if ResetResize.String() != "Resize" || Reset(9).String() != "Reset(9)" {
		t.Error("unexpected reset names")
	}
}

// =============================================================================
// Accumulate
// =============================================================================

func testFrame(w, h int) viewframe.Frame {
	return viewframe.Resolve(image.Rect(0, 0, w, h), image.Pt(w, h), mgl32.Ident4(), mgl32.Ident4())
}

func filled(w, h int, v [4]float32) *texture.RGBA {
	t := texture.MustRGBA(texture.Desc2D("t", w, h, texture.FormatRGBA32Float))
	t.Fill(v)
	return t
}

func TestAccumulateWeightZeroIsCurrent(t *testing.T) {
	cur := texture.MustRGBA(texture.Desc2D("cur", 16, 8, texture.FormatRGBA32Float))
	for y := range 8 {
		for x := range 16 {
			cur.Store(x, y, [4]float32{float32(x) * 0.1, float32(y) * 0.3, 0.7, 1})
		}
	}
	dst := texture.MustRGBA(texture.Desc2D("dst", 16, 8, texture.FormatRGBA32Float))
	d := parallel.NewDispatcher(2)
	defer d.Close()

	_, err := Accumulate(d, Inputs{
		Current: cur,
		History: filled(16, 8, [4]float32{100, 100, 100, 100}),
		Frame:   testFrame(16, 8),
	}, dst, Params{Weight: 0, Clamp: true})
	if err != nil {
		t.Fatal(err)
	}
	if !texture.Equal(cur, dst) {
		t.Error("weight 0 must reproduce the current frame exactly")
	}
}

func TestAccumulateBlend(t *testing.T) {
	d := parallel.NewDispatcher(1)
	dst := texture.MustRGBA(texture.Desc2D("dst", 8, 8, texture.FormatRGBA32Float))

	groups, err := Accumulate(d, Inputs{
		Current: filled(8, 8, [4]float32{1, 1, 1, 1}),
		History: filled(8, 8, [4]float32{0, 0, 0, 0}),
		Frame:   testFrame(8, 8),
	}, dst, Params{Weight: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if groups != [2]int{1, 1} {
		t.Errorf("groups = %v, want [1 1]", groups)
	}
	if v := dst.Load(4, 4); math.Abs(float64(v[0]-0.1)) > 1e-6 {
		t.Errorf("blend = %v, want 0.1", v[0])
	}
}

func TestAccumulateClampRejectsStaleHistory(t *testing.T) {
	d := parallel.NewDispatcher(1)
	dst := texture.MustRGBA(texture.Desc2D("dst", 8, 8, texture.FormatRGBA32Float))
	in := Inputs{
		Current: filled(8, 8, [4]float32{1, 1, 1, 1}),
		History: filled(8, 8, [4]float32{10, 10, 10, 10}),
		Frame:   testFrame(8, 8),
	}
	if _, err := Accumulate(d, in, dst, Params{Weight: 0.9, Clamp: true}); err != nil {
		t.Fatal(err)
	}
	if v := dst.Load(2, 2); v[0] != 1 {
		t.Errorf("clamped blend = %v, want 1", v[0])
	}
	if _, err := Accumulate(d, in, dst, Params{Weight: 0.9}); err != nil {
		t.Fatal(err)
	}
	if v := dst.Load(2, 2); math.Abs(float64(v[0]-9.1)) > 1e-5 {
		t.Errorf("unclamped blend = %v, want 9.1", v[0])
	}
}

func TestAccumulateReprojects(t *testing.T) {
	w, h := 8, 4
	hist := texture.MustRGBA(texture.Desc2D("hist", w, h, texture.FormatRGBA32Float))
	for y := range h {
		for x := range w {
			hist.Store(x, y, [4]float32{float32(x), 0, 0, 1})
		}
	}
	// Everything moved one pixel to the right since last frame.
	vel := filled(w, h, [4]float32{1 / float32(w), 0, 0, 0})
	dst := texture.MustRGBA(texture.Desc2D("dst", w, h, texture.FormatRGBA32Float))
	cur := filled(w, h, [4]float32{-1, 0, 0, 1})

	d := parallel.NewDispatcher(1)
	_, err := Accumulate(d, Inputs{Current: cur, History: hist, Velocity: vel, Frame: testFrame(w, h)},
		dst, Params{Weight: 1})
	if err != nil {
		t.Fatal(err)
	}
	for x := 1; x < w; x++ {
		if v := dst.Load(x, 1)[0]; math.Abs(float64(v-float32(x-1))) > 1e-5 {
			t.Errorf("x=%d: reprojected %v, want %v", x, v, x-1)
		}
	}
}

func TestAccumulateOffscreenKeepsCurrent(t *testing.T) {
	w, h := 8, 8
	vel := filled(w, h, [4]float32{2, 0, 0, 0})
	dst := texture.MustRGBA(texture.Desc2D("dst", w, h, texture.FormatRGBA32Float))
	d := parallel.NewDispatcher(1)

	_, err := Accumulate(d, Inputs{
		Current:  filled(w, h, [4]float32{0.5, 0.5, 0.5, 1}),
		History:  filled(w, h, [4]float32{0, 0, 0, 0}),
		Velocity: vel,
		Frame:    testFrame(w, h),
	}, dst, Params{Weight: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if v := dst.Load(3, 3); v != [4]float32{0.5, 0.5, 0.5, 1} {
		t.Errorf("off-screen history: got %v, want current", v)
	}
}

func TestAccumulateMissingInput(t *testing.T) {
	d := parallel.NewDispatcher(1)
	if _, err := Accumulate(d, Inputs{}, nil, Params{}); err != ErrMissingInput {
		t.Errorf("err = %v, want ErrMissingInput", err)
	}
}
