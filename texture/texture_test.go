package texture

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
)

// =============================================================================
// Descriptor Tests
// =============================================================================

func TestFullMipCount(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 3, 2},
		{8, 8, 4},
		{1920, 1080, 11},
		{1280, 720, 11},
		{1023, 4, 10},
		{1024, 4, 11},
		{0, 0, 1},
	}

	for _, tt := range tests {
		if got := FullMipCount(tt.w, tt.h); got != tt.want {
			t.Errorf("FullMipCount(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestMipSize(t *testing.T) {
	w, h := 1920, 1080
	for level := 1; level < FullMipCount(1920, 1080); level++ {
		pw, ph := MipSize(1920, 1080, level-1)
		w, h = MipSize(1920, 1080, level)
		if w != max(1, pw/2) || h != max(1, ph/2) {
			t.Errorf("level %d = %dx%d, want %dx%d", level, w, h, max(1, pw/2), max(1, ph/2))
		}
	}
	if w != 1 || h != 1 {
		t.Errorf("last level = %dx%d, want 1x1", w, h)
	}

	if w, h := MipSize(7, 3, 2); w != 1 || h != 1 {
		t.Errorf("MipSize(7, 3, 2) = %dx%d, want 1x1", w, h)
	}
}

func TestDescValidate(t *testing.T) {
	tests := []struct {
		name string
		desc Desc
		want error
	}{
		{"valid", Desc2D("a", 4, 4, FormatRGBA16Float), nil},
		{"zero width", Desc2D("a", 0, 4, FormatRGBA16Float), ErrInvalidDimensions},
		{"negative height", Desc2D("a", 4, -1, FormatR32Float), ErrInvalidDimensions},
		{"unknown format", Desc2D("a", 4, 4, Format(42)), ErrUnknownFormat},
		{"too many mips", Desc{Label: "a", Width: 4, Height: 4, Format: FormatR32Float, MipLevels: 4}, ErrInvalidMipCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDescGPUMapping(t *testing.T) {
	d := Desc2D("hzb", 640, 360, FormatR32Float)
	ext := d.Extent()
	if ext.Width != 640 || ext.Height != 360 || ext.DepthOrArrayLayers != 1 {
		t.Errorf("Extent() = %+v", ext)
	}
	if FormatR32Float.GPUFormat() != gputypes.TextureFormatR32Float {
		t.Error("R32Float maps to wrong GPU format")
	}
	if FormatRGBA16Float.GPUFormat() != gputypes.TextureFormatRGBA16Float {
		t.Error("RGBA16Float maps to wrong GPU format")
	}
	if d.Usage&gputypes.TextureUsageStorageBinding == 0 {
		t.Error("Desc2D should request storage usage")
	}
}

func TestDescSizeBytes(t *testing.T) {
	d := Desc{Label: "p", Width: 4, Height: 2, Format: FormatR32Float, MipLevels: 3}
	// 4x2 + 2x1 + 1x1 texels, 4 bytes each
	if got := d.SizeBytes(); got != (8+2+1)*4 {
		t.Errorf("SizeBytes() = %d, want %d", got, (8+2+1)*4)
	}
}

// =============================================================================
// Texture Tests
// =============================================================================

func TestScalarLoadClamps(t *testing.T) {
	s, err := NewScalar(Desc{Label: "d", Width: 3, Height: 2, Format: FormatR32Float, MipLevels: 2})
	if err != nil {
		t.Fatal(err)
	}
	s.Store(0, 2, 1, 7)
	if got := s.Load(0, 10, 10); got != 7 {
		t.Errorf("Load(0, 10, 10) = %v, want 7 (clamped)", got)
	}
	s.Store(0, 5, 5, 9) // dropped
	if w, h := s.LevelSize(1); w != 1 || h != 1 {
		t.Errorf("LevelSize(1) = %dx%d, want 1x1", w, h)
	}
}

func TestScalarRejectsRGBAFormat(t *testing.T) {
	_, err := NewScalar(Desc2D("x", 2, 2, FormatRGBA32Float))
	if !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("NewScalar(RGBA32Float) error = %v, want ErrFormatMismatch", err)
	}
}

func TestRGBAHalfStorageRounds(t *testing.T) {
	tex := MustRGBA(Desc2D("h", 2, 2, FormatRGBA16Float))
	tex.Store(0, 0, [4]float32{0.1, 0.5, 1, 2048.5})
	got := tex.Load(0, 0)

	if got[1] != 0.5 || got[2] != 1 {
		t.Errorf("exact halves changed: %v", got)
	}
	if got[0] == 0.1 {
		t.Error("0.1 should be rounded by half storage")
	}
	if got[3] != 2048 {
		t.Errorf("2048.5 rounds to %v in half, want 2048", got[3])
	}
}

func TestRGBASampleBilinear(t *testing.T) {
	tex := MustRGBA(Desc2D("s", 2, 1, FormatRGBA32Float))
	tex.Store(0, 0, [4]float32{0, 0, 0, 0})
	tex.Store(1, 0, [4]float32{1, 2, 4, 8})

	got := tex.Sample(1.0, 0.5) // halfway between texel centers
	want := [4]float32{0.5, 1, 2, 4}
	if got != want {
		t.Errorf("Sample(1, 0.5) = %v, want %v", got, want)
	}

	edge := tex.Sample(-5, 0.5)
	if edge != [4]float32{} {
		t.Errorf("Sample off the left edge = %v, want clamp to texel 0", edge)
	}
}

func TestCopyRectAndEqual(t *testing.T) {
	src := MustRGBA(Desc2D("src", 2, 2, FormatRGBA32Float))
	src.Fill([4]float32{1, 1, 1, 1})
	dst := MustRGBA(Desc2D("dst", 4, 4, FormatRGBA32Float))

	CopyRect(dst, image.Pt(1, 1), src, image.Rect(0, 0, 2, 2))

	if dst.Load(0, 0) != ([4]float32{}) {
		t.Error("texel outside the copied rect changed")
	}
	if dst.Load(2, 2) != ([4]float32{1, 1, 1, 1}) {
		t.Error("copied texel missing")
	}

	c := dst.Clone()
	if !Equal(c, dst) {
		t.Error("Clone() should be Equal")
	}
	c.Store(3, 3, [4]float32{0, 0, 0, 1})
	if Equal(c, dst) {
		t.Error("modified clone should differ")
	}
}

func TestSliceIsValid(t *testing.T) {
	tex := MustRGBA(Desc2D("c", 8, 8, FormatRGBA16Float))
	tests := []struct {
		name  string
		slice Slice
		want  bool
	}{
		{"full", FullSlice(tex), true},
		{"inner", Slice{Texture: tex, ViewRect: image.Rect(2, 2, 6, 6)}, true},
		{"outside", Slice{Texture: tex, ViewRect: image.Rect(4, 4, 10, 10)}, false},
		{"empty", Slice{Texture: tex}, false},
		{"nil texture", Slice{ViewRect: image.Rect(0, 0, 1, 1)}, false},
	}
	for _, tt := range tests {
		if got := tt.slice.IsValid(); got != tt.want {
			t.Errorf("%s: IsValid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// =============================================================================
// Allocator Tests
// =============================================================================

func TestScopeReleasesAtEnd(t *testing.T) {
	a := NewAllocator(0)
	s := a.Begin("frame")

	if _, err := s.RGBA(Desc2D("a", 16, 16, FormatRGBA16Float)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Scalar(Desc{Label: "hzb", Width: 16, Height: 16, Format: FormatR32Float, MipLevels: 5}); err != nil {
		t.Fatal(err)
	}

	if st := a.Stats(); st.LiveTextures != 2 {
		t.Errorf("LiveTextures = %d, want 2", st.LiveTextures)
	}

	s.End()
	st := a.Stats()
	if st.LiveTextures != 0 || st.LiveBytes != 0 {
		t.Errorf("after End: %s", st)
	}
	if st.PooledTextures != 2 {
		t.Errorf("PooledTextures = %d, want 2", st.PooledTextures)
	}
	if len(s.Allocations()) != 2 {
		t.Errorf("Allocations() = %d entries, want 2", len(s.Allocations()))
	}
}

func TestScopeReusesClearedTextures(t *testing.T) {
	a := NewAllocator(0)
	s1 := a.Begin("f1")
	t1, _ := s1.RGBA(Desc2D("x", 4, 4, FormatRGBA32Float))
	t1.Fill([4]float32{5, 5, 5, 5})
	s1.End()

	s2 := a.Begin("f2")
	t2, _ := s2.RGBA(Desc2D("y", 4, 4, FormatRGBA32Float))
	defer s2.End()

	if t1 != t2 {
		t.Fatal("expected the pooled texture to be reused")
	}
	if t2.Load(1, 1) != ([4]float32{}) {
		t.Error("reused texture not cleared")
	}
	if t2.Desc().Label != "y" {
		t.Errorf("label = %q, want y", t2.Desc().Label)
	}
	if st := a.Stats(); st.Reuses != 1 {
		t.Errorf("Reuses = %d, want 1", st.Reuses)
	}
}

func TestScopeExtractAndAdopt(t *testing.T) {
	a := NewAllocator(0)
	s1 := a.Begin("f1")
	hist, _ := s1.RGBA(Desc2D("history", 4, 4, FormatRGBA16Float))
	s1.Extract(hist)
	s1.End()

	if st := a.Stats(); st.LiveTextures != 1 {
		t.Fatalf("extracted texture should stay live, got %s", st)
	}

	s2 := a.Begin("f2")
	s2.Adopt(hist)
	s2.End()
	if st := a.Stats(); st.LiveTextures != 0 {
		t.Errorf("adopted texture should be released at End, got %s", st)
	}
}

func TestAllocatorClosed(t *testing.T) {
	a := NewAllocator(1)
	a.Close()
	_, err := a.Begin("x").RGBA(Desc2D("x", 1, 1, FormatRGBA16Float))
	if !errors.Is(err, ErrAllocatorClosed) {
		t.Errorf("err = %v, want ErrAllocatorClosed", err)
	}
}
