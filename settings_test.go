package ssgi

import (
	"errors"
	"testing"
)

func TestSettingsDefaults(t *testing.T) {
	var s Settings
	if s.Enabled() {
		t.Error("zero Settings must be disabled")
	}
	if s.DebugMode() != DebugModeFinal || s.PassOrder() != DenoiseThenTemporal {
		t.Errorf("zero Settings: mode=%v order=%v", s.DebugMode(), s.PassOrder())
	}
}

func TestSettingsDebugModeClamps(t *testing.T) {
	tests := []struct {
		set  DebugMode
		want DebugMode
	}{
		{-3, DebugModeFinal},
		{0, DebugModeFinal},
		{1, DebugModeRawTrace},
		{8, DebugModeWorldPosition},
		{9, DebugModeRayStart},
		{10, DebugModeDepthCheck},
		{11, MaxDebugMode},
		{1 << 40, MaxDebugMode},
	}
	var s Settings
	for _, tt := range tests {
		s.SetDebugMode(tt.set)
		if got := s.DebugMode(); got != tt.want {
			t.Errorf("SetDebugMode(%d): DebugMode() = %v, want %v", tt.set, got, tt.want)
		}
	}
}

func TestSettingsUnknownPassOrder(t *testing.T) {
	var s Settings
	s.SetPassOrder(TemporalThenDenoise)
	if s.PassOrder() != TemporalThenDenoise {
		t.Errorf("PassOrder() = %v", s.PassOrder())
	}
	s.SetPassOrder(PassOrder(7))
	if s.PassOrder() != DenoiseThenTemporal {
		t.Errorf("unknown order read as %v, want DenoiseThenTemporal", s.PassOrder())
	}
}

func TestSettingsPassOrderIndependentOfDebugMode(t *testing.T) {
	for _, order := range []PassOrder{DenoiseThenTemporal, TemporalThenDenoise} {
		for m := DebugModeFinal; m <= MaxDebugMode; m++ {
			var s Settings
			s.SetPassOrder(order)
			s.SetDebugMode(m)
			snap := s.snapshot()
			if snap.passOrder != order || snap.debugMode != m {
				t.Errorf("order %v, mode %v: snapshot = {%v %v}", order, m, snap.passOrder, snap.debugMode)
			}
		}
	}
}

func TestSettingsSnapshot(t *testing.T) {
	var s Settings
	s.SetEnabled(true)
	s.SetDebugMode(DebugModeHistory)
	s.SetPassOrder(TemporalThenDenoise)
	snap := s.snapshot()

	s.SetEnabled(false)
	s.SetDebugMode(DebugModeFinal)
	if !snap.enabled || snap.debugMode != DebugModeHistory || snap.passOrder != TemporalThenDenoise {
		t.Errorf("snapshot changed with settings: %+v", snap)
	}
}

func TestParseDebugMode(t *testing.T) {
	tests := []struct {
		in   string
		want DebugMode
	}{
		{"0", DebugModeFinal},
		{"1", DebugModeRawTrace},
		{"42", MaxDebugMode},
		{"-1", DebugModeFinal},
		{"final", DebugModeFinal},
		{"RawTrace", DebugModeRawTrace},
		{"hituv", DebugModeHitUV},
		{"DepthPyramid", DebugModeDepthPyramid},
		{"depthcheck", DebugModeDepthCheck},
		{"9", DebugModeRayStart},
	}
	for _, tt := range tests {
		got, err := ParseDebugMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseDebugMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseDebugMode("bogus"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("ParseDebugMode(bogus) error = %v, want ErrInvalidOption", err)
	}
}

func TestParsePassOrder(t *testing.T) {
	for in, want := range map[string]PassOrder{
		"DenoiseThenTemporal": DenoiseThenTemporal,
		"temporal-first":      TemporalThenDenoise,
		"denoise-first":       DenoiseThenTemporal,
		"temporalthendenoise": TemporalThenDenoise,
	} {
		got, err := ParsePassOrder(in)
		if err != nil || got != want {
			t.Errorf("ParsePassOrder(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePassOrder("sideways"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("ParsePassOrder(sideways) error = %v", err)
	}
}

func TestDebugModeStrings(t *testing.T) {
	want := []string{"Final", "RawTrace", "Denoised", "History", "Iterations",
		"HitUV", "RayDirection", "DepthPyramid", "WorldPosition"}
	for i, w := range want {
		if got := DebugMode(i).String(); got != w {
			t.Errorf("DebugMode(%d) = %q, want %q", i, got, w)
		}
	}
}
