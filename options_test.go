package ssgi

import (
	"errors"
	"testing"

	"github.com/gogpu/ssgi/texture"
)

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig()
	if err := c.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.maxIterations != 64 || c.thickness != 2 || c.rayLength != 100 || c.intensity != 10 {
		t.Errorf("trace defaults = %d %v %v %v", c.maxIterations, c.thickness, c.rayLength, c.intensity)
	}
	if c.historyWeight != 0.9 || !c.historyClamp {
		t.Errorf("history defaults = %v %v", c.historyWeight, c.historyClamp)
	}
	if c.format != texture.FormatRGBA16Float || c.convention != DepthReversed || c.blend != BlendAdditive {
		t.Errorf("format defaults = %v %v %v", c.format, c.convention, c.blend)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"NegativeWorkers", WithWorkers(-1)},
		{"ZeroIterations", WithMaxIterations(0)},
		{"ZeroThickness", WithThickness(0)},
		{"NegativeRayLength", WithRayLength(-5)},
		{"NegativeIntensity", WithIntensity(-1)},
		{"HistoryWeightOne", WithHistoryWeight(1)},
		{"NegativeHistoryWeight", WithHistoryWeight(-0.1)},
		{"DenoiseRadiusTooLarge", WithDenoiseRadius(9)},
		{"NegativeSharpness", WithDenoiseSharpness(-1)},
		{"UnknownConvention", WithDepthConvention(DepthConvention(7))},
		{"UnknownBlend", WithBlendMode(BlendMode(5))},
		{"ScalarHistoryFormat", WithHistoryFormat(texture.FormatR32Float)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opt)
			if !errors.Is(err, ErrInvalidOption) {
				t.Errorf("New() error = %v, want ErrInvalidOption", err)
			}
			if p != nil {
				t.Error("New() returned a pipeline with an error")
			}
		})
	}
}

func TestNewAppliesOptions(t *testing.T) {
	alloc := texture.NewAllocator(2)
	defer alloc.Close()

	p, err := New(
		WithWorkers(1),
		WithMaxIterations(16),
		WithThickness(0.5),
		WithRayLength(10),
		WithIntensity(2),
		WithHistoryWeight(0.5),
		WithHistoryClamp(false),
		WithDenoiseRadius(4),
		WithDenoiseSharpness(3),
		WithDepthConvention(DepthStandard),
		WithBlendMode(BlendModulate),
		WithHistoryFormat(texture.FormatRGBA32Float),
		WithAllocator(alloc),
		WithEnabled(false),
	)
	if err != nil {
		t.Fatal(err)
	}

	c := p.cfg
	if c.maxIterations != 16 || c.thickness != 0.5 || c.rayLength != 10 || c.intensity != 2 ||
		c.historyWeight != 0.5 || c.historyClamp || c.denoiseRadius != 4 || c.denoiseSharp != 3 ||
		c.convention != DepthStandard || c.blend != BlendModulate || c.format != texture.FormatRGBA32Float {
		t.Errorf("options not applied: %+v", c)
	}
	if p.Allocator() != alloc {
		t.Error("WithAllocator not applied")
	}
	if p.Settings().Enabled() {
		t.Error("WithEnabled(false) not applied")
	}

	// A shared allocator outlives the pipeline.
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	s := alloc.Begin("after")
	defer s.End()
	if _, err := s.RGBA(texture.Desc2D("x", 4, 4, texture.FormatRGBA16Float)); err != nil {
		t.Errorf("shared allocator closed with the pipeline: %v", err)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DepthReversed.String(), "Reversed"},
		{DepthStandard.String(), "Standard"},
		{BlendAdditive.String(), "Additive"},
		{BlendModulate.String(), "Modulate"},
		{DenoiseThenTemporal.String(), "DenoiseThenTemporal"},
		{PassOrder(9).String(), "PassOrder(9)"},
		{BypassMissingDepth.String(), "MissingDepth"},
		{BypassReason(99).String(), "BypassReason(99)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
