package ssgi

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/ssgi/internal/composite"
	"github.com/gogpu/ssgi/internal/denoise"
	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/temporal"
	"github.com/gogpu/ssgi/internal/trace"
	"github.com/gogpu/ssgi/texture"
)

// DepthConvention is the device depth convention of the host renderer.
type DepthConvention uint8

const (
	// DepthReversed has the near plane at 1 and the far plane at 0.
	DepthReversed DepthConvention = iota

	// DepthStandard has the near plane at 0 and the far plane at 1.
	DepthStandard
)

// String returns the convention name.
func (c DepthConvention) String() string { return c.hiz().String() }

func (c DepthConvention) hiz() hiz.Convention { return hiz.Convention(c) }

// BlendMode is how the final lighting is combined with the scene colour.
type BlendMode uint8

const (
	// BlendAdditive adds the lighting to the scene colour.
	BlendAdditive BlendMode = iota

	// BlendModulate scales the scene colour by one plus the lighting.
	BlendModulate
)

// String returns the blend mode name.
func (b BlendMode) String() string { return composite.Blend(b).String() }

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := ssgi.New(
//	    ssgi.WithIntensity(4),
//	    ssgi.WithDepthConvention(ssgi.DepthStandard),
//	)
type Option func(*config)

// config holds the construction-time settings of a Pipeline.
type config struct {
	workers        int
	maxIterations  int
	thickness      float32
	rayLength      float32
	intensity      float32
	historyWeight  float32
	historyClamp   bool
	denoiseRadius  int
	denoiseSharp   float32
	convention     DepthConvention
	blend          BlendMode
	format         texture.Format
	allocator      *texture.Allocator
	device         gpucontext.DeviceProvider
	initialEnabled bool
}

// defaultConfig returns the default pipeline configuration.
func defaultConfig() config {
	return config{
		workers:        0,
		maxIterations:  trace.DefaultMaxIterations,
		thickness:      trace.DefaultThickness,
		rayLength:      trace.DefaultRayLength,
		intensity:      trace.DefaultIntensity,
		historyWeight:  temporal.DefaultWeight,
		historyClamp:   true,
		denoiseRadius:  denoise.DefaultRadius,
		denoiseSharp:   denoise.DefaultSharpness,
		convention:     DepthReversed,
		blend:          BlendAdditive,
		format:         texture.FormatRGBA16Float,
		initialEnabled: true,
	}
}

// validate checks every value and reports the first that is out of range.
func (c *config) validate() error {
	switch {
	case c.workers < 0:
		return fmt.Errorf("%w: workers %d < 0", ErrInvalidOption, c.workers)
	case c.maxIterations <= 0:
		return fmt.Errorf("%w: max iterations %d <= 0", ErrInvalidOption, c.maxIterations)
	case !(c.thickness > 0):
		return fmt.Errorf("%w: thickness %v <= 0", ErrInvalidOption, c.thickness)
	case !(c.rayLength > 0):
		return fmt.Errorf("%w: ray length %v <= 0", ErrInvalidOption, c.rayLength)
	case !(c.intensity >= 0):
		return fmt.Errorf("%w: intensity %v < 0", ErrInvalidOption, c.intensity)
	case !(c.historyWeight >= 0 && c.historyWeight < 1):
		return fmt.Errorf("%w: history weight %v outside [0, 1)", ErrInvalidOption, c.historyWeight)
	case c.denoiseRadius < 0 || c.denoiseRadius > denoise.MaxRadius:
		return fmt.Errorf("%w: denoise radius %d outside [0, %d]", ErrInvalidOption, c.denoiseRadius, denoise.MaxRadius)
	case !(c.denoiseSharp >= 0):
		return fmt.Errorf("%w: denoise sharpness %v < 0", ErrInvalidOption, c.denoiseSharp)
	case c.convention > DepthStandard:
		return fmt.Errorf("%w: depth convention %d", ErrInvalidOption, c.convention)
	case c.blend > BlendModulate:
		return fmt.Errorf("%w: blend mode %d", ErrInvalidOption, c.blend)
	case c.format != texture.FormatRGBA16Float && c.format != texture.FormatRGBA32Float:
		return fmt.Errorf("%w: history format %s is not an RGBA float format", ErrInvalidOption, c.format)
	}
	return nil
}

// WithWorkers sets the number of goroutines the passes run on.
// Zero uses GOMAXPROCS; one runs every pass on the calling goroutine.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithMaxIterations sets the number of cell steps each ray may take.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIterations = n }
}

// WithThickness sets the world-space depth assumed behind every surface.
func WithThickness(v float32) Option {
	return func(c *config) { c.thickness = v }
}

// WithRayLength sets the world-space length of every ray.
func WithRayLength(v float32) Option {
	return func(c *config) { c.rayLength = v }
}

// WithIntensity scales the traced radiance.
func WithIntensity(v float32) Option {
	return func(c *config) { c.intensity = v }
}

// WithHistoryWeight sets the blend weight of a valid history, in [0, 1).
func WithHistoryWeight(v float32) Option {
	return func(c *config) { c.historyWeight = v }
}

// WithHistoryClamp enables or disables clamping history to the current
// neighbourhood. Enabled by default.
func WithHistoryClamp(enabled bool) Option {
	return func(c *config) { c.historyClamp = enabled }
}

// WithDenoiseRadius sets the half size of the spatial filter. Zero
// disables spatial filtering.
func WithDenoiseRadius(r int) Option {
	return func(c *config) { c.denoiseRadius = r }
}

// WithDenoiseSharpness sets how strongly the spatial filter stops at
// depth discontinuities.
func WithDenoiseSharpness(v float32) Option {
	return func(c *config) { c.denoiseSharp = v }
}

// WithDepthConvention sets the depth convention of the scene depth.
func WithDepthConvention(dc DepthConvention) Option {
	return func(c *config) { c.convention = dc }
}

// WithBlendMode sets how the final lighting is combined with the scene.
func WithBlendMode(b BlendMode) Option {
	return func(c *config) { c.blend = b }
}

// WithHistoryFormat sets the format of the intermediate and history
// targets. RGBA16Float (the default) or RGBA32Float.
func WithHistoryFormat(f texture.Format) Option {
	return func(c *config) { c.format = f }
}

// WithAllocator makes the pipeline allocate its textures from a. The
// allocator is shared, not owned: Close leaves it open.
func WithAllocator(a *texture.Allocator) Option {
	return func(c *config) { c.allocator = a }
}

// WithEnabled sets the initial value of the runtime toggle.
func WithEnabled(enabled bool) Option {
	return func(c *config) { c.initialEnabled = enabled }
}

// WithDevice runs the passes as compute kernels on the host's wgpu device.
// The device stays owned by the host. A provider without a hardware wgpu
// device, or a kernel that fails at run time, leaves the pipeline on the
// CPU passes; the switch is logged at Warn level.
func WithDevice(provider gpucontext.DeviceProvider) Option {
	return func(c *config) { c.device = provider }
}
