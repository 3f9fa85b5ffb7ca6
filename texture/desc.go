package texture

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// Texture errors.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("texture: invalid dimensions")

	// ErrUnknownFormat is returned when the format is not recognized.
	ErrUnknownFormat = errors.New("texture: unknown format")

	// ErrInvalidMipCount is returned when the mip count exceeds the full chain.
	ErrInvalidMipCount = errors.New("texture: invalid mip level count")

	// ErrFormatMismatch is returned when a descriptor format does not fit the texture kind.
	ErrFormatMismatch = errors.New("texture: format does not match texture kind")
)

// Usage flags requested for the SSGI targets. Every pass output is written
// by a compute kernel and sampled by the next one.
const (
	// UsageStorage is the usage of textures written by compute passes.
	UsageStorage = gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding

	// UsageCopy is added to textures that take part in copy passes.
	UsageCopy = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
)

// Desc describes a texture allocation.
type Desc struct {
	// Label is a debug name, shown in frame reports.
	Label string

	// Width is the level 0 width in pixels.
	Width int

	// Height is the level 0 height in pixels.
	Height int

	// Format is the texel format.
	Format Format

	// MipLevels is the number of mip levels. Zero means one.
	MipLevels int

	// Usage flags a GPU mirror of this texture needs.
	Usage gputypes.TextureUsage
}

// Desc2D returns a single-level descriptor with storage usage.
func Desc2D(label string, width, height int, format Format) Desc {
	return Desc{
		Label:     label,
		Width:     width,
		Height:    height,
		Format:    format,
		MipLevels: 1,
		Usage:     UsageStorage,
	}
}

// Levels returns the mip level count, treating zero as one.
func (d Desc) Levels() int {
	if d.MipLevels <= 0 {
		return 1
	}
	return d.MipLevels
}

// Validate checks the descriptor for allocation.
func (d Desc) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d (%s)", ErrInvalidDimensions, d.Width, d.Height, d.Label)
	}
	if !d.Format.IsValid() {
		return fmt.Errorf("%w: %s (%s)", ErrUnknownFormat, d.Format, d.Label)
	}
	if d.Levels() > FullMipCount(d.Width, d.Height) {
		return fmt.Errorf("%w: %d levels for %dx%d", ErrInvalidMipCount, d.Levels(), d.Width, d.Height)
	}
	return nil
}

// Extent returns the level 0 size as a WebGPU extent.
func (d Desc) Extent() gputypes.Extent3D {
	//nolint:gosec // G115: dimensions are validated positive
	return gputypes.Extent3D{Width: uint32(d.Width), Height: uint32(d.Height), DepthOrArrayLayers: 1}
}

// MipSize returns the size of the given level.
// Each level is max(1, floor(previous/2)) per axis.
func (d Desc) MipSize(level int) (width, height int) {
	return MipSize(d.Width, d.Height, level)
}

// SizeBytes returns the memory footprint of all levels.
func (d Desc) SizeBytes() uint64 {
	var total uint64
	for l := range d.Levels() {
		w, h := d.MipSize(l)
		//nolint:gosec // G115: sizes are positive
		total += uint64(w * h * d.Format.BytesPerPixel())
	}
	return total
}

// String returns a short description, e.g. "SSGI_Raw 1280x720 RGBA16Float".
func (d Desc) String() string {
	if d.Levels() > 1 {
		return fmt.Sprintf("%s %dx%d %s mips=%d", d.Label, d.Width, d.Height, d.Format, d.Levels())
	}
	return fmt.Sprintf("%s %dx%d %s", d.Label, d.Width, d.Height, d.Format)
}

// FullMipCount returns floor(log2(max(width, height))) + 1.
// Non-positive sizes count as 1.
func FullMipCount(width, height int) int {
	m := max(width, height, 1)
	//nolint:gosec // G115: m is positive
	return bits.Len(uint(m))
}

// MipSize returns the size of mip level for a level 0 of width x height.
func MipSize(width, height, level int) (int, int) {
	w, h := max(width, 1), max(height, 1)
	for range level {
		w = max(1, w/2)
		h = max(1, h/2)
	}
	return w, h
}
