// Package texture provides the image resources the SSGI passes read and write.
//
// Textures live in CPU memory with the same shape a GPU allocation would have
// (format, extent, mip levels, usage), so a host renderer can mirror every
// allocation on its own device through the gputypes descriptors.
package texture

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Format represents the texel storage format of a texture.
type Format uint8

const (
	// FormatR32Float is a single 32-bit float channel (depth, Hi-Z).
	FormatR32Float Format = iota

	// FormatRGBA16Float is four 16-bit half-float channels.
	// Matches the precision of the intermediate SSGI targets on GPU.
	FormatRGBA16Float

	// FormatRGBA32Float is four 32-bit float channels.
	FormatRGBA32Float

	// formatCount is the number of formats (for internal use).
	formatCount
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatR32Float:
		return "R32Float"
	case FormatRGBA16Float:
		return "RGBA16Float"
	case FormatRGBA32Float:
		return "RGBA32Float"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// Channels returns the number of channels per texel.
func (f Format) Channels() int {
	if f == FormatR32Float {
		return 1
	}
	return 4
}

// BytesPerPixel returns the number of bytes per texel for the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// GPUFormat converts to the WebGPU texture format a host would allocate.
func (f Format) GPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatR32Float:
		return gputypes.TextureFormatR32Float
	case FormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case FormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatUndefined
	}
}
