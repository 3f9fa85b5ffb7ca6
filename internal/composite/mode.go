package composite

import "fmt"

// Mode selects what the compositor writes to the scene colour.
type Mode uint8

const (
	// ModeFinal blends the accumulated lighting into the scene.
	ModeFinal Mode = iota

	// ModeRawTrace shows the trace result.
	ModeRawTrace

	// ModeDenoised shows the spatially filtered result.
	ModeDenoised

	// ModeHistory shows the temporal result captured as next history.
	ModeHistory

	// ModeIterations shows the march step count as a heat map.
	ModeIterations

	// ModeHitUV shows the viewport UV of every hit.
	ModeHitUV

	// ModeRayDirection shows the world ray direction.
	ModeRayDirection

	// ModeDepthPyramid shows pyramid level 0.
	ModeDepthPyramid

	// ModeWorldPosition shows the fractional part of reconstructed world
	// positions.
	ModeWorldPosition

	// ModeRayStart shows the viewport UV each ray starts from.
	ModeRayStart

	// ModeDepthCheck shows device depth with pyramid and reprojection
	// mismatches in red.
	ModeDepthCheck

	// modeCount is the number of modes (for internal use).
	modeCount
)

// MaxMode is the highest valid mode.
const MaxMode = modeCount - 1

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeFinal:
		return "Final"
	case ModeRawTrace:
		return "RawTrace"
	case ModeDenoised:
		return "Denoised"
	case ModeHistory:
		return "History"
	case ModeIterations:
		return "Iterations"
	case ModeHitUV:
		return "HitUV"
	case ModeRayDirection:
		return "RayDirection"
	case ModeDepthPyramid:
		return "DepthPyramid"
	case ModeWorldPosition:
		return "WorldPosition"
	case ModeRayStart:
		return "RayStart"
	case ModeDepthCheck:
		return "DepthCheck"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool { return m < modeCount }

// IsVisualization reports whether the mode needs a visualize pass.
func (m Mode) IsVisualization() bool {
	return m == ModeDepthPyramid || m == ModeWorldPosition || m == ModeRayStart || m == ModeDepthCheck
}

// IsDiagnostic reports whether the mode reads the trace's auxiliary output.
func (m Mode) IsDiagnostic() bool {
	return m == ModeIterations || m == ModeHitUV || m == ModeRayDirection
}

// Blend is how the selected buffer is combined with the scene colour.
type Blend uint8

const (
	// BlendAdditive adds the lighting to the scene colour.
	BlendAdditive Blend = iota

	// BlendModulate scales the scene colour by one plus the lighting.
	BlendModulate

	// BlendReplace writes the selected buffer as is.
	BlendReplace
)

// String returns the blend name.
func (b Blend) String() string {
	switch b {
	case BlendAdditive:
		return "Additive"
	case BlendModulate:
		return "Modulate"
	case BlendReplace:
		return "Replace"
	default:
		return fmt.Sprintf("Blend(%d)", b)
	}
}

// BlendFor returns the blend used for mode m: final lighting uses the
// configured blend, every visualization replaces the scene colour.
func BlendFor(m Mode, final Blend) Blend {
	if m == ModeFinal {
		return final
	}
	return BlendReplace
}
