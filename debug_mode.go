package ssgi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/ssgi/internal/composite"
	"github.com/gogpu/ssgi/internal/trace"
)

// DebugMode selects what the pipeline writes to the scene colour.
type DebugMode int

const (
	// DebugModeFinal composites the final lighting into the scene.
	DebugModeFinal DebugMode = iota

	// DebugModeRawTrace shows the unfiltered trace result.
	DebugModeRawTrace

	// DebugModeDenoised shows the spatially filtered result.
	DebugModeDenoised

	// DebugModeHistory shows the temporal result kept as next frame's history.
	DebugModeHistory

	// DebugModeIterations shows how many cells every ray stepped through.
	DebugModeIterations

	// DebugModeHitUV shows where in the viewport rays hit.
	DebugModeHitUV

	// DebugModeRayDirection shows the world direction of every ray.
	DebugModeRayDirection

	// DebugModeDepthPyramid shows level 0 of the depth pyramid.
	DebugModeDepthPyramid

	// DebugModeWorldPosition shows reconstructed world positions.
	DebugModeWorldPosition

	// DebugModeRayStart shows the screen position every ray starts from.
	DebugModeRayStart

	// DebugModeDepthCheck shows device depth and marks pixels whose
	// pyramid or reprojected depth disagrees with it.
	DebugModeDepthCheck
)

// MaxDebugMode is the highest debug mode. Larger values clamp to it.
const MaxDebugMode = DebugModeDepthCheck

// String returns the debug mode name.
func (m DebugMode) String() string {
	return m.Clamp().mode().String()
}

// Clamp returns m limited to [DebugModeFinal, MaxDebugMode].
func (m DebugMode) Clamp() DebugMode {
	return min(max(m, DebugModeFinal), MaxDebugMode)
}

// mode converts to the compositor mode.
func (m DebugMode) mode() composite.Mode {
	return composite.Mode(m.Clamp())
}

// diagnostic returns the trace diagnostic the mode needs.
func (m DebugMode) diagnostic() trace.Diagnostic {
	switch m.Clamp() {
	case DebugModeIterations:
		return trace.DiagnosticIterations
	case DebugModeHitUV:
		return trace.DiagnosticHitUV
	case DebugModeRayDirection:
		return trace.DiagnosticRayDirection
	default:
		return trace.DiagnosticNone
	}
}

// ParseDebugMode parses a debug mode from its number or its name
// (case-insensitive). Numbers out of range clamp.
func ParseDebugMode(s string) (DebugMode, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return DebugMode(n).Clamp(), nil
	}
	for m := DebugModeFinal; m <= MaxDebugMode; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return DebugModeFinal, fmt.Errorf("%w: unknown debug mode %q", ErrInvalidOption, s)
}
