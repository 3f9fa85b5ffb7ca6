package ssgi

import (
	"fmt"
	"strings"
)

// PassOrder is the order of the spatial and temporal filters. It is set
// with Settings.SetPassOrder, independently of the debug mode, and applies
// under every debug mode.
type PassOrder uint32

const (
	// DenoiseThenTemporal filters the trace spatially, then accumulates the
	// filtered result over time. The accumulated result is shown and kept as
	// history.
	DenoiseThenTemporal PassOrder = iota

	// TemporalThenDenoise accumulates the raw trace over time, then filters
	// the accumulated result spatially for display. The unfiltered
	// accumulation is kept as history.
	TemporalThenDenoise
)

// String returns the pass order name.
func (o PassOrder) String() string {
	switch o {
	case DenoiseThenTemporal:
		return "DenoiseThenTemporal"
	case TemporalThenDenoise:
		return "TemporalThenDenoise"
	default:
		return fmt.Sprintf("PassOrder(%d)", o)
	}
}

// IsValid reports whether o is a known pass order.
func (o PassOrder) IsValid() bool {
	return o == DenoiseThenTemporal || o == TemporalThenDenoise
}

// ParsePassOrder parses a pass order name (case-insensitive). The short
// forms "denoise-first" and "temporal-first" are accepted too.
func ParsePassOrder(s string) (PassOrder, error) {
	switch strings.ToLower(s) {
	case "denoisethentemporal", "denoise-first":
		return DenoiseThenTemporal, nil
	case "temporalthendenoise", "temporal-first":
		return TemporalThenDenoise, nil
	}
	return DenoiseThenTemporal, fmt.Errorf("%w: unknown pass order %q", ErrInvalidOption, s)
}
