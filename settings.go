package ssgi

import "sync/atomic"

// Settings are the runtime toggles of a Pipeline.
//
// Settings may be changed from any goroutine at any time. The pipeline
// reads them once at the start of every frame, so a change never applies
// to half a frame.
type Settings struct {
	enabled   atomic.Bool
	debugMode atomic.Int64
	passOrder atomic.Uint32
}

// snapshot is the value of Settings for one frame.
type snapshot struct {
	enabled   bool
	debugMode DebugMode
	passOrder PassOrder
}

// SetEnabled turns the effect on or off. A disabled pipeline returns the
// scene colour untouched.
func (s *Settings) SetEnabled(v bool) { s.enabled.Store(v) }

// Enabled reports whether the effect is on.
func (s *Settings) Enabled() bool { return s.enabled.Load() }

// SetDebugMode selects the debug view. Values out of range clamp when read.
func (s *Settings) SetDebugMode(m DebugMode) { s.debugMode.Store(int64(m)) }

// DebugMode returns the debug view, clamped to the valid range.
func (s *Settings) DebugMode() DebugMode {
	v := s.debugMode.Load()
	if v > int64(MaxDebugMode) {
		return MaxDebugMode
	}
	return DebugMode(v).Clamp()
}

// SetPassOrder selects the filter order. Unknown orders read as
// DenoiseThenTemporal.
func (s *Settings) SetPassOrder(o PassOrder) { s.passOrder.Store(uint32(o)) }

// PassOrder returns the filter order.
func (s *Settings) PassOrder() PassOrder {
	o := PassOrder(s.passOrder.Load())
	if !o.IsValid() {
		return DenoiseThenTemporal
	}
	return o
}

func (s *Settings) snapshot() snapshot {
	return snapshot{
		enabled:   s.Enabled(),
		debugMode: s.DebugMode(),
		passOrder: s.PassOrder(),
	}
}
