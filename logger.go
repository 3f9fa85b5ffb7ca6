package ssgi

import (
	"log/slog"
	"sync/atomic"
)

// discard is the logger in effect until SetLogger is called.
var discard = slog.New(slog.DiscardHandler)

// active holds the logger. SetLogger may race with a frame in flight.
var active atomic.Pointer[slog.Logger]

func init() {
	active.Store(discard)
}

// SetLogger routes ssgi's diagnostics to l. ssgi is silent until a logger
// is set; a nil l silences it again. Safe for concurrent use.
//
// Levels:
//   - [slog.LevelDebug]: per-pass group counts and timings
//   - [slog.LevelInfo]: history resets and pipeline lifecycle
//   - [slog.LevelWarn]: frames bypassed because an input is missing
//
// Example:
//
//	ssgi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	active.Store(l)
}

// Logger returns the logger in use.
func Logger() *slog.Logger {
	return active.Load()
}
