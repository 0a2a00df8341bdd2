package stage

import "log/slog"

// WithLogger sets the logger handed to every service of the engine.
// By default an engine produces no log output.
//
// Log levels used by stage:
//   - [slog.LevelDebug]: per-frame and per-eviction diagnostics
//   - [slog.LevelInfo]: lifecycle and pressure level changes
//   - [slog.LevelWarn]: recovered paint panics, worker failures, decode errors
//   - [slog.LevelError]: critical memory pressure
//
// Example:
//
//	e, _ := stage.New(800, 600, stage.WithLogger(slog.New(
//	    slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
//	)))
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Logger returns the engine logger. It never returns nil.
func (e *Engine) Logger() *slog.Logger {
	return e.log
}
