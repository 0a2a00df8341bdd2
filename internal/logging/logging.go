// Package logging holds the slog plumbing shared by every stage package.
//
// Components accept a *slog.Logger in their Config. A nil logger is replaced
// by Nop, so that stage produces no output unless the host opts in.
package logging

import (
	"context"
	"log/slog"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Nop returns a logger that silently discards all output.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }

// OrNop returns l, or a nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Component returns l (or a nop logger) tagged with the component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l.With(slog.String("component", name))
}
