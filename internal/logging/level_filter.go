package logging

import (
	"context"
	"log/slog"
)

// LevelFilter passes only records at or above minLevel to the wrapped
// handler, regardless of the wrapped handler's own level.
type LevelFilter struct {
	handler  slog.Handler
	minLevel slog.Level
}

func NewLevelFilter(handler slog.Handler, minLevel slog.Level) *LevelFilter {
	return &LevelFilter{handler: handler, minLevel: minLevel}
}

func (f *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	if level < f.minLevel {
		return false
	}
	return f.handler.Enabled(ctx, level)
}

func (f *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < f.minLevel {
		return nil
	}
	return f.handler.Handle(ctx, r)
}

func (f *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelFilter{handler: f.handler.WithAttrs(attrs), minLevel: f.minLevel}
}

func (f *LevelFilter) WithGroup(name string) slog.Handler {
	return &LevelFilter{handler: f.handler.WithGroup(name), minLevel: f.minLevel}
}
