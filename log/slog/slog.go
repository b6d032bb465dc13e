//go:build go1.21

// Package slog adapts a *slog.Logger to mogilefs.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/mogilefs"
	mlog "github.com/unkn0wn-root/mogilefs/log"
)

var _ mogilefs.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// Default wraps slog.Default().
func Default() Logger { return Logger{L: stdslog.Default()} }

func (s Logger) Debug(msg string, f mogilefs.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f mogilefs.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f mogilefs.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f mogilefs.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f mogilefs.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f mogilefs.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range mlog.SortedKeys(f) {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
