// Package zap adapts a *zap.Logger to mogilefs.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/mogilefs"
	mlog "github.com/unkn0wn-root/mogilefs/log"
)

type Logger struct{ L *zap.Logger }

var _ mogilefs.Logger = Logger{}

// New wraps l, skipping the adapter frame so callers show up as the source.
func New(l *zap.Logger) Logger { return Logger{L: l.WithOptions(zap.AddCallerSkip(1))} }

func (z Logger) Debug(msg string, f mogilefs.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f mogilefs.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f mogilefs.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f mogilefs.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f mogilefs.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range mlog.SortedKeys(f) {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
