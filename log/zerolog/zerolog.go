// Package zerolog adapts a zerolog.Logger to mogilefs.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/mogilefs"
	mlog "github.com/unkn0wn-root/mogilefs/log"
)

type Logger struct{ L zerolog.Logger }

var _ mogilefs.Logger = Logger{}

func (z Logger) Debug(msg string, f mogilefs.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f mogilefs.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f mogilefs.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f mogilefs.Fields) { emit(z.L.Error(), msg, f) }

// emit tolerates a nil event, which zerolog returns for disabled levels.
func emit(e *zerolog.Event, msg string, f mogilefs.Fields) {
	if e == nil {
		return
	}
	for _, k := range mlog.SortedKeys(f) {
		switch v := f[k].(type) {
		case error:
			e = e.AnErr(k, v)
		case string:
			e = e.Str(k, v)
		default:
			e = e.Interface(k, v)
		}
	}
	e.Msg(msg)
}
