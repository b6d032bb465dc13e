// Package logrus adapts a *logrus.Entry to mogilefs.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/mogilefs"
)

type Logger struct{ E *logrus.Entry }

var _ mogilefs.Logger = Logger{}

// New wraps a *logrus.Logger.
func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f mogilefs.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f mogilefs.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f mogilefs.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f mogilefs.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus' own error key.
func (l Logger) with(f mogilefs.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
