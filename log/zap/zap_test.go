package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/mogilefs"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", mogilefs.Fields{"op": "noop"})
	l.Info("i", nil)
	l.Warn("w", mogilefs.Fields{"b": 2, "a": 1})
	l.Error("e", mogilefs.Fields{"err": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
	}
	if got := entries[0].ContextMap()["op"]; got != "noop" {
		t.Fatalf("op = %v", got)
	}
	if f := entries[2].Context; len(f) != 2 || f[0].Key != "a" || f[1].Key != "b" {
		t.Fatalf("fields not sorted: %+v", f)
	}
	if got := entries[3].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err = %v", got)
	}
}
