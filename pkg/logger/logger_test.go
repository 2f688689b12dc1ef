package logger

import "testing"

func TestLogger_BasicLevels(t *testing.T) {
	l := New("debug")
	if l == nil {
		t.Fatalf("logger nil")
	}
	l.Debug("dbg", "k", 1)
	l.Info("info")
	l.Warn("warn")
	l.Error("err")
}

func TestLogger_With(t *testing.T) {
	l := New("info").With("tenant", "t-1")
	if l == nil {
		t.Fatalf("derived logger nil")
	}
	l.Info("scoped")
}

func TestLogger_Nop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", "k", "v")
	l.With("a", 1).Error("also discarded")
}
