package log

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHex(t *testing.T) {
	for v, want := range map[uint64]string{0: "0x0", 0x10400: "0x10400", ^uint64(0): "0xffffffffffffffff"} {
		if got := Hex(v); got != want {
			t.Errorf("Hex(%#x) = %q, want %q", v, got, want)
		}
	}
}

func TestGetBeforeInit(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get returned nil")
	}
}

func TestWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.AllocFailed(63, 1, 1<<21)
	l.ArrayTruncated(221, 1, 0x7ff00000, 1024)
	l.Dispatch(56, "exit", "openat", 1)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].Message != "payload allocation failed" {
		t.Errorf("entry 0 = %v %q", entries[0].Level, entries[0].Message)
	}
	if got := entries[1].ContextMap()["addr"]; got != "0x7ff00000" {
		t.Errorf("truncated addr = %v", got)
	}
	if entries[2].Level != zapcore.DebugLevel || entries[2].ContextMap()["sys"] != "openat" {
		t.Errorf("dispatch entry = %v %v", entries[2].Level, entries[2].ContextMap())
	}
}
