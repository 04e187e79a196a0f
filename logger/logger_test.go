package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	type expectation struct {
		Name     string
		Expected zapcore.Level
	}

	expectations := []expectation{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, v := range expectations {
		got, err := ParseLevel(v.Name)
		if err != nil {
			t.Fatal(err)
		}
		if got != v.Expected {
			t.Fatalf("Expected %s for %q, got %s", v.Expected, v.Name, got)
		}
	}

	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("Expected an error for an unknown level")
	}
}

func TestNopBeforeInit(t *testing.T) {
	Info("not initialized", zap.Int("n", 1))
	With(zap.String("run_id", "x")).Debug("still fine")
}
