package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}

	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "warn"})
	if logger.Enabled(nil, slog.LevelInfo) {
		t.Errorf("info should be disabled at warn level")
	}
	if !logger.Enabled(nil, slog.LevelError) {
		t.Errorf("error should be enabled at warn level")
	}
}
