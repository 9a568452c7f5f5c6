package common

import (
	"testing"

	"github.com/rs/zerolog"
)

// TestNewLogger tests level parsing including the error path for bad input
func TestNewLogger(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, c := range cases {
		logger, err := NewLogger(c.level)
		if err != nil {
			t.Errorf("NewLogger(%q) failed: %v", c.level, err)
			continue
		}
		if logger.GetLevel() != c.want {
			t.Errorf("NewLogger(%q) level = %v, want %v", c.level, logger.GetLevel(), c.want)
		}
	}

	if _, err := NewLogger("verbose"); err == nil {
		t.Error("an unknown level should be a configuration error")
	}
}
