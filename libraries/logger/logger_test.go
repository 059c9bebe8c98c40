package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(&buf)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return l, &buf
}

func TestPrintfFormat(t *testing.T) {
	l, buf := newTestLogger()
	l.RegisterCategories("startup", "session")

	l.Printf("session", "block %d applied", 42)

	want := "2024-05-01 12:00:00 session  block 42 applied\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestDebugHiddenByDefault(t *testing.T) {
	l, buf := newTestLogger()

	l.Printf("debug-session", "hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}

	l.SetMinLevel(LevelDebug)
	l.Printf("debug-session", "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug line missing at debug level: %q", buf.String())
	}
}

func TestCategoryFilter(t *testing.T) {
	l, buf := newTestLogger()
	l.SetCategoryFilter([]string{"fork", "debug-pebble"})

	l.Printf("block", "dropped")
	l.Printf("fork", "kept")
	l.Printf("debug-pebble", "enabled by filter")
	l.Warning("warnings always pass")
	l.Error("errors always pass")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("filtered category printed: %q", out)
	}
	for _, want := range []string{"kept", "enabled by filter", "warnings always pass", "errors always pass"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}

	l.SetCategoryFilter(nil)
	if !l.Enabled("block") {
		t.Error("Enabled(block) = false after clearing filter")
	}
}

func TestInvalidCategory(t *testing.T) {
	l, buf := newTestLogger()
	l.Printf("Bad", "x")
	if !strings.Contains(buf.String(), "invalid_category") {
		t.Errorf("output = %q, want invalid_category", buf.String())
	}
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		category string
		want     Level
	}{
		{"error", LevelError},
		{"warning", LevelWarning},
		{"debug", LevelDebug},
		{"debug-pebble", LevelDebug},
		{"startup", LevelInfo},
	}
	for _, tt := range tests {
		if got := levelOf(tt.category); got != tt.want {
			t.Errorf("levelOf(%q) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
		{2 << 40, "2.0 TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(999); got != "999" {
		t.Errorf("FormatCount(999) = %q", got)
	}
	if got := FormatCount(12_500); got != "12.5K" {
		t.Errorf("FormatCount(12500) = %q", got)
	}
	if got := FormatCount(3_000_000); got != "3.0M" {
		t.Errorf("FormatCount(3000000) = %q", got)
	}
}
