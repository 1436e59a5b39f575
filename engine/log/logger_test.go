package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)
	SetLevel(Warning)
	defer SetLevel(Notice)

	logger := New("test")
	logger.Info("hidden")
	logger.Warningf("visible %d", 42)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message leaked through warning level: %q", out)
	}
	if !strings.Contains(out, "visible 42") || !strings.Contains(out, "[test]") {
		t.Fatalf("expected warning with module tag, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	specs := []struct {
		in  string
		exp Level
	}{
		{"debug", Debug},
		{"INFO", Info},
		{"notice", Notice},
		{"warning", Warning},
		{"error", Error},
		{"nonsense", Notice},
	}

	for index, spec := range specs {
		if got := ParseLevel(spec.in); got != spec.exp {
			t.Errorf("[spec %d] expected %v for %q; got %v", index, spec.exp, spec.in, got)
		}
	}
}
