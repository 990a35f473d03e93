package journal

import (
	"bufio"
	"os"
	"strings"
	"testing"
)

func TestWriteAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "BTC/USDT")
	defer w.Close()

	if err := w.Write("info", "engine_started", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write("warn", "cycle_error", nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one log file, got %v (err=%v)", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "BTC_USDT-") {
		t.Fatalf("expected sanitized symbol prefix, got %s", entries[0].Name())
	}

	f, err := os.Open(dir + "/" + entries[0].Name())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
