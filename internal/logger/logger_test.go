package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestInitWritesJSONToFile(t *testing.T) {
	t.Cleanup(func() { Set(nil) })
	path := filepath.Join(t.TempDir(), "fgbmap.log")
	l, err := Init(Options{Path: path, Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if Get() != l {
		t.Fatal("Init did not install the logger")
	}
	Get().Debug("reload", zap.Int("features", 3))
	_ = l.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &entry); err != nil {
		t.Fatalf("log line %q: %v", b, err)
	}
	if entry["msg"] != "reload" || entry["features"] != float64(3) || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if _, err := Init(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetNilRestoresNop(t *testing.T) {
	Set(nil)
	if Get() == nil {
		t.Fatal("Get returned nil")
	}
	Get().Info("dropped")
}
