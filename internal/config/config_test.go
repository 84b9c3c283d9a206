package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasSaneValues(t *testing.T) {
	c := Default()
	if c.Transport.Mode != "simulation" {
		t.Errorf("got mode %q, want simulation", c.Transport.Mode)
	}
	if c.UDS.TimeoutMs == 0 {
		t.Error("expected non-zero default UDS timeout")
	}
}

func TestLoadOverlaysOntoDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	contents := "transport:\n  mode: j2534\n  requestId: 2016\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Transport.Mode != "j2534" {
		t.Errorf("got mode %q, want j2534", c.Transport.Mode)
	}
	if c.UDS.TimeoutMs != 1000 {
		t.Errorf("expected default UDS timeout to survive overlay, got %d", c.UDS.TimeoutMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
