package persistence

import (
	"os"
	"testing"
	"time"

	"canscan/internal/appstate"
)

func TestSaveAndLoadLastSessionRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "persistence-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	vin := "1HGCM82633A123456"
	summary := appstate.SessionSummary{
		SessionID:   "abc-123",
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		VIN:         &vin,
		ModuleCount: 4,
		DtcCount:    2,
	}

	if err := SaveLastSession(dir, summary); err != nil {
		t.Fatalf("SaveLastSession: %v", err)
	}

	loaded := LoadLastSession(dir)
	if loaded == nil {
		t.Fatal("expected a loaded summary, got nil")
	}
	if loaded.SessionID != summary.SessionID {
		t.Errorf("SessionID: got %q, want %q", loaded.SessionID, summary.SessionID)
	}
	if loaded.VIN == nil || *loaded.VIN != vin {
		t.Errorf("VIN not round-tripped correctly: %+v", loaded.VIN)
	}
	if loaded.ModuleCount != 4 || loaded.DtcCount != 2 {
		t.Errorf("counts not round-tripped: %+v", loaded)
	}
}

func TestLoadLastSessionMissingFileReturnsNil(t *testing.T) {
	dir, err := os.MkdirTemp("", "persistence-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	if got := LoadLastSession(dir); got != nil {
		t.Errorf("expected nil for missing file, got %+v", got)
	}
}
