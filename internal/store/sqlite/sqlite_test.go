package sqlite

import (
	"testing"
	"time"

	"canscan/internal/appstate"
)

func TestSaveAndListSessions(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	vin := "1HGCM82633A123456"
	summary := appstate.SessionSummary{
		SessionID:   "session-1",
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		VIN:         &vin,
		ModuleCount: 2,
		DtcCount:    1,
	}
	dtcs := map[string][]appstate.DtcInfo{
		"0x7E0": {{Code: "P014300", Description: "test", Status: "active"}},
	}

	if err := store.SaveSession(summary, dtcs); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].SessionID != "session-1" {
		t.Errorf("got session id %q", sessions[0].SessionID)
	}
	if sessions[0].VIN == nil || *sessions[0].VIN != vin {
		t.Errorf("VIN not round-tripped: %+v", sessions[0].VIN)
	}

	saved, err := store.SessionDTCs("session-1")
	if err != nil {
		t.Fatalf("SessionDTCs: %v", err)
	}
	if len(saved["0x7E0"]) != 1 || saved["0x7E0"][0].Code != "P014300" {
		t.Errorf("unexpected saved dtcs: %+v", saved)
	}
}

func TestSaveSessionOverwritesDtcs(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	summary := appstate.SessionSummary{SessionID: "session-2", Timestamp: time.Now().UTC()}
	store.SaveSession(summary, map[string][]appstate.DtcInfo{"0x7E0": {{Code: "P014300"}}})
	if err := store.SaveSession(summary, map[string][]appstate.DtcInfo{"0x7E0": {}}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	saved, err := store.SessionDTCs("session-2")
	if err != nil {
		t.Fatalf("SessionDTCs: %v", err)
	}
	if len(saved["0x7E0"]) != 0 {
		t.Errorf("expected dtcs cleared on overwrite, got %+v", saved["0x7E0"])
	}
}
