package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"canscan/internal/appstate"
	"canscan/internal/runtime"
	"canscan/internal/transport"
)

const fixture = `{
  "vin": "1HGCM82M93A123456",
  "vehicle": {"make": "Ford", "model": "F250", "year": "2021", "trim": "Lariat"},
  "modules": [
    {"id": "0x7E0", "name": "PCM", "bus": "HS-CAN", "category": "Powertrain", "txId": 2016, "rxId": 2024,
     "dtcs": [{"code": "P014300", "description": "test", "status": "active"}]},
    {"id": "0x726", "name": "ABS", "bus": "HS-CAN", "category": "Chassis", "txId": 1830, "rxId": 1838,
     "dtcs": []}
  ]
}`

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "session.json")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunScanSimulationReachesReady(t *testing.T) {
	dir, err := os.MkdirTemp("", "scanner-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	fixturePath := writeFixture(t, dir)
	appData := filepath.Join(dir, "appdata")

	rt := runtime.New(nil, log.ErrorLevel)

	var phases []appstate.Phase
	rt.OnSnapshot(func(s appstate.AppSnapshot) { phases = append(phases, s.Phase) })

	opts := Options{
		Mode:           appstate.TransportSimulation,
		SimulationPath: fixturePath,
		AppDataDir:     appData,
	}
	if err := RunScan(rt, opts); err != nil {
		t.Fatalf("RunScan: %v", err)
	}

	final := rt.Snapshot()
	if final.Phase != appstate.PhaseReady {
		t.Fatalf("got phase %q, want ready", final.Phase)
	}
	if final.VIN == nil || *final.VIN != "1HGCM82M93A123456" {
		t.Errorf("VIN not set correctly: %+v", final.VIN)
	}
	if len(final.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(final.Modules))
	}
	if final.Modules[0].DtcCount != 1 {
		t.Errorf("got dtc count %d for PCM, want 1", final.Modules[0].DtcCount)
	}
	if final.LastSession == nil {
		t.Error("expected a saved session summary")
	}

	sawConnecting := false
	for _, p := range phases {
		if p == appstate.PhaseConnecting {
			sawConnecting = true
		}
	}
	if !sawConnecting {
		t.Error("expected to observe the connecting phase via broadcast")
	}
}

func TestRunScanSimulationMissingFixtureReportsError(t *testing.T) {
	dir, err := os.MkdirTemp("", "scanner-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	rt := runtime.New(nil, log.ErrorLevel)
	opts := Options{
		Mode:           appstate.TransportSimulation,
		SimulationPath: filepath.Join(dir, "does-not-exist.json"),
		AppDataDir:     filepath.Join(dir, "appdata"),
	}
	if err := RunScan(rt, opts); err == nil {
		t.Fatal("expected error for missing simulation fixture")
	}
	snap := rt.Snapshot()
	if snap.Phase != appstate.PhaseError {
		t.Errorf("got phase %q, want error", snap.Phase)
	}
	if snap.LastError == nil {
		t.Fatal("expected LastError to be set")
	}
	if snap.LastError.Summary != "Simulation file not found" {
		t.Errorf("got summary %q, want %q", snap.LastError.Summary, "Simulation file not found")
	}
}

func TestRunScanLiveAdapterOpenFailureReportsDistinctSummary(t *testing.T) {
	dir, err := os.MkdirTemp("", "scanner-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	rt := runtime.New(nil, log.ErrorLevel)
	opts := Options{
		Mode:       appstate.TransportJ2534,
		AppDataDir: filepath.Join(dir, "appdata"),
		NewTransport: func() (transport.Transport, error) {
			return nil, errors.New("Adapter offline")
		},
	}
	if err := RunScan(rt, opts); err == nil {
		t.Fatal("expected error for an adapter that fails to open")
	}
	snap := rt.Snapshot()
	if snap.Phase != appstate.PhaseError {
		t.Errorf("got phase %q, want error", snap.Phase)
	}
	if snap.LastError == nil {
		t.Fatal("expected LastError to be set")
	}
	if snap.LastError.Summary != "Adapter connection failed" {
		t.Errorf("got summary %q, want %q", snap.LastError.Summary, "Adapter connection failed")
	}
	if snap.LastError.Details != "Adapter offline" {
		t.Errorf("got details %q, want %q", snap.LastError.Details, "Adapter offline")
	}
}

type fakeHistoryStore struct {
	summary appstate.SessionSummary
	dtcs    map[string][]appstate.DtcInfo
}

func (f *fakeHistoryStore) SaveSession(summary appstate.SessionSummary, dtcsByModule map[string][]appstate.DtcInfo) error {
	f.summary = summary
	f.dtcs = dtcsByModule
	return nil
}

type fakeTelemetryStore struct {
	writes []appstate.ModuleInfo
}

func (f *fakeTelemetryStore) WriteModuleScan(vin string, module appstate.ModuleInfo, at time.Time) error {
	f.writes = append(f.writes, module)
	return nil
}

func TestRunScanSimulationWritesToHistoryAndTelemetryStores(t *testing.T) {
	dir, err := os.MkdirTemp("", "scanner-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	fixturePath := writeFixture(t, dir)
	rt := runtime.New(nil, log.ErrorLevel)

	history := &fakeHistoryStore{}
	telemetry := &fakeTelemetryStore{}
	opts := Options{
		Mode:           appstate.TransportSimulation,
		SimulationPath: fixturePath,
		AppDataDir:     filepath.Join(dir, "appdata"),
		HistoryStore:   history,
		TelemetryStore: telemetry,
	}
	if err := RunScan(rt, opts); err != nil {
		t.Fatalf("RunScan: %v", err)
	}

	if history.summary.ModuleCount != 2 {
		t.Errorf("got history module count %d, want 2", history.summary.ModuleCount)
	}
	if len(history.dtcs["0x7E0"]) != 1 {
		t.Errorf("expected history store to receive PCM dtcs, got %+v", history.dtcs)
	}
	if len(telemetry.writes) != 2 {
		t.Errorf("got %d telemetry writes, want one per module (2)", len(telemetry.writes))
	}
}
