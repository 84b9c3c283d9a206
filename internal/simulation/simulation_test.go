package simulation

import (
	"os"
	"path/filepath"
	"testing"
)

const fixture = `{
  "vin": "1HGCM82633A123456",
  "vehicle": {"make": "Ford", "model": "F250", "year": "2021", "trim": "Lariat"},
  "modules": [
    {"id": "0x7E0", "name": "PCM", "bus": "HS-CAN", "category": "Powertrain", "txId": 2016, "rxId": 2024,
     "dtcs": [{"code": "P014300", "description": "test", "status": "active"}]}
  ]
}`

func TestLoadFromFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "simulation-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "session.json")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	session, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if session.VIN != "1HGCM82633A123456" {
		t.Errorf("got VIN %q", session.VIN)
	}
	if len(session.Modules) != 1 || session.Modules[0].TxID != 0x7E0 {
		t.Errorf("unexpected modules: %+v", session.Modules)
	}
}

func TestModuleInfosCountsDtcs(t *testing.T) {
	dir, err := os.MkdirTemp("", "simulation-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "session.json")
	os.WriteFile(path, []byte(fixture), 0644)

	session, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	infos := session.ModuleInfos()
	if len(infos) != 1 || infos[0].DtcCount != 1 {
		t.Errorf("got %+v", infos)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
