// Package simulation loads canned scan sessions from JSON fixtures, used
// by the simulation transport mode to drive the scanner without real
// hardware.
package simulation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"canscan/internal/appstate"
)

// VehicleInfo is the vehicle-level metadata carried by a fixture.
type VehicleInfo struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
	Trim  string `json:"trim"`
}

// Module is one simulated ECU and its canned DTCs.
type Module struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Bus      string             `json:"bus"`
	Category string             `json:"category"`
	TxID     uint32             `json:"txId"`
	RxID     uint32             `json:"rxId"`
	Dtcs     []appstate.DtcInfo `json:"dtcs"`
}

// Session is a complete canned scan result loaded from a fixture file.
type Session struct {
	VIN     string      `json:"vin"`
	Vehicle VehicleInfo `json:"vehicle"`
	Modules []Module    `json:"modules"`
}

// LoadFromFile parses a Session from a JSON fixture at path.
func LoadFromFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulation: failed to read file: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("simulation: invalid file: %w", err)
	}
	return &session, nil
}

// Resolve finds a simulation fixture at path, trying it directly, then
// relative to the current working directory, then its parent — so a
// relative "samples/..." path works whether scand runs from the repo root
// or a cmd subdirectory.
func Resolve(path string) (*Session, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadFromFile(path)
	}
	if cwd, err := os.Getwd(); err == nil {
		direct := filepath.Join(cwd, path)
		if _, err := os.Stat(direct); err == nil {
			return LoadFromFile(direct)
		}
		parent := filepath.Join(cwd, "..", path)
		if _, err := os.Stat(parent); err == nil {
			return LoadFromFile(parent)
		}
	}
	return nil, fmt.Errorf("simulation file not found: %s", path)
}

// ModuleInfos converts the fixture's modules into appstate.ModuleInfo
// records, each carrying its canned DTC count.
func (s *Session) ModuleInfos() []appstate.ModuleInfo {
	infos := make([]appstate.ModuleInfo, 0, len(s.Modules))
	for _, m := range s.Modules {
		infos = append(infos, appstate.ModuleInfo{
			ID:       m.ID,
			Name:     m.Name,
			Bus:      m.Bus,
			Category: m.Category,
			TxID:     m.TxID,
			RxID:     m.RxID,
			Status:   appstate.ModuleOk,
			DtcCount: len(m.Dtcs),
		})
	}
	return infos
}
