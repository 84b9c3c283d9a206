// Package persistence loads and saves the small last_session.json summary
// record that survives process restarts.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"canscan/internal/appstate"
)

const lastSessionFile = "last_session.json"

// LastSessionPath returns the on-disk path of the summary file under
// appDataDir.
func LastSessionPath(appDataDir string) string {
	return filepath.Join(appDataDir, lastSessionFile)
}

// LoadLastSession reads the previous session summary, if any. A missing or
// unreadable file is not an error: it simply means there is no prior
// session to report.
func LoadLastSession(appDataDir string) *appstate.SessionSummary {
	data, err := os.ReadFile(LastSessionPath(appDataDir))
	if err != nil {
		return nil
	}
	var summary appstate.SessionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil
	}
	return &summary
}

// SaveLastSession pretty-prints summary to last_session.json under
// appDataDir, creating the directory if needed.
func SaveLastSession(appDataDir string, summary appstate.SessionSummary) error {
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		return fmt.Errorf("persistence: failed to create app data dir: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	if err := os.WriteFile(LastSessionPath(appDataDir), data, 0644); err != nil {
		return fmt.Errorf("persistence: failed to save last session: %w", err)
	}
	return nil
}
