// Package command implements the scanner's external command surface:
// GetSnapshot, GetAdapterStatus, StartScan, ClearDTCs, ExportLogs, and
// ReadLogTail, each a thin wrapper around internal/runtime and
// internal/scanner.
package command

import (
	"fmt"
	"time"

	"canscan/internal/appstate"
	"canscan/internal/applog"
	"canscan/internal/config"
	"canscan/internal/runtime"
	"canscan/internal/scanner"
	"canscan/internal/transport"
	"canscan/internal/transport/j2534"
	"canscan/internal/transport/socketcan"
	"canscan/internal/uds"
)

// AdapterStatus reports whether a native J2534 driver is available.
type AdapterStatus struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
	DLLPath   string `json:"dllPath,omitempty"`
}

// Surface binds a Runtime to the scanner's external operations.
type Surface struct {
	rt             *runtime.Runtime
	appDataDir     string
	cfg            *config.Config
	historyStore   scanner.HistoryStore
	telemetryStore scanner.TelemetryStore
}

// New returns a command Surface bound to rt, persisting session artifacts
// under appDataDir and driving scans with cfg's transport/UDS settings.
// cfg may be nil (config.Default() is used); historyStore and
// telemetryStore may be nil to run without session history/telemetry
// persistence.
func New(rt *runtime.Runtime, appDataDir string, cfg *config.Config, historyStore scanner.HistoryStore, telemetryStore scanner.TelemetryStore) *Surface {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Surface{rt: rt, appDataDir: appDataDir, cfg: cfg, historyStore: historyStore, telemetryStore: telemetryStore}
}

// GetSnapshot returns the current application snapshot.
func (s *Surface) GetSnapshot() appstate.AppSnapshot {
	return s.rt.Snapshot()
}

// GetAdapterStatus probes for a native J2534 driver without opening it.
func (s *Surface) GetAdapterStatus() AdapterStatus {
	path, err := j2534.Probe()
	if err != nil {
		return AdapterStatus{Available: false, Message: err.Error()}
	}
	return AdapterStatus{Available: true, Message: "Adapter driver detected", DLLPath: path}
}

// StartScan launches RunScan in the background. Errors are surfaced
// through the runtime's error phase and log, not through this call's
// return value, matching the fire-and-forget contract the frontend
// expects from a long-running scan.
func (s *Surface) StartScan(mode appstate.TransportMode, simulationPath string) error {
	if !s.rt.Snapshot().Phase.CanRestart() {
		return fmt.Errorf("command: a scan is already in progress")
	}

	timeoutMs := s.cfg.UDS.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 500
	}
	if simulationPath == "" {
		simulationPath = s.cfg.Simulation.DefaultSessionPath
	}

	opts := scanner.Options{
		Mode:             mode,
		SimulationPath:   simulationPath,
		AppDataDir:       s.appDataDir,
		UDSTimeoutMs:     timeoutMs,
		UDSRetries:       s.cfg.UDS.Retries,
		SimulationDelays: true,
		HistoryStore:     s.historyStore,
		TelemetryStore:   s.telemetryStore,
	}
	switch mode {
	case appstate.TransportJ2534:
		opts.NewTransport = func() (transport.Transport, error) {
			path := s.cfg.Transport.J2534DLL
			if path == "" {
				probed, err := j2534.Probe()
				if err != nil {
					return nil, err
				}
				path = probed
			}
			return j2534.New(path), nil
		}
	case appstate.TransportSocketCAN:
		opts.NewTransport = func() (transport.Transport, error) {
			return socketcan.New(s.cfg.Transport.CANIface), nil
		}
	}
	go func() {
		_ = scanner.RunScan(s.rt, opts)
	}()
	return nil
}

// ClearDTCs clears DTCs for one module (moduleID non-empty) or every
// module (moduleID empty). In simulation mode it only edits local state;
// against a live adapter it reuses the session's already-open transport.
func (s *Surface) ClearDTCs(moduleID string) error {
	snapshot := s.rt.Snapshot()

	s.rt.UpdateState(func(state *appstate.AppState) {
		state.Progress = &appstate.ProgressInfo{Stage: "clearing", Percent: 5, Message: "Clearing DTCs"}
	})

	if snapshot.Transport == appstate.TransportSimulation {
		s.rt.UpdateState(func(state *appstate.AppState) {
			if moduleID != "" {
				state.Dtcs[moduleID] = []appstate.DtcInfo{}
			} else {
				for id := range state.Dtcs {
					state.Dtcs[id] = []appstate.DtcInfo{}
				}
			}
			for i := range state.Modules {
				if dtcs, ok := state.Dtcs[state.Modules[i].ID]; ok {
					state.Modules[i].DtcCount = len(dtcs)
				}
			}
			state.Progress = nil
		})
		s.rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
			Message: "Cleared DTCs (simulation)", Payload: map[string]interface{}{"module": moduleID}})
		return nil
	}

	var targets []appstate.ModuleInfo
	for _, m := range snapshot.Modules {
		if moduleID == "" || m.ID == moduleID {
			targets = append(targets, m)
		}
	}

	activeTransport := s.rt.TakeTransport()
	if activeTransport == nil {
		return fmt.Errorf("command: no active transport")
	}
	timeoutMs := s.cfg.UDS.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 500
	}
	client := uds.New(activeTransport, timeoutMs, s.cfg.UDS.Retries)

	total := len(targets)
	if total == 0 {
		total = 1
	}
	for index, m := range targets {
		err := client.ClearDTCs(m.TxID, m.RxID)
		level := "info"
		var errMsg interface{}
		if err != nil {
			level = "warn"
			errMsg = err.Error()
		}
		s.rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: level, Kind: applog.KindProtocol,
			Message: "Clear DTCs", Payload: map[string]interface{}{"module": m.ID, "error": errMsg}})

		percent := uint8(((index + 1) * 100) / total)
		cleared := err == nil
		s.rt.UpdateState(func(state *appstate.AppState) {
			state.Progress = &appstate.ProgressInfo{Stage: "clearing", Percent: percent, Message: fmt.Sprintf("Cleared %s", m.Name)}
			if cleared {
				state.Dtcs[m.ID] = []appstate.DtcInfo{}
			}
			for i := range state.Modules {
				if dtcs, ok := state.Dtcs[state.Modules[i].ID]; ok {
					state.Modules[i].DtcCount = len(dtcs)
				}
			}
		})
	}

	s.rt.UpdateState(func(state *appstate.AppState) { state.Progress = nil })
	s.rt.SetTransport(client.IntoTransport())
	return nil
}

// ExportLogs copies the active session's log file to destination.
func (s *Surface) ExportLogs(destination string) error {
	session := s.rt.Session()
	if session == nil {
		return fmt.Errorf("command: no active log session")
	}
	return session.CopyTo(destination)
}

// ReadLogTail returns the last n lines of the active session log.
func (s *Surface) ReadLogTail(n int) (string, error) {
	session := s.rt.Session()
	if session == nil {
		return "", fmt.Errorf("command: no active log session")
	}
	return session.ReadTail(n)
}
