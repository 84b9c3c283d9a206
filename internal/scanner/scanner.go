// Package scanner drives one full scan session: connect, identify, discover
// modules, read DTCs, and persist a summary — either against a loaded
// simulation fixture or a live transport.
package scanner

import (
	"errors"
	"fmt"
	"time"

	"canscan/internal/appstate"
	"canscan/internal/applog"
	"canscan/internal/discovery"
	"canscan/internal/persistence"
	"canscan/internal/runtime"
	"canscan/internal/simulation"
	"canscan/internal/topology"
	"canscan/internal/transport"
	"canscan/internal/uds"
)

// HistoryStore persists a completed session summary and its per-module
// DTCs. internal/store/sqlite.Store satisfies this.
type HistoryStore interface {
	SaveSession(summary appstate.SessionSummary, dtcsByModule map[string][]appstate.DtcInfo) error
}

// TelemetryStore records one scan-time sample per touched module.
// internal/store/influx.Store satisfies this.
type TelemetryStore interface {
	WriteModuleScan(vin string, module appstate.ModuleInfo, at time.Time) error
}

// Options configures one RunScan call.
type Options struct {
	Mode             appstate.TransportMode
	SimulationPath   string
	ExtraCandidates  []discovery.ModuleCandidate
	AppDataDir       string
	NewTransport     func() (transport.Transport, error)
	UDSTimeoutMs     uint64
	UDSRetries       uint8
	SimulationDelays bool // false in tests, to skip the scripted sleeps
	HistoryStore     HistoryStore
	TelemetryStore   TelemetryStore
}

func strPtr(s string) *string { return &s }

// scanError carries a user-facing summary distinct from the underlying
// cause, so a failure at a known step (adapter connect, VIN read, ...)
// reports the step that failed as ErrorInfo.Summary and the raw cause as
// ErrorInfo.Details, instead of collapsing both into one wrapped string.
type scanError struct {
	summary string
	cause   error
}

func newScanError(summary string, cause error) *scanError {
	return &scanError{summary: summary, cause: cause}
}

func (e *scanError) Error() string { return fmt.Sprintf("%s: %s", e.summary, e.cause) }
func (e *scanError) Unwrap() error { return e.cause }

// RunScan executes one complete scan session against rt, following the
// exact stage sequence and progress percentages this scanner has always
// reported: connecting(5) -> identifying(15/18) -> discovering(30-60) ->
// scanningDtc(70-95 simulated, 65-95 live) -> ready.
func RunScan(rt *runtime.Runtime, opts Options) error {
	session, sessionID, err := applog.Open(opts.AppDataDir)
	if err != nil {
		return fmt.Errorf("scanner: failed to open session log: %w", err)
	}
	rt.SetSession(session)
	logsPath := session.Path()

	rt.UpdateState(func(s *appstate.AppState) {
		s.Phase = appstate.PhaseConnecting
		s.Transport = opts.Mode
		s.AdapterConnected = opts.Mode == appstate.TransportSimulation
		s.VIN = nil
		s.Modules = nil
		s.Dtcs = make(map[string][]appstate.DtcInfo)
		s.Topology = appstate.TopologyGraph{Buses: []appstate.BusInfo{}}
		s.Progress = &appstate.ProgressInfo{Stage: "connecting", Percent: 5, Message: "Starting session"}
		s.LastError = nil
		s.SessionID = strPtr(sessionID)
		s.LogsPath = strPtr(logsPath)
	})

	rt.LogEvent(applog.Event{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Kind:      applog.KindSystem,
		Message:   "Session started",
		Payload:   map[string]interface{}{"sessionId": sessionID, "mode": string(opts.Mode)},
	})

	var runErr error
	switch opts.Mode {
	case appstate.TransportSimulation:
		runErr = runSimulation(rt, opts)
	default:
		runErr = runLive(rt, opts)
	}

	if runErr != nil {
		summary := "Scan failed"
		details := runErr.Error()
		var se *scanError
		if errors.As(runErr, &se) {
			summary = se.summary
			details = se.cause.Error()
		}
		rt.UpdateState(func(s *appstate.AppState) {
			s.Phase = appstate.PhaseError
			s.LastError = &appstate.ErrorInfo{Summary: summary, Details: details}
			s.Progress = nil
		})
		rt.LogEvent(applog.Event{
			Timestamp: time.Now().UTC(),
			Level:     "error",
			Kind:      applog.KindSystem,
			Message:   "Scan failed",
			Payload:   map[string]interface{}{"error": runErr.Error()},
		})
	}
	return runErr
}

func runSimulation(rt *runtime.Runtime, opts Options) error {
	path := opts.SimulationPath
	if path == "" {
		path = "samples/f250_session.json"
	}
	session, err := simulation.Resolve(path)
	if err != nil {
		return newScanError("Simulation file not found", err)
	}
	rt.SetSimulation(session)

	rt.UpdateState(func(s *appstate.AppState) {
		s.AdapterConnected = true
		s.Phase = appstate.PhaseIdentifying
		s.Progress = &appstate.ProgressInfo{Stage: "identifying", Percent: 15, Message: "Reading VIN"}
	})
	rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
		Message: "VIN read (simulation)", Payload: map[string]interface{}{"vin": session.VIN}})
	if info, ok := discovery.DecodeVIN(session.VIN); ok {
		rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
			Message: "VIN decode (simulation)", Payload: map[string]interface{}{"wmi": info.WMI, "year": info.Year}})
	}

	sleepIf(opts, 350*time.Millisecond)

	rt.UpdateState(func(s *appstate.AppState) {
		vin := session.VIN
		s.VIN = &vin
		s.Phase = appstate.PhaseDiscovering
		s.Progress = &appstate.ProgressInfo{Stage: "discovering", Percent: 30, Message: "Discovering modules"}
	})

	allModules := session.ModuleInfos()
	moduleCount := len(allModules)
	if moduleCount == 0 {
		moduleCount = 1
	}
	for index, m := range allModules {
		percent := 30 + ((index+1)*30)/moduleCount
		snapshotModules := append([]appstate.ModuleInfo(nil), allModules[:index+1]...)
		rt.UpdateState(func(s *appstate.AppState) {
			s.Modules = snapshotModules
			s.Topology = topology.Build(s.Modules)
			s.Progress = &appstate.ProgressInfo{Stage: "discovering", Percent: uint8(percent), Message: fmt.Sprintf("Discovered %s", m.Name)}
		})
		rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
			Message: "Module discovered", Payload: map[string]interface{}{"module": m.ID, "name": m.Name}})
		sleepIf(opts, 180*time.Millisecond)
	}

	rt.UpdateState(func(s *appstate.AppState) {
		s.Phase = appstate.PhaseScanningDtc
		s.Progress = &appstate.ProgressInfo{Stage: "scanning", Percent: 70, Message: "Reading DTCs"}
	})

	dtcsMap := make(map[string][]appstate.DtcInfo)
	for index, m := range session.Modules {
		dtcsMap[m.ID] = append([]appstate.DtcInfo(nil), m.Dtcs...)
		percent := 70 + ((index+1)*25)/moduleCount
		snapshotDtcs := cloneDtcMap(dtcsMap)
		rt.UpdateState(func(s *appstate.AppState) {
			s.Dtcs = snapshotDtcs
			annotateDtcCounts(s)
			s.Progress = &appstate.ProgressInfo{Stage: "scanning", Percent: uint8(percent), Message: fmt.Sprintf("Scanned %s", m.Name)}
		})
		sleepIf(opts, 160*time.Millisecond)
	}

	finishSession(rt, opts)
	return nil
}

func runLive(rt *runtime.Runtime, opts Options) error {
	if opts.NewTransport == nil {
		return newScanError("Adapter connection failed", fmt.Errorf("no transport factory configured for mode %s", opts.Mode))
	}
	rawTransport, err := opts.NewTransport()
	if err != nil {
		return newScanError("Adapter connection failed", err)
	}
	loggingTransport := transport.NewLoggingTransport(rawTransport, rt.Session())

	timeoutMs := opts.UDSTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 500
	}
	client := uds.New(loggingTransport, timeoutMs, opts.UDSRetries)

	if err := client.Open(); err != nil {
		return newScanError("Adapter connection failed", err)
	}

	rt.UpdateState(func(s *appstate.AppState) {
		s.AdapterConnected = true
		s.Phase = appstate.PhaseIdentifying
		s.Progress = &appstate.ProgressInfo{Stage: "identifying", Percent: 18, Message: "Reading VIN"}
	})

	vin, err := client.ReadVIN(0x7E0, 0x7E8)
	if err != nil {
		vin, err = client.ReadVIN(0x7DF, 0x7E8)
	}
	if err != nil {
		return newScanError("VIN read failed", err)
	}

	rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
		Message: "VIN read", Payload: map[string]interface{}{"vin": vin}})
	if info, ok := discovery.DecodeVIN(vin); ok {
		rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "info", Kind: applog.KindProtocol,
			Message: "VIN decode", Payload: map[string]interface{}{"wmi": info.WMI, "year": info.Year}})
	}

	rt.UpdateState(func(s *appstate.AppState) {
		v := vin
		s.VIN = &v
		s.Phase = appstate.PhaseDiscovering
		s.Progress = &appstate.ProgressInfo{Stage: "discovering", Percent: 35, Message: "Discovering modules"}
	})

	modules := discovery.DiscoverModules(client, opts.ExtraCandidates)
	rt.UpdateState(func(s *appstate.AppState) {
		s.Modules = modules
		s.Topology = topology.Build(s.Modules)
		s.Progress = &appstate.ProgressInfo{Stage: "discovering", Percent: 55, Message: fmt.Sprintf("Discovered %d modules", len(s.Modules))}
	})

	rt.UpdateState(func(s *appstate.AppState) {
		s.Phase = appstate.PhaseScanningDtc
		s.Progress = &appstate.ProgressInfo{Stage: "scanning", Percent: 65, Message: "Reading DTCs"}
	})

	dtcsMap := make(map[string][]appstate.DtcInfo)
	moduleCount := len(modules)
	if moduleCount == 0 {
		moduleCount = 1
	}
	for index, m := range modules {
		dtcs, err := client.ReadDTCs(m.TxID, m.RxID)
		if err != nil {
			rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "warn", Kind: applog.KindProtocol,
				Message: "DTC read failed", Payload: map[string]interface{}{"module": m.ID, "error": err.Error()}})
		} else {
			dtcsMap[m.ID] = toAppstateDtcs(dtcs)
		}

		percent := 65 + ((index+1)*30)/moduleCount
		snapshotDtcs := cloneDtcMap(dtcsMap)
		rt.UpdateState(func(s *appstate.AppState) {
			s.Dtcs = snapshotDtcs
			annotateDtcCounts(s)
			s.Progress = &appstate.ProgressInfo{Stage: "scanning", Percent: uint8(percent), Message: fmt.Sprintf("Scanned %s", m.Name)}
		})
	}

	rt.SetTransport(client.IntoTransport())
	finishSession(rt, opts)
	return nil
}

func finishSession(rt *runtime.Runtime, opts Options) {
	rt.UpdateState(func(s *appstate.AppState) {
		s.Phase = appstate.PhaseReady
		s.Progress = nil
	})

	snapshot := rt.Snapshot()
	dtcCount := 0
	for _, items := range snapshot.Dtcs {
		dtcCount += len(items)
	}
	sessionID := ""
	if snapshot.SessionID != nil {
		sessionID = *snapshot.SessionID
	}
	summary := appstate.SessionSummary{
		SessionID:   sessionID,
		Timestamp:   time.Now().UTC(),
		VIN:         snapshot.VIN,
		ModuleCount: len(snapshot.Modules),
		DtcCount:    dtcCount,
	}

	if err := persistence.SaveLastSession(opts.AppDataDir, summary); err != nil {
		rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "warn", Kind: applog.KindSystem,
			Message: "Failed to save session summary", Payload: map[string]interface{}{"error": err.Error()}})
	}

	if opts.HistoryStore != nil {
		if err := opts.HistoryStore.SaveSession(summary, snapshot.Dtcs); err != nil {
			rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "warn", Kind: applog.KindSystem,
				Message: "Failed to save session history", Payload: map[string]interface{}{"error": err.Error()}})
		}
	}

	if opts.TelemetryStore != nil {
		vin := ""
		if snapshot.VIN != nil {
			vin = *snapshot.VIN
		}
		at := time.Now().UTC()
		for _, module := range snapshot.Modules {
			if err := opts.TelemetryStore.WriteModuleScan(vin, module, at); err != nil {
				rt.LogEvent(applog.Event{Timestamp: time.Now().UTC(), Level: "warn", Kind: applog.KindSystem,
					Message: "Failed to write module scan telemetry", Payload: map[string]interface{}{"module": module.ID, "error": err.Error()}})
			}
		}
	}

	rt.UpdateState(func(s *appstate.AppState) {
		s.LastSession = &summary
	})
}

func sleepIf(opts Options, d time.Duration) {
	if opts.SimulationDelays {
		time.Sleep(d)
	}
}

func cloneDtcMap(in map[string][]appstate.DtcInfo) map[string][]appstate.DtcInfo {
	out := make(map[string][]appstate.DtcInfo, len(in))
	for k, v := range in {
		out[k] = append([]appstate.DtcInfo(nil), v...)
	}
	return out
}

func annotateDtcCounts(s *appstate.AppState) {
	for i := range s.Modules {
		if dtcs, ok := s.Dtcs[s.Modules[i].ID]; ok {
			s.Modules[i].DtcCount = len(dtcs)
		}
	}
}

func toAppstateDtcs(in []uds.Dtc) []appstate.DtcInfo {
	out := make([]appstate.DtcInfo, len(in))
	for i, d := range in {
		out[i] = appstate.DtcInfo{Code: d.Code, Description: d.Description, Status: d.Status}
	}
	return out
}
