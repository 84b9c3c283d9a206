// Package appstate holds the scanner's shared state model: the phase state
// machine, module and DTC records, and the AppSnapshot shape the frontend
// command surface and websocket broadcasts serialize.
package appstate

import "time"

// Phase is a step in the connect-identify-discover-scan state machine.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseIdentifying  Phase = "identifying"
	PhaseDiscovering  Phase = "discovering"
	PhaseScanningDtc  Phase = "scanningDtc"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

// CanRestart reports whether a new scan may begin from this phase. Any
// in-flight phase must finish or fail first.
func (p Phase) CanRestart() bool {
	return p == PhaseReady || p == PhaseError || p == PhaseDisconnected
}

// TransportMode identifies which Transport implementation backs a session.
type TransportMode string

const (
	TransportSimulation TransportMode = "simulation"
	TransportJ2534      TransportMode = "j2534"
	TransportSocketCAN  TransportMode = "socketcan"
)

// ModuleStatus is the outcome of the most recent contact with a module.
type ModuleStatus string

const (
	ModuleOk         ModuleStatus = "ok"
	ModuleNoResponse ModuleStatus = "noResponse"
	ModuleError      ModuleStatus = "error"
)

// ModuleInfo is one discovered ECU.
type ModuleInfo struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Bus      string       `json:"bus"`
	Category string       `json:"category"`
	TxID     uint32       `json:"txId"`
	RxID     uint32       `json:"rxId"`
	Status   ModuleStatus `json:"status"`
	DtcCount int          `json:"dtcCount"`
}

// DtcInfo is one decoded diagnostic trouble code.
type DtcInfo struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// BusInfo groups module ids that share a physical or logical bus segment.
type BusInfo struct {
	Name    string   `json:"name"`
	Modules []string `json:"modules"`
}

// TopologyGraph is the bus-grouped view of discovered modules.
type TopologyGraph struct {
	Buses []BusInfo `json:"buses"`
}

// ProgressInfo describes an in-flight long-running step.
type ProgressInfo struct {
	Stage   string `json:"stage"`
	Percent uint8  `json:"percent"`
	Message string `json:"message"`
}

// ErrorInfo describes the most recent failure.
type ErrorInfo struct {
	Summary string `json:"summary"`
	Details string `json:"details"`
}

// SessionSummary is the small persisted record of a completed session.
type SessionSummary struct {
	SessionID   string    `json:"sessionId"`
	Timestamp   time.Time `json:"timestamp"`
	VIN         *string   `json:"vin,omitempty"`
	ModuleCount int       `json:"moduleCount"`
	DtcCount    int       `json:"dtcCount"`
}

// AppSnapshot is the read-only view broadcast to the command surface and
// over the app://snapshot channel.
type AppSnapshot struct {
	Phase            Phase                `json:"phase"`
	Transport        TransportMode        `json:"transport"`
	AdapterConnected bool                 `json:"adapterConnected"`
	VIN              *string              `json:"vin,omitempty"`
	Modules          []ModuleInfo         `json:"modules"`
	Dtcs             map[string][]DtcInfo `json:"dtcs"`
	Topology         TopologyGraph        `json:"topology"`
	Progress         *ProgressInfo        `json:"progress,omitempty"`
	LastError        *ErrorInfo           `json:"lastError,omitempty"`
	SessionID        *string              `json:"sessionId,omitempty"`
	LogsPath         *string              `json:"logsPath,omitempty"`
	LastSession      *SessionSummary      `json:"lastSession,omitempty"`
}

// AppState is the mutable backing store for AppSnapshot. Callers hold the
// owning lock (see internal/runtime) before mutating or snapshotting it.
type AppState struct {
	Phase            Phase
	Transport        TransportMode
	AdapterConnected bool
	VIN              *string
	Modules          []ModuleInfo
	Dtcs             map[string][]DtcInfo
	Topology         TopologyGraph
	Progress         *ProgressInfo
	LastError        *ErrorInfo
	SessionID        *string
	LogsPath         *string
	LastSession      *SessionSummary
}

// New returns a fresh state in the Disconnected phase, defaulted to the
// simulation transport.
func New() *AppState {
	return &AppState{
		Phase:     PhaseDisconnected,
		Transport: TransportSimulation,
		Dtcs:      make(map[string][]DtcInfo),
		Topology:  TopologyGraph{Buses: []BusInfo{}},
	}
}

// Snapshot copies the current state into an immutable AppSnapshot.
func (s *AppState) Snapshot() AppSnapshot {
	dtcs := make(map[string][]DtcInfo, len(s.Dtcs))
	for k, v := range s.Dtcs {
		dtcs[k] = append([]DtcInfo(nil), v...)
	}
	return AppSnapshot{
		Phase:            s.Phase,
		Transport:        s.Transport,
		AdapterConnected: s.AdapterConnected,
		VIN:              s.VIN,
		Modules:          append([]ModuleInfo(nil), s.Modules...),
		Dtcs:             dtcs,
		Topology:         s.Topology,
		Progress:         s.Progress,
		LastError:        s.LastError,
		SessionID:        s.SessionID,
		LogsPath:         s.LogsPath,
		LastSession:      s.LastSession,
	}
}
