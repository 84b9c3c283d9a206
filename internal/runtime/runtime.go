// Package runtime wires together the scanner's mutable state, its
// structured loggers, and the active transport behind one shared handle
// with independently-locked cells, plus a broadcast hook used to push
// snapshots out over the command surface.
package runtime

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"canscan/internal/applog"
	"canscan/internal/appstate"
	"canscan/internal/simulation"
	"canscan/internal/transport"
)

// SnapshotFunc is invoked with every freshly derived snapshot, on the
// app://snapshot channel's behalf. httpapi wires a websocket broadcaster
// here; tests can leave it nil.
type SnapshotFunc func(appstate.AppSnapshot)

// Runtime is the one shared handle every command and scan step operates
// through. Each cell (state, session log, transport, simulation) has its
// own lock; a caller never holds one lock while acquiring another, and no
// lock is held across a transport call or a broadcast.
type Runtime struct {
	stateMu sync.Mutex
	state   *appstate.AppState

	logMu   sync.Mutex
	session *applog.Session

	transportMu sync.Mutex
	activeTransport transport.Transport

	simMu sync.Mutex
	sim   *simulation.Session

	onSnapshot SnapshotFunc

	Log *log.Logger
}

// New returns a Runtime seeded with lastSession (nil if there is none) and
// an ambient logrus logger at the given level.
func New(lastSession *appstate.SessionSummary, level log.Level) *Runtime {
	state := appstate.New()
	state.LastSession = lastSession

	logger := log.New()
	logger.SetLevel(level)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	return &Runtime{state: state, Log: logger}
}

// OnSnapshot installs the broadcast callback.
func (r *Runtime) OnSnapshot(fn SnapshotFunc) {
	r.onSnapshot = fn
}

// Snapshot returns the current state snapshot.
func (r *Runtime) Snapshot() appstate.AppSnapshot {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state.Snapshot()
}

// UpdateState applies update under the state lock, derives a fresh
// snapshot, releases the lock, then broadcasts — mutation and broadcast
// never overlap with the lock held.
func (r *Runtime) UpdateState(update func(*appstate.AppState)) appstate.AppSnapshot {
	r.stateMu.Lock()
	update(r.state)
	snapshot := r.state.Snapshot()
	r.stateMu.Unlock()

	if r.onSnapshot != nil {
		r.onSnapshot(snapshot)
	}
	return snapshot
}

// SetSession installs the active session logger, replacing any prior one.
func (r *Runtime) SetSession(session *applog.Session) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	r.session = session
}

// Session returns the active session logger, or nil if none is open.
func (r *Runtime) Session() *applog.Session {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return r.session
}

// LogEvent appends event to the active session log, if one is open, and
// mirrors it at the matching level on the ambient logrus logger.
func (r *Runtime) LogEvent(event applog.Event) {
	r.logMu.Lock()
	session := r.session
	r.logMu.Unlock()

	if session != nil {
		session.Log(event)
	}

	entry := r.Log.WithField("kind", event.Kind)
	switch event.Level {
	case "error":
		entry.Error(event.Message)
	case "warn":
		entry.Warn(event.Message)
	case "debug":
		entry.Debug(event.Message)
	default:
		entry.Info(event.Message)
	}
}

// SetTransport installs the active transport, replacing any prior one.
func (r *Runtime) SetTransport(t transport.Transport) {
	r.transportMu.Lock()
	defer r.transportMu.Unlock()
	r.activeTransport = t
}

// TakeTransport removes and returns the active transport, or nil if none
// is set. Used by commands that need exclusive, temporary ownership (e.g.
// clearing DTCs over the already-open link).
func (r *Runtime) TakeTransport() transport.Transport {
	r.transportMu.Lock()
	defer r.transportMu.Unlock()
	t := r.activeTransport
	r.activeTransport = nil
	return t
}

// SetSimulation installs the loaded simulation fixture for the current
// session.
func (r *Runtime) SetSimulation(s *simulation.Session) {
	r.simMu.Lock()
	defer r.simMu.Unlock()
	r.sim = s
}

// Simulation returns the loaded simulation fixture, if any.
func (r *Runtime) Simulation() *simulation.Session {
	r.simMu.Lock()
	defer r.simMu.Unlock()
	return r.sim
}
