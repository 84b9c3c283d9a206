// Package httpapi exposes the scanner's command surface over HTTP and
// streams snapshot updates to connected clients over a websocket, using
// gorilla/mux for routing and gorilla/websocket for the stream.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"canscan/internal/appstate"
	"canscan/internal/command"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server binds a command.Surface to an HTTP router and a snapshot
// broadcast websocket.
type Server struct {
	surface *command.Surface
	log     *log.Logger

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// NewServer returns a Server bound to surface with no websocket clients
// yet; Router builds the REST endpoints and the app://snapshot-equivalent
// "/ws" stream.
func NewServer(surface *command.Surface, logger *log.Logger) *Server {
	s := &Server{surface: surface, log: logger, clients: make(map[*websocket.Conn]bool)}
	return s
}

// Router builds the gorilla/mux router exposing this server's endpoints.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebsocket)
	router.HandleFunc("/api/snapshot", s.handleGetSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/adapter-status", s.handleGetAdapterStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/scan", s.handleStartScan).Methods(http.MethodPost)
	router.HandleFunc("/api/clear-dtcs", s.handleClearDTCs).Methods(http.MethodPost)
	router.HandleFunc("/api/logs/export", s.handleExportLogs).Methods(http.MethodPost)
	router.HandleFunc("/api/logs/tail", s.handleReadLogTail).Methods(http.MethodGet)
	return router
}

// BroadcastSnapshot pushes snapshot to every connected websocket client,
// dropping and closing any client whose write fails.
func (s *Server) BroadcastSnapshot(snapshot appstate.AppSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal snapshot")
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	initial, err := json.Marshal(s.surface.GetSnapshot())
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initial)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.GetSnapshot())
}

func (s *Server) handleGetAdapterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.GetAdapterStatus())
}

type startScanRequest struct {
	Mode           appstate.TransportMode `json:"mode"`
	SimulationPath string                 `json:"simulationPath,omitempty"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.surface.StartScan(req.Mode, req.SimulationPath); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type clearDTCsRequest struct {
	ModuleID string `json:"moduleId,omitempty"`
}

func (s *Server) handleClearDTCs(w http.ResponseWriter, r *http.Request) {
	var req clearDTCsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := s.surface.ClearDTCs(req.ModuleID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type exportLogsRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	var req exportLogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.surface.ExportLogs(req.Destination); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadLogTail(w http.ResponseWriter, r *http.Request) {
	lines := 100
	tail, err := s.surface.ReadLogTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tail": tail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
