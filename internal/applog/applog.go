// Package applog writes the per-session JSONL diagnostic trail: one line
// of structured JSON per logged event, alongside structured logrus output
// for operational messages.
package applog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"canscan/internal/transport"
)

// Kind classifies a logged event.
type Kind string

const (
	KindTransport Kind = "transport"
	KindProtocol  Kind = "protocol"
	KindSystem    Kind = "system"
)

// Event is one JSONL record.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Level     string      `json:"level"`
	Kind      Kind        `json:"kind"`
	Message   string      `json:"message"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Session appends Events to a single session's JSONL file under
// <appData>/logs/session_<id>.jsonl. A write failure is swallowed: a
// session log is diagnostic, not load-bearing, and must never abort a scan.
type Session struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates (or appends to) the log file for a fresh session id under
// appDataDir, generating a new uuid for the session's own identity.
func Open(appDataDir string) (*Session, string, error) {
	sessionID := uuid.NewString()
	logsDir := filepath.Join(appDataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("applog: failed to create logs dir: %w", err)
	}
	path := filepath.Join(logsDir, fmt.Sprintf("session_%s.jsonl", sessionID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("applog: failed to open log file: %w", err)
	}
	return &Session{file: file, path: path}, sessionID, nil
}

// Path returns the on-disk path of the session log.
func (s *Session) Path() string { return s.path }

// Log appends one event as a single JSON line. Marshal or write failures
// are dropped silently, matching the best-effort contract of a diagnostic
// trail that must never block or fail a scan.
func (s *Session) Log(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	_, _ = s.file.Write(append(line, '\n'))
}

// CopyTo copies the full session log to destination.
func (s *Session) CopyTo(destination string) error {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("applog: failed to export logs: %w", err)
	}
	if err := os.WriteFile(destination, data, 0644); err != nil {
		return fmt.Errorf("applog: failed to export logs: %w", err)
	}
	return nil
}

// ReadTail returns the last n lines of the session log, in original order.
func (s *Session) ReadTail(n int) (string, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("applog: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("applog: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// LogFrame implements transport.FrameSink, recording every CAN frame a
// LoggingTransport observes as a transport-kind event.
func (s *Session) LogFrame(direction string, frame transport.Frame) {
	s.Log(Event{
		Timestamp: time.Now().UTC(),
		Level:     "debug",
		Kind:      KindTransport,
		Message:   fmt.Sprintf("%s CAN frame", direction),
		Payload: map[string]interface{}{
			"id":       transport.CanonicalID(frame.ID),
			"data":     frame.Data,
			"extended": frame.Extended,
		},
	})
}

// Close flushes and closes the underlying file.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ transport.FrameSink = (*Session)(nil)
