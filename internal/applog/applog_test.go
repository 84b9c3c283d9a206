package applog

import (
	"os"
	"strings"
	"testing"

	"canscan/internal/transport"
)

func TestOpenWritesJSONLAndReadTail(t *testing.T) {
	dir, err := os.MkdirTemp("", "applog-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	session, id, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if id == "" {
		t.Error("expected non-empty session id")
	}
	if !strings.Contains(session.Path(), id) {
		t.Errorf("path %q does not contain session id %q", session.Path(), id)
	}

	for i := 0; i < 5; i++ {
		session.Log(Event{Kind: KindSystem, Level: "info", Message: "tick"})
	}

	tail, err := session.ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	lines := strings.Split(tail, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestLogFrameImplementsFrameSink(t *testing.T) {
	dir, err := os.MkdirTemp("", "applog-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	session, _, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	session.LogFrame("TX", transport.Frame{ID: 0x7E0, Data: []byte{0x02, 0x10, 0x01}})

	tail, err := session.ReadTail(1)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if !strings.Contains(tail, "0x7E0") {
		t.Errorf("expected canonical id in log line, got %s", tail)
	}
}

func TestCopyTo(t *testing.T) {
	dir, err := os.MkdirTemp("", "applog-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	session, _, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	session.Log(Event{Kind: KindSystem, Message: "hello"})
	session.Close()

	dest := dir + "/exported.jsonl"
	if err := session.CopyTo(dest); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("exported log missing expected content: %s", data)
	}
}
