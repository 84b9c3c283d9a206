package uds

import (
	"testing"
	"time"

	"canscan/internal/transport"
)

func TestDecodeDTC(t *testing.T) {
	cases := []struct {
		b0, b1, b2 byte
		want       string
	}{
		{0x01, 0x43, 0x00, "P014300"},
		{0xC1, 0x04, 0x35, "U010435"},
	}
	for _, c := range cases {
		got := DecodeDTC(c.b0, c.b1, c.b2)
		if got != c.want {
			t.Errorf("DecodeDTC(%02X %02X %02X) = %s, want %s", c.b0, c.b1, c.b2, got, c.want)
		}
	}
}

func TestClientReadVIN(t *testing.T) {
	sim := transport.NewSimTransport()
	sim.Open()
	defer sim.Close()

	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x10, 0x14, 0x62, 0xF1, 0x90, 0x31, 0x48, 0x47}})
	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x21, 0x43, 0x4D, 0x38, 0x32, 0x36, 0x33, 0x33}})
	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x22, 0x41, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36}})

	client := New(sim, 200, 0)
	vin, err := client.ReadVIN(0x7E0, 0x7E8)
	if err != nil {
		t.Fatalf("ReadVIN: %v", err)
	}
	want := "1HGCM82633A123456"
	if vin != want {
		t.Errorf("got %q, want %q", vin, want)
	}
}

func TestClientReadDTCsSkipsPadding(t *testing.T) {
	sim := transport.NewSimTransport()
	sim.Open()
	defer sim.Close()

	// 8-byte response: 59 02, one DTC triplet, then an all-zero padding triplet.
	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x10, 0x08, 0x59, 0x02, 0x01, 0x43, 0x00, 0x00}})
	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x21, 0x00, 0x00, 0, 0, 0, 0, 0}})

	client := New(sim, 200, 0)
	dtcs, err := client.ReadDTCs(0x7E0, 0x7E8)
	if err != nil {
		t.Fatalf("ReadDTCs: %v", err)
	}
	if len(dtcs) != 1 {
		t.Fatalf("got %d dtcs, want 1", len(dtcs))
	}
	if dtcs[0].Code != "P014300" {
		t.Errorf("got code %s, want P014300", dtcs[0].Code)
	}
}

func TestClientClearDTCs(t *testing.T) {
	sim := transport.NewSimTransport()
	sim.Open()
	defer sim.Close()
	sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x01, 0x54, 0, 0, 0, 0, 0, 0}})

	client := New(sim, 200, 0)
	if err := client.ClearDTCs(0x7E0, 0x7E8); err != nil {
		t.Fatalf("ClearDTCs: %v", err)
	}
}

func TestClientRequestRetriesOnTimeout(t *testing.T) {
	sim := transport.NewSimTransport()
	sim.Open()
	defer sim.Close()
	// First attempt times out (no frames queued during its 300ms window),
	// second succeeds on the frame queued at 400ms.
	go func() {
		time.Sleep(400 * time.Millisecond)
		sim.PushFrame(transport.Frame{ID: 0x7E8, Data: []byte{0x02, 0x7F, 0x3E, 0, 0, 0, 0, 0}})
	}()

	client := New(sim, 300, 1)
	if err := client.TesterPresent(0x7E0, 0x7E8); err != nil {
		t.Fatalf("TesterPresent: %v", err)
	}
}
