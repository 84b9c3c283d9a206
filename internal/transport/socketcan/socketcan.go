// Package socketcan implements the Transport contract over a Linux
// SocketCAN interface using github.com/brutella/can. It is an alternative
// native path to the J2534 FFI transport for hosts where a vendor
// pass-through DLL isn't available but a CAN interface (real or virtual,
// e.g. vcan0) is.
package socketcan

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"

	"canscan/internal/transport"
)

// frameHandler forwards every frame brutella/can dispatches into a
// buffered channel the Transport can poll with a deadline.
type frameHandler struct {
	frames chan can.Frame
}

func (h *frameHandler) Handle(frame can.Frame) {
	select {
	case h.frames <- frame:
	default:
		// Drop the frame rather than block the bus dispatch loop; a full
		// buffer means the caller isn't keeping up with RX traffic.
	}
}

// Transport binds to a named SocketCAN interface (e.g. "can0", "vcan0").
type Transport struct {
	ifaceName string
	mu        sync.Mutex
	bus       *can.Bus
	handler   *frameHandler
	open      bool
}

// New returns a transport bound to the given SocketCAN interface name.
func New(ifaceName string) *Transport {
	return &Transport{ifaceName: ifaceName}
}

func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return nil
	}
	bus, err := can.NewBusForInterfaceWithName(t.ifaceName)
	if err != nil {
		return fmt.Errorf("socketcan: open %s: %w", t.ifaceName, err)
	}
	handler := &frameHandler{frames: make(chan can.Frame, 256)}
	bus.Subscribe(handler)
	go func() {
		_ = bus.ConnectAndPublish()
	}()
	t.bus = bus
	t.handler = handler
	t.open = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	err := t.bus.Disconnect()
	t.open = false
	return err
}

func (t *Transport) Send(frame transport.Frame) error {
	t.mu.Lock()
	bus, open := t.bus, t.open
	t.mu.Unlock()
	if !open {
		return transport.ErrNotOpen
	}
	padded := transport.PadTo8(frame.Data)
	out := can.Frame{
		ID:     frame.ID,
		Length: uint8(len(frame.Data)),
		Flags:  0,
		Res0:   0,
		Res1:   0,
		Data:   padded,
	}
	if frame.Extended {
		out.ID |= 0x80000000
	}
	return bus.Publish(out)
}

func (t *Transport) Recv(timeoutMs uint64) (*transport.Frame, error) {
	t.mu.Lock()
	handler, open := t.handler, t.open
	t.mu.Unlock()
	if !open {
		return nil, transport.ErrNotOpen
	}
	select {
	case frame := <-handler.frames:
		id := frame.ID &^ 0x80000000
		return &transport.Frame{
			ID:       id,
			Data:     append([]byte(nil), frame.Data[:frame.Length]...),
			Extended: frame.ID&0x80000000 != 0,
		}, nil
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return nil, nil
	}
}

func (t *Transport) SetFilters(filters []transport.Filter) error { return nil }
func (t *Transport) SetBaud(bps uint32) error                    { return nil }
func (t *Transport) SetBus(bus transport.BusType) error          { return nil }
func (t *Transport) SetTiming(cfg transport.TimingConfig) error  { return nil }

var _ transport.Transport = (*Transport)(nil)
