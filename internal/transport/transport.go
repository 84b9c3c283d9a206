// Package transport defines the pluggable link-layer contract the rest of
// the scanner builds on: a CAN frame send/recv abstraction with timeouts,
// filters, bus selection, and P2 timing hints. Concrete implementations
// live in sibling packages (simulation queue, J2534 FFI, SocketCAN) plus
// the logging decorator in this package.
package transport

import "errors"

// Frame is one CAN frame as observed or sent on the wire. Data holds at
// most 8 bytes. The ISO-TP link pads the frames it builds to 8 bytes
// before sending; the SocketCAN transport pads shorter data on write, the
// J2534 transport writes Data as given.
type Frame struct {
	ID          uint32
	Data        []byte
	TimestampMs int64
	Extended    bool
}

// Filter accepts a frame when (frame.ID & Mask) == (ID & Mask).
type Filter struct {
	ID       uint32
	Mask     uint32
	Extended bool
}

// Accepts reports whether id passes this filter.
func (f Filter) Accepts(id uint32) bool {
	return id&f.Mask == f.ID&f.Mask
}

// BusType selects the physical bus a transport should bind to.
type BusType int

const (
	BusCAN BusType = iota
)

// TimingConfig carries UDS P2/P2* timing hints down to adapters that
// support configuring them.
type TimingConfig struct {
	P2Ms     uint32
	P2StarMs uint32
}

// Transport is the capability set every link-layer implementation must
// provide. Recv returns (nil, nil) on a clean timeout with no wire
// activity; it only returns an error for hard I/O failures. Send blocks
// until the frame is accepted by the driver or an error occurs. All
// operations are only valid between Open and Close.
type Transport interface {
	Open() error
	Close() error
	Send(frame Frame) error
	Recv(timeoutMs uint64) (*Frame, error)
	SetFilters(filters []Filter) error
	SetBaud(bps uint32) error
	SetBus(bus BusType) error
	SetTiming(cfg TimingConfig) error
}

// ErrNotOpen is returned by Send/Recv when called before Open or after
// Close.
var ErrNotOpen = errors.New("transport: not open")

// PadTo8 returns data padded with trailing zero bytes to exactly 8 bytes.
// It panics if data is already longer than 8 bytes; callers must validate
// payload sizes before framing.
func PadTo8(data []byte) [8]byte {
	if len(data) > 8 {
		panic("transport: frame data exceeds 8 bytes")
	}
	var out [8]byte
	copy(out[:], data)
	return out
}
