// Package j2534 implements the Transport contract over a native SAE J2534
// pass-through driver, loaded dynamically at runtime (no cgo) via
// github.com/ebitengine/purego. Exact vendor semantics are treated as a
// black box per the scanner spec: this package resolves the handful of
// PassThru* entry points every J2534 DLL exports and adapts them to
// transport.Transport.
package j2534

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ebitengine/purego"

	"canscan/internal/transport"
)

const (
	statusNoError  = 0x00
	errTimeout     = 0x0A
	protocolCAN    = 0x00000005
	passFilter     = 0x00000001
	can29BitID     = 0x00000100
	msgDataCap     = 4128
)

// passThruMsg mirrors the PASSTHRU_MSG struct every J2534 DLL expects.
type passThruMsg struct {
	ProtocolID     uint32
	RxStatus       uint32
	TxFlags        uint32
	Timestamp      uint32
	DataSize       uint32
	ExtraDataIndex uint32
	Data           [msgDataCap]byte
}

// library holds the resolved function pointers for one loaded DLL.
type library struct {
	handle       uintptr
	open         func(name uintptr, deviceID *uint32) uint32
	close        func(deviceID uint32) uint32
	connect      func(deviceID, protocolID, flags, baud uint32, channelID *uint32) uint32
	disconnect   func(channelID uint32) uint32
	readMsgs     func(channelID uint32, msgs *passThruMsg, numMsgs *uint32, timeout uint32) uint32
	writeMsgs    func(channelID uint32, msgs *passThruMsg, numMsgs *uint32, timeout uint32) uint32
	startFilter  func(channelID, filterType uint32, mask, pattern, flow *passThruMsg, filterID *uint32) uint32
	hasStartFilt bool
}

func loadLibrary(path string) (*library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("j2534: failed to load driver %q: %w", path, err)
	}

	lib := &library{handle: handle}
	purego.RegisterLibFunc(&lib.open, handle, "PassThruOpen")
	purego.RegisterLibFunc(&lib.close, handle, "PassThruClose")
	purego.RegisterLibFunc(&lib.connect, handle, "PassThruConnect")
	purego.RegisterLibFunc(&lib.disconnect, handle, "PassThruDisconnect")
	purego.RegisterLibFunc(&lib.readMsgs, handle, "PassThruReadMsgs")
	purego.RegisterLibFunc(&lib.writeMsgs, handle, "PassThruWriteMsgs")

	// PassThruStartMsgFilter is optional: some pass-through stacks only
	// implement the mandatory subset. Registering against a missing
	// symbol panics inside purego, so defer this one and recover.
	func() {
		defer func() {
			if recover() != nil {
				lib.hasStartFilt = false
			}
		}()
		purego.RegisterLibFunc(&lib.startFilter, handle, "PassThruStartMsgFilter")
		lib.hasStartFilt = true
	}()

	return lib, nil
}

// Transport implements transport.Transport over a dynamically loaded
// J2534 pass-through DLL.
type Transport struct {
	dllPath   string
	lib       *library
	deviceID  uint32
	channelID uint32
	baud      uint32
	open      bool
}

// New returns a transport bound to dllPath. If dllPath is empty, Open
// resolves the driver via Probe's search order.
func New(dllPath string) *Transport {
	return &Transport{dllPath: dllPath, baud: 500_000}
}

// Probe locates a J2534 driver without loading it, honoring J2534_DLL and
// falling back to the fixed vendor install-path candidates.
func Probe() (string, error) {
	if path := os.Getenv("J2534_DLL"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	candidates := []string{
		`C:\Program Files (x86)\vLinker\J2534.dll`,
		`C:\Program Files\vLinker\J2534.dll`,
		`C:\Windows\System32\J2534.dll`,
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("J2534 DLL not found; install vendor drivers or set J2534_DLL")
}

func (t *Transport) resolvePath() (string, error) {
	if t.dllPath != "" {
		return filepath.Clean(t.dllPath), nil
	}
	return Probe()
}

func (t *Transport) Open() error {
	if t.open {
		return nil
	}
	path, err := t.resolvePath()
	if err != nil {
		return err
	}
	lib, err := loadLibrary(path)
	if err != nil {
		return err
	}
	t.lib = lib

	var deviceID uint32
	if status := lib.open(0, &deviceID); status != statusNoError {
		return fmt.Errorf("j2534: PassThruOpen failed: status %d", status)
	}

	var channelID uint32
	if status := lib.connect(deviceID, protocolCAN, 0, t.baud, &channelID); status != statusNoError {
		lib.close(deviceID)
		return fmt.Errorf("j2534: PassThruConnect failed: status %d", status)
	}

	t.deviceID = deviceID
	t.channelID = channelID
	t.open = true
	return nil
}

func (t *Transport) Close() error {
	if t.lib != nil && t.open {
		t.lib.disconnect(t.channelID)
		t.lib.close(t.deviceID)
	}
	t.open = false
	return nil
}

func (t *Transport) Send(frame transport.Frame) error {
	if !t.open {
		return transport.ErrNotOpen
	}
	var msg passThruMsg
	msg.ProtocolID = protocolCAN
	if frame.Extended {
		msg.TxFlags = can29BitID
	}
	msg.DataSize = uint32(4 + len(frame.Data))
	msg.Data[0] = byte(frame.ID >> 24)
	msg.Data[1] = byte(frame.ID >> 16)
	msg.Data[2] = byte(frame.ID >> 8)
	msg.Data[3] = byte(frame.ID)
	copy(msg.Data[4:4+len(frame.Data)], frame.Data)

	numMsgs := uint32(1)
	if status := t.lib.writeMsgs(t.channelID, &msg, &numMsgs, 100); status != statusNoError {
		return fmt.Errorf("j2534: PassThruWriteMsgs failed: status %d", status)
	}
	return nil
}

func (t *Transport) Recv(timeoutMs uint64) (*transport.Frame, error) {
	if !t.open {
		return nil, transport.ErrNotOpen
	}
	var msg passThruMsg
	numMsgs := uint32(1)
	status := t.lib.readMsgs(t.channelID, &msg, &numMsgs, uint32(timeoutMs))
	if status == errTimeout || numMsgs == 0 {
		return nil, nil
	}
	if status != statusNoError {
		return nil, fmt.Errorf("j2534: PassThruReadMsgs failed: status %d", status)
	}
	if msg.DataSize < 4 {
		return nil, nil
	}
	id := uint32(msg.Data[0])<<24 | uint32(msg.Data[1])<<16 | uint32(msg.Data[2])<<8 | uint32(msg.Data[3])
	payload := make([]byte, msg.DataSize-4)
	copy(payload, msg.Data[4:msg.DataSize])
	return &transport.Frame{
		ID:          id,
		Data:        payload,
		TimestampMs: int64(msg.Timestamp),
		Extended:    msg.RxStatus&can29BitID == can29BitID,
	}, nil
}

func (t *Transport) SetFilters(filters []transport.Filter) error {
	if !t.open {
		return transport.ErrNotOpen
	}
	if !t.lib.hasStartFilt {
		return nil
	}
	for _, f := range filters {
		var mask, pattern, flow passThruMsg
		mask.ProtocolID = protocolCAN
		mask.DataSize = 4
		mask.Data[0], mask.Data[1], mask.Data[2], mask.Data[3] = byte(f.Mask>>24), byte(f.Mask>>16), byte(f.Mask>>8), byte(f.Mask)

		pattern.ProtocolID = protocolCAN
		pattern.DataSize = 4
		pattern.Data[0], pattern.Data[1], pattern.Data[2], pattern.Data[3] = byte(f.ID>>24), byte(f.ID>>16), byte(f.ID>>8), byte(f.ID)

		var filterID uint32
		status := t.lib.startFilter(t.channelID, passFilter, &mask, &pattern, &flow, &filterID)
		if status != statusNoError {
			return fmt.Errorf("j2534: PassThruStartMsgFilter failed: status %d", status)
		}
	}
	return nil
}

func (t *Transport) SetBaud(bps uint32) error {
	t.baud = bps
	return nil
}

func (t *Transport) SetBus(bus transport.BusType) error { return nil }

func (t *Transport) SetTiming(cfg transport.TimingConfig) error { return nil }

var _ transport.Transport = (*Transport)(nil)
