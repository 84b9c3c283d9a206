// Package isotp implements ISO 15765-2 segmentation and reassembly over a
// transport.Transport, for exactly one half-duplex request/response
// exchange between a tx id and an rx id per Link.
package isotp

import (
	"fmt"
	"time"

	"canscan/internal/transport"
)

const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2
	pciFlowControl      = 0x3

	maxPayloadLen = 4095

	minPollMs uint64 = 10
	maxPollMs uint64 = 250
)

// Options tunes the two documented open questions in the protocol's
// behavior. Both default to false/off, matching the baseline protocol
// this scanner ships with.
type Options struct {
	// WaitForFlowControl makes Send block after the First Frame until a
	// Flow Control frame with FS=CTS arrives, instead of blasting
	// Consecutive Frames immediately. Off by default: the adapters this
	// scanner targets are single-hop, low-latency links where blind
	// sending is reliable in practice.
	WaitForFlowControl bool
	// StrictSequence rejects a Consecutive Frame whose sequence number
	// doesn't follow the previous one (mod 16) instead of silently
	// accepting it into the reassembly buffer.
	StrictSequence bool
}

// Link drives one request/response exchange over transport t between TxID
// and RxID.
type Link struct {
	t        transport.Transport
	TxID     uint32
	RxID     uint32
	Extended bool
	Options  Options
}

// NewLink returns a Link bound to t for the given tx/rx id pair.
func NewLink(t transport.Transport, txID, rxID uint32, extended bool) *Link {
	return &Link{t: t, TxID: txID, RxID: rxID, Extended: extended}
}

// Request sends payload and waits up to timeoutMs for the full reassembled
// response.
func (l *Link) Request(payload []byte, timeoutMs uint64) ([]byte, error) {
	if err := l.send(payload); err != nil {
		return nil, err
	}
	return l.recv(timeoutMs)
}

func (l *Link) frame(data []byte) transport.Frame {
	padded := transport.PadTo8(data)
	return transport.Frame{ID: l.TxID, Data: padded[:], Extended: l.Extended}
}

func (l *Link) send(payload []byte) error {
	if len(payload) <= 7 {
		data := make([]byte, 8)
		data[0] = byte(len(payload))
		copy(data[1:], payload)
		return l.t.Send(l.frame(data))
	}

	total := len(payload)
	if total > maxPayloadLen {
		return fmt.Errorf("isotp: payload-too-large: %d bytes exceeds %d", total, maxPayloadLen)
	}

	ff := make([]byte, 8)
	ff[0] = 0x10 | byte((total>>8)&0x0F)
	ff[1] = byte(total & 0xFF)
	copy(ff[2:8], payload[0:6])
	if err := l.t.Send(l.frame(ff)); err != nil {
		return err
	}

	if l.Options.WaitForFlowControl {
		if err := l.awaitFlowControl(1000); err != nil {
			return err
		}
	}

	offset := 6
	seq := byte(1)
	for offset < total {
		chunk := total - offset
		if chunk > 7 {
			chunk = 7
		}
		cf := make([]byte, 8)
		cf[0] = 0x20 | (seq & 0x0F)
		copy(cf[1:1+chunk], payload[offset:offset+chunk])
		if err := l.t.Send(l.frame(cf)); err != nil {
			return err
		}
		offset += chunk
		seq = (seq + 1) & 0x0F
	}
	return nil
}

func (l *Link) awaitFlowControl(timeoutMs uint64) error {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		remaining := clampPoll(deadline)
		frame, err := l.t.Recv(remaining)
		if err != nil {
			return err
		}
		if frame == nil || frame.ID != l.RxID || len(frame.Data) == 0 {
			continue
		}
		if frame.Data[0]>>4 == pciFlowControl && frame.Data[0]&0x0F == 0 {
			return nil
		}
	}
	return fmt.Errorf("isotp: timeout waiting for flow control")
}

func clampPoll(deadline time.Time) uint64 {
	remaining := time.Until(deadline).Milliseconds()
	if remaining < int64(minPollMs) {
		remaining = int64(minPollMs)
	}
	if remaining > int64(maxPollMs) {
		remaining = int64(maxPollMs)
	}
	return uint64(remaining)
}

func (l *Link) recv(timeoutMs uint64) ([]byte, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	var buffer []byte
	totalLen := -1
	expectedSeq := byte(1)

	for time.Now().Before(deadline) {
		remaining := clampPoll(deadline)
		frame, err := l.t.Recv(remaining)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			continue
		}
		if frame.ID != l.RxID || len(frame.Data) == 0 {
			continue
		}

		pci := frame.Data[0] >> 4
		switch pci {
		case pciSingleFrame:
			n := int(frame.Data[0] & 0x0F)
			end := 1 + n
			if end > len(frame.Data) {
				end = len(frame.Data)
			}
			return append([]byte(nil), frame.Data[1:end]...), nil

		case pciFirstFrame:
			totalLen = (int(frame.Data[0]&0x0F) << 8) | int(frame.Data[1])
			buffer = append([]byte(nil), frame.Data[2:8]...)
			expectedSeq = 1

			fc := make([]byte, 8)
			fc[0] = 0x30
			fc[1] = 0x00
			fc[2] = 0x00
			if err := l.t.Send(l.frame(fc)); err != nil {
				return nil, err
			}

		case pciConsecutiveFrame:
			if totalLen < 0 {
				continue
			}
			seq := frame.Data[0] & 0x0F
			if l.Options.StrictSequence && seq != expectedSeq {
				return nil, fmt.Errorf("isotp: out-of-sequence consecutive frame: want %d got %d", expectedSeq, seq)
			}
			expectedSeq = (expectedSeq + 1) & 0x0F
			buffer = append(buffer, frame.Data[1:8]...)
			if len(buffer) >= totalLen {
				return buffer[:totalLen], nil
			}

		default:
			continue
		}
	}

	return nil, fmt.Errorf("isotp: timeout waiting for response")
}
