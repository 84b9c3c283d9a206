// Package uds implements the small subset of ISO 14229 UDS services this
// scanner needs: VIN read, tester-present keepalive, and DTC read/clear,
// each carried over an isotp.Link.
package uds

import (
	"fmt"
	"strings"

	"canscan/internal/isotp"
	"canscan/internal/transport"
)

// Dtc is one decoded diagnostic trouble code.
type Dtc struct {
	Code        string
	Description string
	Status      string
}

// Client drives UDS requests over a Transport, retrying the whole
// request/response cycle (new ISO-TP link each attempt) on failure.
type Client struct {
	t         transport.Transport
	timeoutMs uint64
	retries   uint8
}

// New returns a Client bound to t with the given per-attempt timeout and
// retry count (retries additional attempts beyond the first).
func New(t transport.Transport, timeoutMs uint64, retries uint8) *Client {
	return &Client{t: t, timeoutMs: timeoutMs, retries: retries}
}

// Open opens the underlying transport.
func (c *Client) Open() error { return c.t.Open() }

// Close closes the underlying transport.
func (c *Client) Close() error { return c.t.Close() }

// IntoTransport returns the underlying transport, releasing it from the
// client. Used when ownership needs to move to a different layer (a
// finished scan hands the open transport back to the runtime so clearing
// DTCs can reuse it).
func (c *Client) IntoTransport() transport.Transport { return c.t }

// ReadVIN issues the VIN read-data-by-identifier request (0x22 F1 90).
func (c *Client) ReadVIN(txID, rxID uint32) (string, error) {
	resp, err := c.request(txID, rxID, []byte{0x22, 0xF1, 0x90})
	if err != nil {
		return "", err
	}
	if len(resp) < 3 || resp[0] != 0x62 {
		return "", fmt.Errorf("uds: unexpected VIN response")
	}
	return strings.TrimSpace(string(resp[3:])), nil
}

// TesterPresent issues the tester-present keepalive (0x3E 00).
func (c *Client) TesterPresent(txID, rxID uint32) error {
	resp, err := c.request(txID, rxID, []byte{0x3E, 0x00})
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return fmt.Errorf("uds: no response to tester present")
	}
	return nil
}

// ReadDTCs issues the read-DTC-by-status-mask request with mask 0xFF
// (report all) and decodes every non-padding triplet in the response.
func (c *Client) ReadDTCs(txID, rxID uint32) ([]Dtc, error) {
	resp, err := c.request(txID, rxID, []byte{0x19, 0x02, 0xFF})
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 || resp[0] != 0x59 {
		return nil, fmt.Errorf("uds: unexpected DTC response")
	}
	var dtcs []Dtc
	for i := 2; i+3 <= len(resp); i += 3 {
		b0, b1, b2 := resp[i], resp[i+1], resp[i+2]
		if b0 == 0 && b1 == 0 && b2 == 0 {
			continue
		}
		dtcs = append(dtcs, Dtc{
			Code:        DecodeDTC(b0, b1, b2),
			Description: "DTC description unavailable",
			Status:      "active",
		})
	}
	return dtcs, nil
}

// ClearDTCs issues the clear-diagnostic-information request (0x14 FF FF FF).
func (c *Client) ClearDTCs(txID, rxID uint32) error {
	resp, err := c.request(txID, rxID, []byte{0x14, 0xFF, 0xFF, 0xFF})
	if err != nil {
		return err
	}
	if len(resp) == 0 || resp[0] != 0x54 {
		return fmt.Errorf("uds: clear DTCs failed")
	}
	return nil
}

func (c *Client) request(txID, rxID uint32, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := uint8(0); attempt <= c.retries; attempt++ {
		link := isotp.NewLink(c.t, txID, rxID, false)
		resp, err := link.Request(payload, c.timeoutMs)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("uds: request failed")
	}
	return nil, lastErr
}

// DecodeDTC converts a 3-byte UDS DTC triplet into its standard
// letter-plus-six-hex-digit form, e.g. P014300.
func DecodeDTC(b0, b1, b2 byte) string {
	raw := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	var letter byte
	switch (raw >> 22) & 0x3 {
	case 0:
		letter = 'P'
	case 1:
		letter = 'C'
	case 2:
		letter = 'B'
	default:
		letter = 'U'
	}
	codeValue := raw & 0x3FFFFF
	return fmt.Sprintf("%c%06X", letter, codeValue)
}
