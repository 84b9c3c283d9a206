package transport

import "fmt"

// FrameSink receives one notification per frame observed by a
// LoggingTransport. direction is "TX" or "RX".
type FrameSink interface {
	LogFrame(direction string, frame Frame)
}

// LoggingTransport wraps any Transport and reports every successful Send
// and every non-nil Recv to a FrameSink, without altering return values or
// timing semantics beyond the cost of the notification itself.
type LoggingTransport struct {
	inner Transport
	sink  FrameSink
}

// NewLoggingTransport wraps inner, reporting frame activity to sink.
func NewLoggingTransport(inner Transport, sink FrameSink) *LoggingTransport {
	return &LoggingTransport{inner: inner, sink: sink}
}

func (t *LoggingTransport) Open() error  { return t.inner.Open() }
func (t *LoggingTransport) Close() error { return t.inner.Close() }

func (t *LoggingTransport) Send(frame Frame) error {
	if err := t.inner.Send(frame); err != nil {
		return err
	}
	t.sink.LogFrame("TX", frame)
	return nil
}

func (t *LoggingTransport) Recv(timeoutMs uint64) (*Frame, error) {
	frame, err := t.inner.Recv(timeoutMs)
	if err != nil {
		return nil, err
	}
	if frame != nil {
		t.sink.LogFrame("RX", *frame)
	}
	return frame, nil
}

func (t *LoggingTransport) SetFilters(filters []Filter) error { return t.inner.SetFilters(filters) }
func (t *LoggingTransport) SetBaud(bps uint32) error          { return t.inner.SetBaud(bps) }
func (t *LoggingTransport) SetBus(bus BusType) error          { return t.inner.SetBus(bus) }
func (t *LoggingTransport) SetTiming(cfg TimingConfig) error  { return t.inner.SetTiming(cfg) }

// CanonicalID formats a CAN arbitration id the way module ids and log
// payloads render it throughout the scanner: "0x%03X".
func CanonicalID(id uint32) string {
	return fmt.Sprintf("0x%03X", id)
}

var _ Transport = (*LoggingTransport)(nil)
