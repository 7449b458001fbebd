package rabbitmq

import (
	"sync/atomic"
)

// MetricsCollector collects metrics for client operations. Methods are called
// with the connection lock held and must not call back into the connection.
type MetricsCollector interface {
	// Connection metrics
	ConnectionCreated()
	ConnectionClosed()
	ConnectionError(err error)

	// Channel metrics
	ChannelCreated()
	ChannelClosed()
	ChannelError(err error)

	// Message metrics
	MessagePublished()
	MessageConsumed()
	MessageAcked()
	MessageNacked()
	MessageRejected()
	MessageReturned()

	// Publisher confirm metrics
	ConfirmReceived(ack bool)

	// Frame metrics, size is the encoded frame size in bytes
	FrameSent(size int)
	FrameReceived(size int)
}

// MetricsSnapshot is a point in time copy of a StandardMetricsCollector
type MetricsSnapshot struct {
	ConnectionsCreated int64
	ConnectionsClosed  int64
	ConnectionErrors   int64

	ChannelsCreated int64
	ChannelsClosed  int64
	ChannelErrors   int64

	MessagesPublished int64
	MessagesConsumed  int64
	MessagesAcked     int64
	MessagesNacked    int64
	MessagesRejected  int64
	MessagesReturned  int64

	ConfirmsAcked  int64
	ConfirmsNacked int64

	FramesSent     int64
	FramesReceived int64
	BytesSent      int64
	BytesReceived  int64
}

type counter int

const (
	connectionsCreated counter = iota
	connectionsClosed
	connectionErrors
	channelsCreated
	channelsClosed
	channelErrors
	messagesPublished
	messagesConsumed
	messagesAcked
	messagesNacked
	messagesRejected
	messagesReturned
	confirmsAcked
	confirmsNacked
	framesSent
	framesReceived
	bytesSent
	bytesReceived
	numCounters
)

// StandardMetricsCollector keeps in-process counters, safe for concurrent
// use by any number of connections
type StandardMetricsCollector struct {
	counters [numCounters]atomic.Int64
}

// NewStandardMetricsCollector creates a new standard metrics collector
func NewStandardMetricsCollector() *StandardMetricsCollector {
	return &StandardMetricsCollector{}
}

func (m *StandardMetricsCollector) inc(c counter) { m.counters[c].Add(1) }

func (m *StandardMetricsCollector) ConnectionCreated()    { m.inc(connectionsCreated) }
func (m *StandardMetricsCollector) ConnectionClosed()     { m.inc(connectionsClosed) }
func (m *StandardMetricsCollector) ConnectionError(error) { m.inc(connectionErrors) }
func (m *StandardMetricsCollector) ChannelCreated()       { m.inc(channelsCreated) }
func (m *StandardMetricsCollector) ChannelClosed()        { m.inc(channelsClosed) }
func (m *StandardMetricsCollector) ChannelError(error)    { m.inc(channelErrors) }
func (m *StandardMetricsCollector) MessagePublished()     { m.inc(messagesPublished) }
func (m *StandardMetricsCollector) MessageConsumed()      { m.inc(messagesConsumed) }
func (m *StandardMetricsCollector) MessageAcked()         { m.inc(messagesAcked) }
func (m *StandardMetricsCollector) MessageNacked()        { m.inc(messagesNacked) }
func (m *StandardMetricsCollector) MessageRejected()      { m.inc(messagesRejected) }
func (m *StandardMetricsCollector) MessageReturned()      { m.inc(messagesReturned) }

func (m *StandardMetricsCollector) ConfirmReceived(ack bool) {
	if ack {
		m.inc(confirmsAcked)
	} else {
		m.inc(confirmsNacked)
	}
}

func (m *StandardMetricsCollector) FrameSent(size int) {
	m.inc(framesSent)
	m.counters[bytesSent].Add(int64(size))
}

func (m *StandardMetricsCollector) FrameReceived(size int) {
	m.inc(framesReceived)
	m.counters[bytesReceived].Add(int64(size))
}

// Snapshot returns the current counter values. Counters are read one by one,
// so a snapshot taken during traffic is not atomic as a whole.
func (m *StandardMetricsCollector) Snapshot() MetricsSnapshot {
	load := func(c counter) int64 { return m.counters[c].Load() }
	return MetricsSnapshot{
		ConnectionsCreated: load(connectionsCreated),
		ConnectionsClosed:  load(connectionsClosed),
		ConnectionErrors:   load(connectionErrors),
		ChannelsCreated:    load(channelsCreated),
		ChannelsClosed:     load(channelsClosed),
		ChannelErrors:      load(channelErrors),
		MessagesPublished:  load(messagesPublished),
		MessagesConsumed:   load(messagesConsumed),
		MessagesAcked:      load(messagesAcked),
		MessagesNacked:     load(messagesNacked),
		MessagesRejected:   load(messagesRejected),
		MessagesReturned:   load(messagesReturned),
		ConfirmsAcked:      load(confirmsAcked),
		ConfirmsNacked:     load(confirmsNacked),
		FramesSent:         load(framesSent),
		FramesReceived:     load(framesReceived),
		BytesSent:          load(bytesSent),
		BytesReceived:      load(bytesReceived),
	}
}

// Reset zeroes every counter
func (m *StandardMetricsCollector) Reset() {
	for i := range m.counters {
		m.counters[i].Store(0)
	}
}

// NoOpMetricsCollector is a metrics collector that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) ConnectionCreated()        {}
func (n *NoOpMetricsCollector) ConnectionClosed()         {}
func (n *NoOpMetricsCollector) ConnectionError(err error) {}
func (n *NoOpMetricsCollector) ChannelCreated()           {}
func (n *NoOpMetricsCollector) ChannelClosed()            {}
func (n *NoOpMetricsCollector) ChannelError(err error)    {}
func (n *NoOpMetricsCollector) MessagePublished()         {}
func (n *NoOpMetricsCollector) MessageConsumed()          {}
func (n *NoOpMetricsCollector) MessageAcked()             {}
func (n *NoOpMetricsCollector) MessageNacked()            {}
func (n *NoOpMetricsCollector) MessageRejected()          {}
func (n *NoOpMetricsCollector) MessageReturned()          {}
func (n *NoOpMetricsCollector) ConfirmReceived(ack bool)  {}
func (n *NoOpMetricsCollector) FrameSent(size int)        {}
func (n *NoOpMetricsCollector) FrameReceived(size int)    {}

// NewNoOpMetricsCollector creates a no-op metrics collector
func NewNoOpMetricsCollector() *NoOpMetricsCollector {
	return &NoOpMetricsCollector{}
}
