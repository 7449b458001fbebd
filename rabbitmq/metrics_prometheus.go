package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports client metrics as Prometheus counters and
// gauges.
type PrometheusCollector struct {
	Connections      prometheus.Gauge
	TotalConnections prometheus.Counter
	ConnectionErrors prometheus.Counter

	Channels      prometheus.Gauge
	TotalChannels prometheus.Counter
	ChannelErrors prometheus.Counter

	Messages *prometheus.CounterVec
	Confirms *prometheus.CounterVec

	SentFrames     prometheus.Counter
	ReceivedFrames prometheus.Counter
	SentBytes      prometheus.Counter
	ReceivedBytes  prometheus.Counter
}

// NewPrometheusCollector creates a collector whose metric names start with
// namespace. Call MustRegister to expose it.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open connections.",
		}),
		TotalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of connections opened.",
		}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Number of connections closed by an error.",
		}),

		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Number of open channels.",
		}),
		TotalChannels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_total",
			Help:      "Total number of channels opened.",
		}),
		ChannelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_errors_total",
			Help:      "Number of channels closed by an error.",
		}),

		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Number of messages by event.",
		}, []string{"event"}),
		Confirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirms_total",
			Help:      "Number of publisher confirms by outcome.",
		}, []string{"outcome"}),

		SentFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_frames_total",
			Help:      "Number of frames sent to the broker.",
		}),
		ReceivedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_frames_total",
			Help:      "Number of frames received from the broker.",
		}),
		SentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Number of bytes sent to the broker.",
		}),
		ReceivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Number of bytes received from the broker.",
		}),
	}
}

// MustRegister registers every metric on r
func (m *PrometheusCollector) MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		m.Connections,
		m.TotalConnections,
		m.ConnectionErrors,

		m.Channels,
		m.TotalChannels,
		m.ChannelErrors,

		m.Messages,
		m.Confirms,

		m.SentFrames,
		m.ReceivedFrames,
		m.SentBytes,
		m.ReceivedBytes,
	)
}

func (m *PrometheusCollector) ConnectionCreated() {
	m.Connections.Inc()
	m.TotalConnections.Inc()
}

func (m *PrometheusCollector) ConnectionClosed() {
	m.Connections.Dec()
}

func (m *PrometheusCollector) ConnectionError(err error) {
	m.ConnectionErrors.Inc()
}

func (m *PrometheusCollector) ChannelCreated() {
	m.Channels.Inc()
	m.TotalChannels.Inc()
}

func (m *PrometheusCollector) ChannelClosed() {
	m.Channels.Dec()
}

func (m *PrometheusCollector) ChannelError(err error) {
	m.ChannelErrors.Inc()
}

func (m *PrometheusCollector) MessagePublished() { m.Messages.WithLabelValues("published").Inc() }
func (m *PrometheusCollector) MessageConsumed()  { m.Messages.WithLabelValues("consumed").Inc() }
func (m *PrometheusCollector) MessageAcked()     { m.Messages.WithLabelValues("acked").Inc() }
func (m *PrometheusCollector) MessageNacked()    { m.Messages.WithLabelValues("nacked").Inc() }
func (m *PrometheusCollector) MessageRejected()  { m.Messages.WithLabelValues("rejected").Inc() }
func (m *PrometheusCollector) MessageReturned()  { m.Messages.WithLabelValues("returned").Inc() }

func (m *PrometheusCollector) ConfirmReceived(ack bool) {
	if ack {
		m.Confirms.WithLabelValues("ack").Inc()
	} else {
		m.Confirms.WithLabelValues("nack").Inc()
	}
}

func (m *PrometheusCollector) FrameSent(size int) {
	m.SentFrames.Inc()
	m.SentBytes.Add(float64(size))
}

func (m *PrometheusCollector) FrameReceived(size int) {
	m.ReceivedFrames.Inc()
	m.ReceivedBytes.Add(float64(size))
}
