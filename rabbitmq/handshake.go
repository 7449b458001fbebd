package rabbitmq

import (
	"fmt"
	"strings"
	"time"

	"github.com/israelio/rabbit-go-core/internal/protocol"
	"github.com/israelio/rabbit-go-core/internal/util"
)

type handshakePhase int

const (
	awaitStart handshakePhase = iota
	awaitTune
	awaitOpenOk
	phaseDone
)

func (p handshakePhase) String() string {
	switch p {
	case awaitStart:
		return "connection.start"
	case awaitTune:
		return "connection.tune"
	case awaitOpenOk:
		return "connection.open-ok"
	default:
		return "done"
	}
}

// startHandshake sends the protocol header. Called with c.mu held.
func (c *Connection) startHandshake() error {
	c.state = StateHandshaking
	c.phase = awaitStart
	c.deadline = c.now().Add(c.cfg.HandshakeTimeout)

	n, err := c.writer.WriteProtocolHeader()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, &TransportError{Op: "write", Err: err})
	}
	c.stats.BytesSent += uint64(n)
	c.lastSent = c.now()

	c.log.Debug().Str("vhost", c.cfg.VHost).Msg("protocol header sent")
	return nil
}

// handleHandshake advances the handshake with m. The order is fixed:
// start, tune, open-ok. Anything else is fatal.
func (c *Connection) handleHandshake(m protocol.Method) {
	if cl, ok := m.(*protocol.ConnectionClose); ok {
		reason := newBrokerError(cl.ReplyCode, cl.ReplyText, cl.ClassID, cl.MethodID)
		_ = c.sendMethod(0, &protocol.ConnectionCloseOk{})
		c.shutdown(reason)
		return
	}

	switch m := m.(type) {
	case *protocol.ConnectionStart:
		if c.phase == awaitStart {
			c.onStart(m)
			return
		}
	case *protocol.ConnectionSecure:
		c.protocolFailure(protocol.ReplyNotImplemented, "connection.secure challenges are not supported", m.Key().ClassID(), m.Key().MethodID())
		return
	case *protocol.ConnectionTune:
		if c.phase == awaitTune {
			c.onTune(m)
			return
		}
	case *protocol.ConnectionOpenOk:
		if c.phase == awaitOpenOk {
			c.onOpenOk()
			return
		}
	}

	c.protocolFailure(protocol.ReplyCommandInvalid,
		fmt.Sprintf("unexpected %s while waiting for %s", m.Key(), c.phase),
		m.Key().ClassID(), m.Key().MethodID())
}

func (c *Connection) onStart(m *protocol.ConnectionStart) {
	if m.VersionMajor != protocol.ProtocolVersionMajor || m.VersionMinor != protocol.ProtocolVersionMinor {
		c.shutdown(fmt.Errorf("unsupported protocol version %d-%d", m.VersionMajor, m.VersionMinor))
		return
	}

	auth, ok := pickMechanism(c.cfg.Auth, m.Mechanisms)
	if !ok {
		c.shutdown(fmt.Errorf("%w: server offers %q", ErrNoMechanism, m.Mechanisms))
		return
	}

	c.serverProperties = m.ServerProperties
	c.mechanism = auth.Mechanism()
	c.phase = awaitTune

	err := c.sendMethod(0, &protocol.ConnectionStartOk{
		ClientProperties: c.cfg.ClientProperties,
		Mechanism:        auth.Mechanism(),
		Response:         auth.Response(),
		Locale:           c.cfg.Locale,
	})
	if err != nil {
		return
	}

	c.log.Debug().
		Str("mechanism", c.mechanism).
		Interface("server", m.ServerProperties["product"]).
		Msg("connection.start-ok sent")
}

func (c *Connection) onTune(m *protocol.ConnectionTune) {
	channelMax := uint16(negotiate(uint32(c.cfg.ChannelMax), uint32(m.ChannelMax)))
	if channelMax == 0 {
		channelMax = protocol.MaxChannelMax
	}

	frameMax := negotiate(c.cfg.FrameMax, m.FrameMax)
	if frameMax == 0 {
		frameMax = protocol.DefaultFrameMax
	}
	frameMax = max(frameMax, protocol.FrameMinSize)

	heartbeat := uint16(negotiate(uint32(c.cfg.Heartbeat/time.Second), uint32(m.Heartbeat)))

	c.channelMax = channelMax
	c.frameMax = frameMax
	c.heartbeat = time.Duration(heartbeat) * time.Second
	c.allocator = util.NewIntAllocator(1, int(channelMax))

	if err := c.sendMethod(0, &protocol.ConnectionTuneOk{
		ChannelMax: channelMax,
		FrameMax:   frameMax,
		Heartbeat:  heartbeat,
	}); err != nil {
		return
	}

	c.decoder.SetMaxFrameSize(frameMax)
	c.writer.SetMaxFrameSize(frameMax)
	c.phase = awaitOpenOk

	c.log.Debug().
		Uint16("channel_max", channelMax).
		Uint32("frame_max", frameMax).
		Dur("heartbeat", c.heartbeat).
		Msg("connection tuned")

	_ = c.sendMethod(0, &protocol.ConnectionOpen{VirtualHost: c.cfg.VHost})
}

func (c *Connection) onOpenOk() {
	c.state = StateOpen
	c.phase = phaseDone
	c.deadline = time.Time{}
	c.lastRecv = c.now()

	c.metrics.ConnectionCreated()
	c.log.Info().
		Str("vhost", c.cfg.VHost).
		Uint16("channel_max", c.channelMax).
		Uint32("frame_max", c.frameMax).
		Dur("heartbeat", c.heartbeat).
		Msg("connection opened")

	for _, cb := range c.openCbs {
		c.enqueue(func() { cb(nil) })
	}
	c.openCbs = nil
	for _, l := range c.listeners {
		c.enqueue(func() { l.OnConnectionOpened(c) })
	}
}

// negotiate combines a client and a server limit: if either side is 0 the
// other wins, otherwise the smaller one.
func negotiate(client, server uint32) uint32 {
	if client == 0 || server == 0 {
		return max(client, server)
	}
	return min(client, server)
}

// pickMechanism returns the first configured mechanism the server offers.
// offered is the space separated list from connection.start.
func pickMechanism(auth []Authentication, offered string) (Authentication, bool) {
	names := strings.Fields(offered)
	for _, a := range auth {
		for _, name := range names {
			if strings.EqualFold(a.Mechanism(), name) {
				return a, true
			}
		}
	}
	return nil, false
}
