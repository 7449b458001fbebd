package rabbitmq

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
	"github.com/israelio/rabbit-go-core/internal/util"
)

// ConnectionState represents the current state of a connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateHandshaking
	StateOpen
	StateClosingLocal
	StateClosingRemote
)

// String returns a string representation of the connection state
func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosingLocal:
		return "closing-local"
	case StateClosingRemote:
		return "closing-remote"
	default:
		return "unknown"
	}
}

// Connection is the protocol state machine for one AMQP connection. It does
// no I/O of its own apart from writing frames: the host feeds it the bytes
// read from the transport and calls Tick for timers. It never starts
// goroutines.
//
// Continuations and event callbacks run after the internal lock is
// released, in FIFO order, on the goroutine that triggered them. They may
// call back into the connection.
type Connection struct {
	cfg       *Config
	log       zerolog.Logger
	metrics   MetricsCollector
	now       func() time.Time
	transport io.Closer

	mu sync.Mutex

	decoder *frame.Decoder
	writer  *frame.Writer

	state           ConnectionState
	closed          bool
	closeErr        error
	closeAcked      bool
	transportClosed bool

	// Handshake
	phase            handshakePhase
	deadline         time.Time
	serverProperties Table
	mechanism        string

	// Negotiated parameters
	channelMax uint16
	frameMax   uint32
	heartbeat  time.Duration

	// Channels
	allocator *util.IntAllocator
	channels  map[uint16]*Channel

	// Connection level calls (update-secret)
	pending []*Call

	// Timers
	lastSent time.Time
	lastRecv time.Time

	stats   Stats
	blocked bool

	// Callback queue
	callbacks []func()
	draining  bool
	feeding   bool

	// Events
	openCbs    []func(error)
	closeCbs   []func(error)
	notifyCbs  []func(error)
	blockedCbs []func(BlockedNotification)
	listeners  []ConnectionListener
}

// BlockedNotification represents a connection blocked/unblocked event
type BlockedNotification struct {
	Blocked bool
	Reason  string
}

// ConnectionListener receives connection lifecycle events
type ConnectionListener interface {
	OnConnectionOpened(conn *Connection)
	OnConnectionClosed(conn *Connection, err error)
	OnConnectionBlocked(conn *Connection, reason string)
	OnConnectionUnblocked(conn *Connection)
}

// Stats holds traffic counters for a connection
type Stats struct {
	BytesSent          uint64
	BytesReceived      uint64
	FramesSent         uint64
	FramesReceived     uint64
	HeartbeatsSent     uint64
	HeartbeatsReceived uint64
}

// newConnection writes the protocol header to w and returns a connection in
// the handshaking state.
func newConnection(w io.WriteCloser, cfg *Config, now func() time.Time) (*Connection, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.clone()

	c := &Connection{
		cfg:       cfg,
		log:       cfg.logger(),
		metrics:   cfg.metrics(),
		now:       now,
		transport: w,
		decoder:   frame.NewDecoder(0),
		writer:    frame.NewWriter(w, 0),
		channels:  make(map[uint16]*Channel),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startHandshake(); err != nil {
		c.closeTransport()
		return nil, err
	}
	return c, nil
}

// Feed hands bytes read from the transport to the connection. Every complete
// frame is dispatched and the resulting callbacks have run by the time Feed
// returns.
//
// Feed returns an error only when p itself could not be used: the bytes are
// not valid framing, or they made the handshake fail. A close requested by
// the broker or forced by a protocol violation on well-formed input is
// reported through NotifyClose and CloseError instead. Feed returns
// ErrConnectionClosed after the connection closed and ErrReentrantCall when
// called from one of its own callbacks or concurrently with another Feed.
func (c *Connection) Feed(p []byte) error {
	c.mu.Lock()
	if c.feeding {
		c.mu.Unlock()
		return ErrReentrantCall
	}
	if c.closed {
		err := closedError(ErrConnectionClosed, c.closeErr)
		c.mu.Unlock()
		return err
	}
	c.feeding = true
	c.decoder.Feed(p)
	if len(p) > 0 {
		c.stats.BytesReceived += uint64(len(p))
		c.lastRecv = c.now()
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.feeding = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.drain()
			return nil
		}
		f, err := c.decoder.Next()
		if err != nil {
			if errors.Is(err, frame.ErrNeedMoreData) {
				c.mu.Unlock()
				c.drain()
				return nil
			}
			c.decodeFailed(err)
			err = c.closeErr
			c.mu.Unlock()
			c.drain()
			return err
		}
		setup := c.state == StateHandshaking
		c.handleFrame(f)
		var setupErr error
		if setup && c.closed {
			setupErr = c.closeErr
		}
		c.mu.Unlock()
		c.drain()
		if setupErr != nil {
			return setupErr
		}
	}
}

// TransportFailed tells the connection that the transport can no longer be
// read, e.g. because the peer closed the socket.
func (c *Connection) TransportFailed(err error) {
	c.mu.Lock()
	c.transportFailed(err)
	c.mu.Unlock()
	c.drain()
}

func (c *Connection) transportFailed(err error) {
	if c.closed {
		return
	}
	if err == nil {
		err = io.EOF
	}
	switch {
	case c.state == StateHandshaking && c.phase == awaitTune:
		c.shutdown(ErrProbableAuthentication)
	case c.state == StateClosingLocal && errors.Is(err, io.EOF):
		c.shutdown(c.closeErr)
	default:
		c.log.Error().Err(err).Msg("transport failed")
		c.shutdown(&TransportError{Op: "read", Err: err})
	}
}

// handleFrame routes one decoded frame. Called with c.mu held.
func (c *Connection) handleFrame(f *frame.Frame) {
	c.stats.FramesReceived++
	c.metrics.FrameReceived(len(f.Payload) + protocol.FrameOverhead)
	c.logFrame("recv", f)

	if f.Type == protocol.FrameHeartbeat {
		if f.ChannelID != 0 {
			c.protocolFailure(protocol.ReplyFrameError, fmt.Sprintf("heartbeat on channel %d", f.ChannelID), 0, 0)
			return
		}
		c.stats.HeartbeatsReceived++
		return
	}

	if f.ChannelID == 0 {
		c.handleConnectionFrame(f)
		return
	}

	if c.state == StateHandshaking {
		c.protocolFailure(protocol.ReplyUnexpectedFrame, fmt.Sprintf("frame on channel %d before connection open", f.ChannelID), 0, 0)
		return
	}

	ch, ok := c.channels[f.ChannelID]
	if !ok {
		if c.state != StateOpen {
			return
		}
		c.protocolFailure(protocol.ReplyChannelError, fmt.Sprintf("frame for unallocated channel %d", f.ChannelID), 0, 0)
		return
	}
	ch.handleFrame(f)
}

func (c *Connection) handleConnectionFrame(f *frame.Frame) {
	if f.Type != protocol.FrameMethod {
		c.protocolFailure(protocol.ReplyUnexpectedFrame, fmt.Sprintf("unexpected %s on channel 0", f), 0, 0)
		return
	}

	m, err := f.DecodeMethod()
	if err != nil {
		k := f.MethodKey()
		if errors.Is(err, protocol.ErrUnknownMethod) {
			c.protocolFailure(protocol.ReplyNotImplemented, err.Error(), k.ClassID(), k.MethodID())
		} else {
			c.protocolFailure(protocol.ReplySyntaxError, err.Error(), k.ClassID(), k.MethodID())
		}
		return
	}

	if c.state == StateHandshaking {
		c.handleHandshake(m)
		return
	}

	switch m := m.(type) {
	case *protocol.ConnectionClose:
		c.handlePeerClose(m)

	case *protocol.ConnectionCloseOk:
		if c.state != StateClosingLocal {
			c.protocolFailure(protocol.ReplyUnexpectedFrame, "unexpected connection.close-ok", 0, 0)
			return
		}
		c.closeAcked = true
		c.shutdown(c.closeErr)

	case *protocol.ConnectionBlocked:
		if c.state == StateOpen {
			c.setBlocked(true, m.Reason)
		}

	case *protocol.ConnectionUnblocked:
		if c.state == StateOpen {
			c.setBlocked(false, "")
		}

	default:
		if c.state != StateOpen {
			return
		}
		if len(c.pending) == 0 || !c.pending[0].matches(m.Key()) {
			c.protocolFailure(protocol.ReplyUnexpectedFrame, fmt.Sprintf("unexpected %s", m.Key()), m.Key().ClassID(), m.Key().MethodID())
			return
		}
		call := c.pending[0]
		c.pending = c.pending[1:]
		call.complete(m)
	}
}

func (c *Connection) handlePeerClose(m *protocol.ConnectionClose) {
	reason := newBrokerError(m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID)
	c.log.Info().
		Int("code", reason.Code).
		Str("reason", reason.Reason).
		Msg("connection closed by broker")

	if c.state == StateClosingLocal && m.ReplyCode == protocol.ReplySuccess {
		c.closeAcked = true
		_ = c.sendMethod(0, &protocol.ConnectionCloseOk{})
		c.shutdown(c.closeErr)
		return
	}

	c.state = StateClosingRemote
	c.closeChannels(reason)
	_ = c.sendMethod(0, &protocol.ConnectionCloseOk{})
	c.shutdown(reason)
}

func (c *Connection) setBlocked(blocked bool, reason string) {
	c.blocked = blocked
	n := BlockedNotification{Blocked: blocked, Reason: reason}
	for _, cb := range c.blockedCbs {
		c.enqueue(func() { cb(n) })
	}
	for _, l := range c.listeners {
		if blocked {
			c.enqueue(func() { l.OnConnectionBlocked(c, reason) })
		} else {
			c.enqueue(func() { l.OnConnectionUnblocked(c) })
		}
	}
}

// decodeFailed handles a framing error: the stream cannot be
// resynchronised, so the close is sent without waiting for close-ok.
func (c *Connection) decodeFailed(err error) {
	if errors.Is(err, frame.ErrProtocolHeader) {
		c.shutdown(err)
		return
	}
	pe := &ProtocolError{
		Code:   protocol.ReplyFrameError,
		Reason: err.Error(),
		Err:    err,
	}
	c.log.Warn().Err(err).Msg("frame decode failed")
	_ = c.sendMethod(0, &protocol.ConnectionClose{ReplyCode: pe.Code, ReplyText: truncate(pe.Reason)})
	c.shutdown(pe)
}

// protocolFailure closes the connection after a protocol violation on
// channel 0 or an unroutable frame.
func (c *Connection) protocolFailure(code uint16, reason string, classID, methodID uint16) {
	pe := &ProtocolError{
		Code:     code,
		Reason:   reason,
		ClassID:  classID,
		MethodID: methodID,
	}
	c.log.Warn().
		Uint16("code", code).
		Str("reason", reason).
		Msg("connection protocol error")

	if c.state != StateOpen {
		_ = c.sendMethod(0, &protocol.ConnectionClose{ReplyCode: code, ReplyText: truncate(reason), ClassID: classID, MethodID: methodID})
		c.shutdown(pe)
		return
	}
	c.startClose(code, reason, classID, methodID, pe)
}

// Channel allocates the lowest free channel number and opens a channel on
// it. cb runs once channel.open-ok arrives or the open fails.
func (c *Connection) Channel(cb func(*Channel, error)) (*Call, error) {
	c.mu.Lock()
	call, err := c.openChannel(cb)
	c.mu.Unlock()
	c.drain()
	return call, err
}

func (c *Connection) openChannel(cb func(*Channel, error)) (*Call, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	id, ok := c.allocator.Allocate()
	if !ok {
		return nil, ErrChannelMax
	}

	ch := newChannel(c, uint16(id))
	c.channels[ch.id] = ch

	call, err := ch.open(func(result any, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(nil, err)
			return
		}
		cb(result.(*Channel), nil)
	})
	if err != nil {
		c.releaseChannel(ch)
		return nil, err
	}
	return call, nil
}

func (c *Connection) releaseChannel(ch *Channel) {
	if c.channels[ch.id] != ch {
		return
	}
	delete(c.channels, ch.id)
	if c.allocator != nil {
		c.allocator.Free(int(ch.id))
	}
}

func (c *Connection) usable() error {
	switch c.state {
	case StateOpen:
		return nil
	case StateHandshaking:
		return ErrNotOpen
	default:
		return closedError(ErrConnectionClosed, c.closeErr)
	}
}

// Close closes the connection gracefully: every channel is closed with
// ErrConnectionClosed, connection.close is sent and the transport is
// released once the broker answers close-ok. cb runs when the connection is
// fully closed.
func (c *Connection) Close(cb func(error)) error {
	return c.CloseWithCode(protocol.ReplySuccess, "normal shutdown", cb)
}

// CloseWithCode closes the connection with a specific reply code and text
func (c *Connection) CloseWithCode(code int, text string, cb func(error)) error {
	c.mu.Lock()
	err := c.closeLocal(uint16(code), text, cb)
	c.mu.Unlock()
	c.drain()
	return err
}

func (c *Connection) closeLocal(code uint16, text string, cb func(error)) error {
	switch c.state {
	case StateDisconnected:
		return closedError(ErrConnectionClosed, c.closeErr)
	case StateHandshaking:
		if cb != nil {
			c.closeCbs = append(c.closeCbs, cb)
		}
		c.closeAcked = true
		c.shutdown(ErrConnectionClosed)
		return nil
	case StateClosingLocal, StateClosingRemote:
		if cb != nil {
			c.closeCbs = append(c.closeCbs, cb)
		}
		return nil
	}

	if cb != nil {
		c.closeCbs = append(c.closeCbs, cb)
	}
	var reason error
	if code != protocol.ReplySuccess {
		reason = NewError(int(code), text, false)
	}
	c.startClose(code, text, 0, 0, reason)
	return nil
}

// startClose force-closes every channel, sends connection.close and waits
// for close-ok until the handshake timeout expires.
func (c *Connection) startClose(code uint16, text string, classID, methodID uint16, reason error) {
	c.log.Debug().
		Uint16("code", code).
		Str("text", text).
		Msg("closing connection")

	c.state = StateClosingLocal
	c.closeErr = reason
	c.deadline = c.now().Add(c.cfg.HandshakeTimeout)
	c.closeChannels(reason)
	c.failPending(closedError(ErrConnectionClosed, reason))
	_ = c.sendMethod(0, &protocol.ConnectionClose{
		ReplyCode: code,
		ReplyText: truncate(text),
		ClassID:   classID,
		MethodID:  methodID,
	})
}

func (c *Connection) closeChannels(reason error) {
	err := closedError(ErrConnectionClosed, reason)
	for _, id := range c.channelIDs() {
		c.channels[id].finish(err, err)
	}
}

func (c *Connection) channelIDs() []uint16 {
	ids := make([]uint16, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Connection) failPending(err error) {
	pending := c.pending
	c.pending = nil
	for _, call := range pending {
		call.resolve(nil, err)
	}
}

// shutdown moves the connection to its terminal state. Called with c.mu held.
func (c *Connection) shutdown(reason error) {
	if c.closed {
		return
	}
	prev := c.state
	if prev == StateHandshaking {
		reason = fmt.Errorf("%w: %w", ErrSetupFailed, reason)
	}

	c.state = StateDisconnected
	c.closed = true
	c.closeErr = reason
	c.deadline = time.Time{}

	c.closeChannels(reason)
	c.failPending(closedError(ErrConnectionClosed, reason))
	c.closeTransport()

	if prev == StateHandshaking {
		for _, cb := range c.openCbs {
			c.enqueue(func() { cb(reason) })
		}
		c.openCbs = nil
	} else {
		c.metrics.ConnectionClosed()
	}
	if reason != nil {
		c.metrics.ConnectionError(reason)
	}

	closeResult := reason
	if c.closeAcked {
		closeResult = nil
	}
	for _, cb := range c.closeCbs {
		c.enqueue(func() { cb(closeResult) })
	}
	c.closeCbs = nil
	for _, cb := range c.notifyCbs {
		c.enqueue(func() { cb(reason) })
	}
	c.notifyCbs = nil
	for _, l := range c.listeners {
		c.enqueue(func() { l.OnConnectionClosed(c, reason) })
	}

	ev := c.log.Info()
	if reason != nil {
		ev = c.log.Warn().Err(reason)
	}
	ev.Str("from", prev.String()).Msg("connection closed")
}

func (c *Connection) closeTransport() {
	if c.transportClosed {
		return
	}
	c.transportClosed = true
	if err := c.transport.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close transport")
	}
}

// send writes frames as one contiguous sequence. Called with c.mu held.
func (c *Connection) send(frames ...*frame.Frame) error {
	if c.transportClosed {
		return closedError(ErrConnectionClosed, c.closeErr)
	}
	if c.frameMax > 0 {
		for _, f := range frames {
			if uint64(len(f.Payload))+protocol.FrameOverhead > uint64(c.frameMax) {
				return &UsageError{Reason: fmt.Sprintf("frame of %d bytes exceeds frame-max %d", len(f.Payload)+protocol.FrameOverhead, c.frameMax)}
			}
		}
	}

	n, err := c.writer.WriteFrames(frames...)
	if err != nil {
		terr := &TransportError{Op: "write", Err: err}
		c.log.Error().Err(err).Msg("transport failed")
		c.shutdown(terr)
		return terr
	}

	c.stats.BytesSent += uint64(n)
	c.lastSent = c.now()
	for _, f := range frames {
		c.stats.FramesSent++
		if f.Type == protocol.FrameHeartbeat {
			c.stats.HeartbeatsSent++
		}
		c.metrics.FrameSent(len(f.Payload) + protocol.FrameOverhead)
		c.logFrame("send", f)
	}
	return nil
}

func (c *Connection) sendMethod(channelID uint16, m protocol.Method) error {
	f, err := frame.MethodFrame(channelID, m)
	if err != nil {
		return err
	}
	return c.send(f)
}

// enqueue schedules fn to run once the lock is released. Called with c.mu
// held.
func (c *Connection) enqueue(fn func()) {
	c.callbacks = append(c.callbacks, fn)
}

// drain runs queued callbacks in order. A drain already in progress on
// another frame of the stack picks up anything queued meanwhile.
func (c *Connection) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.draining = false
			c.mu.Unlock()
			panic(r)
		}
	}()

	for {
		c.mu.Lock()
		if len(c.callbacks) == 0 {
			c.callbacks = nil
			c.draining = false
			c.mu.Unlock()
			return
		}
		fn := c.callbacks[0]
		c.callbacks[0] = nil
		c.callbacks = c.callbacks[1:]
		c.mu.Unlock()

		fn()
	}
}

// OnOpen registers cb to run when the handshake completes. cb receives nil
// on success or the setup failure. If the handshake already finished, cb is
// scheduled immediately.
func (c *Connection) OnOpen(cb func(error)) {
	c.mu.Lock()
	switch {
	case c.state == StateHandshaking:
		c.openCbs = append(c.openCbs, cb)
	case c.closed && c.phase != phaseDone:
		err := c.closeErr
		c.enqueue(func() { cb(err) })
	default:
		c.enqueue(func() { cb(nil) })
	}
	c.mu.Unlock()
	c.drain()
}

// NotifyClose registers cb to run when the connection reaches its terminal
// state. cb receives nil after a graceful local close, otherwise the reason.
func (c *Connection) NotifyClose(cb func(error)) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.enqueue(func() { cb(err) })
	} else {
		c.notifyCbs = append(c.notifyCbs, cb)
	}
	c.mu.Unlock()
	c.drain()
}

// NotifyBlocked registers cb for connection.blocked and
// connection.unblocked from the broker
func (c *Connection) NotifyBlocked(cb func(BlockedNotification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockedCbs = append(c.blockedCbs, cb)
}

// AddConnectionListener adds a connection lifecycle listener
func (c *Connection) AddConnectionListener(listener ConnectionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// RemoveConnectionListener removes a connection lifecycle listener
func (c *Connection) RemoveConnectionListener(listener ConnectionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.listeners {
		if l == listener {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// UpdateSecret sends connection.update-secret, used to refresh OAuth2
// tokens without reconnecting
func (c *Connection) UpdateSecret(secret, reason string, cb func(error)) (*Call, error) {
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return nil, err
	}
	m := &protocol.ConnectionUpdateSecret{NewSecret: secret, Reason: reason}
	call := newCall(c, nil, m, func(_ any, err error) {
		if cb != nil {
			cb(err)
		}
	})
	if err := c.sendMethod(0, m); err != nil {
		return nil, err
	}
	c.pending = append(c.pending, call)
	return call, nil
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsClosed returns true if the connection reached its terminal state
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseError returns why the connection closed. It is nil while the
// connection is open and after a graceful local close.
func (c *Connection) CloseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// ReplyCode returns the reply code of the close, 200 for a graceful close
func (c *Connection) ReplyCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, _ := replyOf(c.closeErr)
	return int(code)
}

// ReplyText returns the reply text of the close
func (c *Connection) ReplyText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, text := replyOf(c.closeErr)
	return text
}

// IsBlocked returns true if the broker has blocked publishing
func (c *Connection) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// ChannelCount returns the number of allocated channels
func (c *Connection) ChannelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

// ChannelMax returns the negotiated maximum channel number
func (c *Connection) ChannelMax() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelMax
}

// FrameMax returns the negotiated maximum frame size
func (c *Connection) FrameMax() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameMax
}

// Heartbeat returns the negotiated heartbeat interval, 0 when disabled
func (c *Connection) Heartbeat() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}

// ServerProperties returns the properties the broker sent in
// connection.start
func (c *Connection) ServerProperties() Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverProperties
}

// Mechanism returns the SASL mechanism used to authenticate
func (c *Connection) Mechanism() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mechanism
}

// Stats returns a snapshot of the traffic counters
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// dispatching reports whether Feed is running
func (c *Connection) dispatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeding
}

// abort closes the connection at once with reason, without the close
// handshake.
func (c *Connection) abort(reason error) {
	c.mu.Lock()
	if !c.closed {
		if c.state == StateOpen || c.state == StateClosingLocal {
			code, text := replyOf(reason)
			_ = c.sendMethod(0, &protocol.ConnectionClose{ReplyCode: code, ReplyText: truncate(text)})
		}
		c.shutdown(reason)
	}
	c.mu.Unlock()
	c.drain()
}

// truncate keeps a reply text within the shortstr limit without splitting
// a UTF-8 sequence
func truncate(s string) string {
	if len(s) <= 255 {
		return s
	}
	n := 255
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
