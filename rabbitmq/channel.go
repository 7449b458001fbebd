package rabbitmq

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// ChannelState represents the state of a channel
type ChannelState int32

const (
	ChannelClosed ChannelState = iota
	ChannelOpenPending
	ChannelOpen
	ChannelFlowBlocked
	ChannelClosingLocal
	ChannelClosingRemote
)

// String returns a string representation of the channel state
func (s ChannelState) String() string {
	switch s {
	case ChannelClosed:
		return "closed"
	case ChannelOpenPending:
		return "open-pending"
	case ChannelOpen:
		return "open"
	case ChannelFlowBlocked:
		return "flow-blocked"
	case ChannelClosingLocal:
		return "closing-local"
	case ChannelClosingRemote:
		return "closing-remote"
	default:
		return "unknown"
	}
}

// Channel represents an AMQP channel. All state is guarded by the owning
// connection's lock.
type Channel struct {
	conn *Connection
	id   uint16

	state    ChannelState
	opened   bool
	closeErr error

	// Calls waiting for a reply, in send order
	pending []*Call
	// Frames held back behind a call of a kind already in flight
	backlog []outbound
	// Local close calls waiting for close-ok
	closing []*Call

	// Content being assembled
	asm *assembly

	// Consumers
	consumers map[string]*Consumer
	cancelled map[string]bool // locally cancelled tag -> no-ack

	// Publisher confirms, nil until confirm.select
	confirm *confirmManager
	txMode  bool

	// Publishes held while flow is paused
	held [][]*frame.Frame

	// Events
	closeCbs         []func(error)
	flowCbs          []func(bool)
	returnCbs        []func(Return)
	returnListeners  []ReturnListener
	confirmCbs       []func(Confirmation)
	confirmListeners []ConfirmListener
}

type outbound struct {
	frames []*frame.Frame
	call   *Call
}

// ConsumeOptions configures consumer behavior
type ConsumeOptions struct {
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Args      Table
}

func newChannel(c *Connection, id uint16) *Channel {
	return &Channel{
		conn:      c,
		id:        id,
		state:     ChannelOpenPending,
		consumers: make(map[string]*Consumer),
		cancelled: make(map[string]bool),
	}
}

// open sends channel.open. Called with the connection lock held.
func (ch *Channel) open(handler func(any, error)) (*Call, error) {
	m := &protocol.ChannelOpen{}
	call := newCall(ch.conn, ch, m, handler)
	call.onReply = func(protocol.Method) any {
		ch.state = ChannelOpen
		ch.opened = true
		ch.conn.metrics.ChannelCreated()
		ch.conn.log.Debug().Uint16("channel", ch.id).Msg("channel opened")
		return ch
	}
	if err := ch.conn.sendMethod(ch.id, m); err != nil {
		return nil, err
	}
	ch.pending = append(ch.pending, call)
	return call, nil
}

// ID returns the channel number
func (ch *Channel) ID() uint16 {
	return ch.id
}

// Connection returns the connection the channel belongs to
func (ch *Channel) Connection() *Connection {
	return ch.conn
}

// State returns the current channel state
func (ch *Channel) State() ChannelState {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	return ch.state
}

// IsClosed returns true once the channel reached ChannelClosed
func (ch *Channel) IsClosed() bool {
	return ch.State() == ChannelClosed
}

// CloseError returns why the channel closed, nil after a graceful close
func (ch *Channel) CloseError() error {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	return ch.closeErr
}

// ReplyCode returns the reply code of the close
func (ch *Channel) ReplyCode() int {
	code, _ := replyOf(ch.CloseError())
	return int(code)
}

// ReplyText returns the reply text of the close
func (ch *Channel) ReplyText() string {
	_, text := replyOf(ch.CloseError())
	return text
}

// IsFlowBlocked returns true while the broker has paused publishing
func (ch *Channel) IsFlowBlocked() bool {
	return ch.State() == ChannelFlowBlocked
}

// InConfirmMode returns true after confirm.select was sent
func (ch *Channel) InConfirmMode() bool {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	return ch.confirm != nil
}

func (ch *Channel) usable() error {
	switch ch.state {
	case ChannelOpen, ChannelFlowBlocked:
		return nil
	case ChannelOpenPending:
		return &UsageError{Reason: fmt.Sprintf("channel %d is not open yet", ch.id)}
	default:
		return closedError(ErrChannelClosed, ch.closeErr)
	}
}

// rpc sends a synchronous method and returns the call tracking its reply.
// With noWait the method is only sent and the returned call is complete.
func (ch *Channel) rpc(m protocol.Method, noWait bool, onReply func(protocol.Method) any, handler func(any, error)) (*Call, error) {
	ch.conn.mu.Lock()
	call, err := ch.request(m, noWait, onReply, handler)
	ch.conn.mu.Unlock()
	ch.conn.drain()
	return call, err
}

// request is rpc with the connection lock held
func (ch *Channel) request(m protocol.Method, noWait bool, onReply func(protocol.Method) any, handler func(any, error)) (*Call, error) {
	if err := ch.usable(); err != nil {
		return nil, err
	}
	f, err := frame.MethodFrame(ch.id, m)
	if err != nil {
		return nil, err
	}

	call := newCall(ch.conn, ch, m, handler)
	call.onReply = onReply

	if noWait {
		if err := ch.write(f); err != nil {
			return nil, err
		}
		call.complete(nil)
		return call, nil
	}

	if ch.busy(call.key) {
		ch.backlog = append(ch.backlog, outbound{frames: []*frame.Frame{f}, call: call})
		return call, nil
	}
	if err := ch.conn.send(f); err != nil {
		return nil, err
	}
	ch.pending = append(ch.pending, call)
	return call, nil
}

// cast sends an asynchronous method
func (ch *Channel) cast(m protocol.Method) error {
	ch.conn.mu.Lock()
	defer ch.conn.drain()
	defer ch.conn.mu.Unlock()

	if err := ch.usable(); err != nil {
		return err
	}
	f, err := frame.MethodFrame(ch.id, m)
	if err != nil {
		return err
	}
	return ch.write(f)
}

// write sends frames unless earlier frames are held in the backlog, in
// which case they queue behind them.
func (ch *Channel) write(frames ...*frame.Frame) error {
	if len(ch.backlog) > 0 {
		ch.backlog = append(ch.backlog, outbound{frames: frames})
		return nil
	}
	return ch.conn.send(frames...)
}

func (ch *Channel) busy(k protocol.Key) bool {
	return len(ch.backlog) > 0 || ch.inFlight(k)
}

func (ch *Channel) inFlight(k protocol.Key) bool {
	if ch.asm != nil && ch.asm.call != nil && ch.asm.call.key == k {
		return true
	}
	return slices.ContainsFunc(ch.pending, func(call *Call) bool { return call.key == k })
}

// drainBacklog sends held frames until a call whose kind is still in flight
// reaches the front.
func (ch *Channel) drainBacklog() {
	for len(ch.backlog) > 0 {
		if ch.state != ChannelOpen && ch.state != ChannelFlowBlocked {
			return
		}
		ob := ch.backlog[0]
		if ob.call != nil && ch.inFlight(ob.call.key) {
			return
		}
		ch.backlog[0] = outbound{}
		ch.backlog = ch.backlog[1:]

		if err := ch.conn.send(ob.frames...); err != nil {
			if ob.call != nil {
				ob.call.resolve(nil, err)
			}
			return
		}
		if ob.call != nil {
			ch.pending = append(ch.pending, ob.call)
		}
	}
	ch.backlog = nil
}

// handleFrame processes a frame routed to this channel. Called with the
// connection lock held.
func (ch *Channel) handleFrame(f *frame.Frame) {
	if ch.state == ChannelClosingLocal {
		ch.handleWhileClosing(f)
		return
	}

	switch f.Type {
	case protocol.FrameMethod:
		ch.handleMethodFrame(f)
	case protocol.FrameHeader:
		ch.handleHeader(f)
	case protocol.FrameBody:
		ch.handleBody(f)
	}
}

// handleWhileClosing discards everything but close and close-ok
func (ch *Channel) handleWhileClosing(f *frame.Frame) {
	if f.Type != protocol.FrameMethod {
		return
	}
	switch f.MethodKey() {
	case protocol.MakeKey(protocol.ClassChannel, protocol.MethodChannelCloseOk):
		ch.finish(ch.closeErr, nil)
	case protocol.MakeKey(protocol.ClassChannel, protocol.MethodChannelClose):
		_ = ch.conn.sendMethod(ch.id, &protocol.ChannelCloseOk{})
		ch.finish(ch.closeErr, nil)
	}
}

func (ch *Channel) handleMethodFrame(f *frame.Frame) {
	k := f.MethodKey()
	if ch.asm != nil {
		ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("%s received during content assembly", k), k.ClassID(), k.MethodID())
		return
	}

	m, err := f.DecodeMethod()
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMethod) {
			ch.protocolError(protocol.ReplyNotImplemented, err.Error(), k.ClassID(), k.MethodID())
		} else {
			ch.protocolError(protocol.ReplySyntaxError, err.Error(), k.ClassID(), k.MethodID())
		}
		return
	}

	if ch.state == ChannelOpenPending {
		switch m.(type) {
		case *protocol.ChannelOpenOk, *protocol.ChannelClose:
		default:
			ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("%s received before channel.open-ok", k), k.ClassID(), k.MethodID())
			return
		}
	}

	switch m := m.(type) {
	case *protocol.ChannelClose:
		ch.handlePeerClose(m)

	case *protocol.ChannelFlow:
		ch.handleFlow(m)

	case *protocol.BasicDeliver:
		ch.beginContent(m, nil)

	case *protocol.BasicReturn:
		ch.beginContent(m, nil)

	case *protocol.BasicGetOk:
		call, ok := ch.popReply(m)
		if ok {
			ch.beginContent(m, call)
		}

	case *protocol.BasicAck:
		ch.handleConfirm(m.DeliveryTag, m.Multiple, true)

	case *protocol.BasicNack:
		ch.handleConfirm(m.DeliveryTag, m.Multiple, false)

	case *protocol.BasicCancel:
		ch.handleServerCancel(m)

	default:
		if !protocol.IsReply(k) {
			ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("unexpected %s", k), k.ClassID(), k.MethodID())
			return
		}
		call, ok := ch.popReply(m)
		if !ok {
			return
		}
		call.complete(m)
		ch.drainBacklog()
	}
}

// popReply removes the head pending call if m answers it. A reply nobody
// waits for, or one that answers a different request, closes the channel.
func (ch *Channel) popReply(m protocol.Method) (*Call, bool) {
	k := m.Key()
	if len(ch.pending) == 0 {
		ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("unsolicited %s", k), k.ClassID(), k.MethodID())
		return nil, false
	}
	head := ch.pending[0]
	if !head.matches(k) {
		ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("%s does not answer %s", k, head.key), k.ClassID(), k.MethodID())
		return nil, false
	}
	ch.pending[0] = nil
	ch.pending = ch.pending[1:]
	return head, true
}

func (ch *Channel) handlePeerClose(m *protocol.ChannelClose) {
	reason := newBrokerError(m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID)
	ch.conn.log.Warn().
		Uint16("channel", ch.id).
		Int("code", reason.Code).
		Str("reason", reason.Reason).
		Msg("channel closed by broker")

	ch.state = ChannelClosingRemote
	_ = ch.conn.sendMethod(ch.id, &protocol.ChannelCloseOk{})
	ch.finish(reason, closedError(ErrChannelClosed, reason))
}

func (ch *Channel) handleFlow(m *protocol.ChannelFlow) {
	switch {
	case m.Active && ch.state == ChannelFlowBlocked:
		ch.state = ChannelOpen
	case !m.Active && ch.state == ChannelOpen:
		ch.state = ChannelFlowBlocked
	}
	ch.conn.log.Debug().
		Uint16("channel", ch.id).
		Bool("active", m.Active).
		Msg("channel flow")

	if err := ch.conn.sendMethod(ch.id, &protocol.ChannelFlowOk{Active: m.Active}); err != nil {
		return
	}

	if m.Active {
		held := ch.held
		ch.held = nil
		for _, frames := range held {
			if err := ch.write(frames...); err != nil {
				return
			}
		}
	}

	for _, cb := range ch.flowCbs {
		ch.conn.enqueue(func() { cb(m.Active) })
	}
}

// protocolError closes this channel after a violation. Sibling channels are
// not affected.
func (ch *Channel) protocolError(code uint16, reason string, classID, methodID uint16) {
	pe := &ProtocolError{
		Code:     code,
		Reason:   reason,
		Channel:  ch.id,
		ClassID:  classID,
		MethodID: methodID,
	}
	ch.conn.log.Warn().
		Uint16("channel", ch.id).
		Uint16("code", code).
		Str("reason", reason).
		Msg("channel protocol error")
	ch.beginClose(code, reason, classID, methodID, pe)
}

// beginClose fails outstanding work, sends channel.close and waits for
// close-ok. Called with the connection lock held.
func (ch *Channel) beginClose(code uint16, text string, classID, methodID uint16, reason error) {
	switch ch.state {
	case ChannelClosingLocal, ChannelClosingRemote, ChannelClosed:
		return
	}
	ch.state = ChannelClosingLocal
	ch.closeErr = reason
	ch.failCalls(closedError(ErrChannelClosed, reason))

	_ = ch.conn.sendMethod(ch.id, &protocol.ChannelClose{
		ReplyCode: code,
		ReplyText: truncate(text),
		ClassID:   classID,
		MethodID:  methodID,
	})
}

// failCalls resolves every outstanding call with err and drops partial
// content and held frames.
func (ch *Channel) failCalls(err error) {
	pending := ch.pending
	ch.pending = nil
	for _, call := range pending {
		call.resolve(nil, err)
	}

	backlog := ch.backlog
	ch.backlog = nil
	for _, ob := range backlog {
		if ob.call != nil {
			ob.call.resolve(nil, err)
		}
	}

	if ch.asm != nil && ch.asm.call != nil {
		ch.asm.call.resolve(nil, err)
	}
	ch.asm = nil
	ch.held = nil

	if ch.confirm != nil {
		ch.confirm.fail(err)
	}
}

// finish moves the channel to ChannelClosed and releases its number.
// Outstanding calls fail with callErr; local close calls resolve with it.
func (ch *Channel) finish(reason, callErr error) {
	if ch.state == ChannelClosed {
		return
	}
	if ch.closeErr == nil {
		ch.closeErr = reason
	}
	reason = ch.closeErr
	ch.state = ChannelClosed

	leftover := callErr
	if leftover == nil {
		leftover = closedError(ErrChannelClosed, reason)
	}
	ch.failCalls(leftover)

	closing := ch.closing
	ch.closing = nil
	for _, call := range closing {
		call.resolve(nil, callErr)
	}

	for _, tag := range slices.Sorted(maps.Keys(ch.consumers)) {
		cons := ch.consumers[tag]
		cons.cancelled = true
		ch.conn.enqueue(func() { cons.callback.HandleShutdown(tag, reason) })
	}
	clear(ch.consumers)

	for _, cb := range ch.closeCbs {
		ch.conn.enqueue(func() { cb(reason) })
	}
	ch.closeCbs = nil

	if ch.opened {
		ch.conn.metrics.ChannelClosed()
	}
	if reason != nil {
		ch.conn.metrics.ChannelError(reason)
	}
	ch.conn.releaseChannel(ch)

	ch.conn.log.Debug().
		Uint16("channel", ch.id).
		AnErr("reason", reason).
		Msg("channel closed")
}

// Close closes the channel gracefully. Pending calls fail at once with
// ErrChannelClosed; cb runs when the broker confirms with close-ok.
func (ch *Channel) Close(cb func(error)) (*Call, error) {
	return ch.CloseWithCode(protocol.ReplySuccess, "normal shutdown", cb)
}

// CloseWithCode closes the channel with a specific reply code and text
func (ch *Channel) CloseWithCode(code int, text string, cb func(error)) (*Call, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	switch ch.state {
	case ChannelClosed, ChannelClosingRemote:
		return nil, closedError(ErrChannelClosed, ch.closeErr)
	}

	m := &protocol.ChannelClose{ReplyCode: uint16(code), ReplyText: text}
	call := newCall(c, ch, m, func(_ any, err error) {
		if cb != nil {
			cb(err)
		}
	})
	ch.closing = append(ch.closing, call)

	var reason error
	if code != protocol.ReplySuccess {
		reason = NewError(code, text, false)
	}
	ch.beginClose(uint16(code), text, 0, 0, reason)
	return call, nil
}

// Flow asks the broker to pause (false) or resume (true) deliveries on this
// channel. cb receives the state the broker confirmed.
func (ch *Channel) Flow(active bool, cb func(bool, error)) (*Call, error) {
	return ch.rpc(&protocol.ChannelFlow{Active: active}, false, func(m protocol.Method) any {
		return m.(*protocol.ChannelFlowOk).Active
	}, func(result any, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(false, err)
			return
		}
		cb(result.(bool), nil)
	})
}

// NotifyClose registers cb to run when the channel closes. cb receives nil
// after a graceful local close.
func (ch *Channel) NotifyClose(cb func(error)) {
	c := ch.conn
	c.mu.Lock()
	if ch.state == ChannelClosed {
		err := ch.closeErr
		c.enqueue(func() { cb(err) })
	} else {
		ch.closeCbs = append(ch.closeCbs, cb)
	}
	c.mu.Unlock()
	c.drain()
}

// NotifyFlow registers cb for channel.flow from the broker
func (ch *Channel) NotifyFlow(cb func(active bool)) {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	ch.flowCbs = append(ch.flowCbs, cb)
}
