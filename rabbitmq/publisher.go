package rabbitmq

import (
	"slices"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Confirmation represents a publish confirmation (ack or nack)
type Confirmation struct {
	DeliveryTag uint64
	Ack         bool // true for ack, false for nack
}

// ConfirmListener provides a callback-based confirm interface
type ConfirmListener interface {
	HandleAck(deliveryTag uint64, multiple bool)
	HandleNack(deliveryTag uint64, multiple bool)
}

// confirmManager tracks publishes awaiting a broker ack or nack. Sequence
// numbers start at 1 and follow the order publishes were written.
type confirmManager struct {
	nextSeq     uint64
	outstanding []uint64
	waiters     map[uint64]*Call
}

func newConfirmManager() *confirmManager {
	return &confirmManager{
		nextSeq: 1,
		waiters: make(map[uint64]*Call),
	}
}

func (cm *confirmManager) publish() uint64 {
	seq := cm.nextSeq
	cm.nextSeq++
	cm.outstanding = append(cm.outstanding, seq)
	return seq
}

// confirm removes and returns the outstanding tags covered by tag
func (cm *confirmManager) confirm(tag uint64, multiple bool) []uint64 {
	if !multiple {
		i, ok := slices.BinarySearch(cm.outstanding, tag)
		if !ok {
			return nil
		}
		cm.outstanding = slices.Delete(cm.outstanding, i, i+1)
		return []uint64{tag}
	}

	n, found := slices.BinarySearch(cm.outstanding, tag)
	if found {
		n++
	}
	tags := slices.Clone(cm.outstanding[:n])
	cm.outstanding = slices.Delete(cm.outstanding, 0, n)
	return tags
}

// fail resolves every waiting publish with err
func (cm *confirmManager) fail(err error) {
	for _, seq := range cm.outstanding {
		if call, ok := cm.waiters[seq]; ok {
			call.resolve(nil, err)
		}
	}
	cm.outstanding = nil
	clear(cm.waiters)
}

// ConfirmSelect enables publisher confirms on this channel. Publishes made
// after ConfirmSelect returns are counted even before confirm.select-ok
// arrives.
func (ch *Channel) ConfirmSelect(noWait bool, cb func(error)) (*Call, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if ch.txMode {
		return nil, &UsageError{Reason: "confirm.select on a transactional channel"}
	}
	fresh := ch.confirm == nil
	if fresh && ch.usable() == nil {
		ch.confirm = newConfirmManager()
	}
	call, err := ch.request(&protocol.ConfirmSelect{NoWait: noWait}, noWait, nil, errorHandler(cb))
	if err != nil && fresh {
		ch.confirm = nil
	}
	return call, err
}

// NotifyConfirm registers cb for every confirmed publish. Multiple
// acknowledgements are expanded into one Confirmation per delivery tag.
func (ch *Channel) NotifyConfirm(cb func(Confirmation)) {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	ch.confirmCbs = append(ch.confirmCbs, cb)
}

// AddConfirmListener adds a callback-based confirm listener
func (ch *Channel) AddConfirmListener(listener ConfirmListener) {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	ch.confirmListeners = append(ch.confirmListeners, listener)
}

// handleConfirm processes basic.ack and basic.nack from the broker
func (ch *Channel) handleConfirm(tag uint64, multiple, ack bool) {
	if ch.confirm == nil {
		ch.conn.log.Warn().
			Uint16("channel", ch.id).
			Uint64("delivery_tag", tag).
			Bool("ack", ack).
			Msg("publisher confirm on a channel not in confirm mode, ignoring")
		return
	}

	for _, seq := range ch.confirm.confirm(tag, multiple) {
		conf := Confirmation{DeliveryTag: seq, Ack: ack}
		ch.conn.metrics.ConfirmReceived(ack)
		if call, ok := ch.confirm.waiters[seq]; ok {
			delete(ch.confirm.waiters, seq)
			call.resolve(conf, nil)
		}
		for _, cb := range ch.confirmCbs {
			ch.conn.enqueue(func() { cb(conf) })
		}
	}

	for _, l := range ch.confirmListeners {
		ch.conn.enqueue(func() {
			if ack {
				l.HandleAck(tag, multiple)
			} else {
				l.HandleNack(tag, multiple)
			}
		})
	}
}

// Publish sends a message. In confirm mode it returns the sequence number
// the broker will confirm, otherwise 0. While the broker has paused the
// channel the publish fails with ErrFlowBlocked, or is held until flow
// resumes under FlowQueue.
func (ch *Channel) Publish(exchange, routingKey string, mandatory, immediate bool, msg Publishing) (uint64, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	return ch.publish(exchange, routingKey, mandatory, immediate, msg)
}

// PublishWithConfirm publishes a message on a confirm mode channel. cb
// receives the broker's ack or nack for it.
func (ch *Channel) PublishWithConfirm(exchange, routingKey string, mandatory, immediate bool, msg Publishing, cb func(Confirmation, error)) (*Call, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if ch.confirm == nil {
		if err := ch.usable(); err != nil {
			return nil, err
		}
		return nil, ErrNotConfirmMode
	}
	seq, err := ch.publish(exchange, routingKey, mandatory, immediate, msg)
	if err != nil {
		return nil, err
	}

	call := newCall(c, ch, &protocol.BasicPublish{Exchange: exchange, RoutingKey: routingKey}, func(result any, err error) {
		if cb == nil {
			return
		}
		conf, _ := result.(Confirmation)
		cb(conf, err)
	})
	ch.confirm.waiters[seq] = call
	return call, nil
}

func (ch *Channel) publish(exchange, routingKey string, mandatory, immediate bool, msg Publishing) (uint64, error) {
	c := ch.conn
	if err := ch.usable(); err != nil {
		return 0, err
	}

	held := ch.state == ChannelFlowBlocked
	if held && c.cfg.FlowPolicy == FlowReject {
		return 0, ErrFlowBlocked
	}

	props, err := EncodeProperties(msg.Properties)
	if err != nil {
		return 0, err
	}
	mf, err := frame.MethodFrame(ch.id, &protocol.BasicPublish{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Mandatory:  mandatory,
		Immediate:  immediate,
	})
	if err != nil {
		return 0, err
	}

	body := msg.Body
	if held || len(ch.backlog) > 0 {
		// the frames outlive this call
		body = slices.Clone(body)
	}
	frames := make([]*frame.Frame, 0, 2+len(body)/max(int(c.frameMax), 1)+1)
	frames = append(frames, mf, frame.NewHeaderFrame(ch.id, protocol.ClassBasic, uint64(len(body)), props))
	frames = append(frames, frame.SplitBody(ch.id, body, c.frameMax)...)

	if held {
		ch.held = append(ch.held, frames)
	} else if err := ch.write(frames...); err != nil {
		return 0, err
	}

	c.metrics.MessagePublished()

	var seq uint64
	if ch.confirm != nil {
		seq = ch.confirm.publish()
	}
	return seq, nil
}
