package rabbitmq

import (
	"fmt"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Delivery represents a message delivered to a consumer
type Delivery struct {
	// Message metadata
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string

	// Message content
	Properties Properties
	Body       []byte

	// Channel reference for acknowledgment
	channel *Channel
}

// Ack acknowledges this delivery
func (d *Delivery) Ack(multiple bool) error {
	if d.channel == nil {
		return ErrChannelClosed
	}
	return d.channel.BasicAck(d.DeliveryTag, multiple)
}

// Nack negatively acknowledges this delivery
func (d *Delivery) Nack(multiple, requeue bool) error {
	if d.channel == nil {
		return ErrChannelClosed
	}
	return d.channel.BasicNack(d.DeliveryTag, multiple, requeue)
}

// Reject rejects this delivery
func (d *Delivery) Reject(requeue bool) error {
	if d.channel == nil {
		return ErrChannelClosed
	}
	return d.channel.BasicReject(d.DeliveryTag, requeue)
}

// GetResponse represents a response from BasicGet (polled message)
type GetResponse struct {
	// Message metadata
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount int // Number of messages remaining in queue

	// Message content
	Properties Properties
	Body       []byte

	// Channel reference for acknowledgment
	channel *Channel
}

// Ack acknowledges this message
func (gr *GetResponse) Ack(multiple bool) error {
	if gr.channel == nil {
		return ErrChannelClosed
	}
	return gr.channel.BasicAck(gr.DeliveryTag, multiple)
}

// Nack negatively acknowledges this message
func (gr *GetResponse) Nack(multiple, requeue bool) error {
	if gr.channel == nil {
		return ErrChannelClosed
	}
	return gr.channel.BasicNack(gr.DeliveryTag, multiple, requeue)
}

// Reject rejects this message
func (gr *GetResponse) Reject(requeue bool) error {
	if gr.channel == nil {
		return ErrChannelClosed
	}
	return gr.channel.BasicReject(gr.DeliveryTag, requeue)
}

// BasicGet polls one message from queue. cb receives nil when the queue is
// empty.
func (ch *Channel) BasicGet(queue string, autoAck bool, cb func(*GetResponse, error)) (*Call, error) {
	return ch.rpc(&protocol.BasicGet{Queue: queue, NoAck: autoAck}, false, func(m protocol.Method) any {
		// get-empty; get-ok resolves through content assembly
		return nil
	}, func(result any, err error) {
		if cb == nil {
			return
		}
		resp, _ := result.(*GetResponse)
		cb(resp, err)
	})
}

// BasicAck acknowledges one or more messages
func (ch *Channel) BasicAck(deliveryTag uint64, multiple bool) error {
	err := ch.cast(&protocol.BasicAck{DeliveryTag: deliveryTag, Multiple: multiple})
	if err == nil {
		ch.conn.metrics.MessageAcked()
	}
	return err
}

// BasicNack negatively acknowledges one or more messages
func (ch *Channel) BasicNack(deliveryTag uint64, multiple, requeue bool) error {
	err := ch.cast(&protocol.BasicNack{DeliveryTag: deliveryTag, Multiple: multiple, Requeue: requeue})
	if err == nil {
		ch.conn.metrics.MessageNacked()
	}
	return err
}

// BasicReject rejects a single message
func (ch *Channel) BasicReject(deliveryTag uint64, requeue bool) error {
	err := ch.cast(&protocol.BasicReject{DeliveryTag: deliveryTag, Requeue: requeue})
	if err == nil {
		ch.conn.metrics.MessageRejected()
	}
	return err
}

// Qos sets the prefetch window for consumers on this channel, or on the
// whole connection when global is set
func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool, cb func(error)) (*Call, error) {
	if prefetchCount < 0 || prefetchCount > 0xFFFF {
		return nil, &UsageError{Reason: fmt.Sprintf("prefetch count %d out of range", prefetchCount)}
	}
	if prefetchSize < 0 {
		return nil, &UsageError{Reason: fmt.Sprintf("prefetch size %d out of range", prefetchSize)}
	}
	return ch.rpc(&protocol.BasicQos{
		PrefetchSize:  uint32(prefetchSize),
		PrefetchCount: uint16(prefetchCount),
		Global:        global,
	}, false, nil, errorHandler(cb))
}

// Recover asks the broker to redeliver unacknowledged messages
func (ch *Channel) Recover(requeue bool, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.BasicRecover{Requeue: requeue}, false, func(m protocol.Method) any {
		for _, tag := range ch.consumerTags() {
			cons := ch.consumers[tag]
			ch.conn.enqueue(func() { cons.callback.HandleRecoverOk(tag) })
		}
		return m
	}, errorHandler(cb))
}

func errorHandler(cb func(error)) func(any, error) {
	return func(_ any, err error) {
		if cb != nil {
			cb(err)
		}
	}
}

// assembly is a content-bearing method waiting for its header and body
type assembly struct {
	method   protocol.Method
	call     *Call
	consumer *Consumer
	header   bool
	props    Properties
	size     uint64
	received uint64
	body     []byte
	discard  bool
}

// maxPrealloc bounds the body buffer allocated up front from the declared
// size
const maxPrealloc = 1 << 20

func (ch *Channel) beginContent(m protocol.Method, call *Call) {
	asm := &assembly{method: m, call: call}
	if d, ok := m.(*protocol.BasicDeliver); ok {
		asm.consumer = ch.consumers[d.ConsumerTag]
		asm.discard = asm.consumer == nil || asm.consumer.cancelled
	}
	ch.asm = asm
}

func (ch *Channel) handleHeader(f *frame.Frame) {
	asm := ch.asm
	if asm == nil || asm.header {
		ch.protocolError(protocol.ReplyUnexpectedFrame, "unexpected content header", 0, 0)
		return
	}

	h, err := f.ParseHeader()
	if err != nil {
		ch.protocolError(protocol.ReplySyntaxError, err.Error(), 0, 0)
		return
	}
	if h.ClassID != protocol.ClassBasic {
		ch.protocolError(protocol.ReplyUnexpectedFrame, fmt.Sprintf("content header for class %d", h.ClassID), 0, 0)
		return
	}
	props, err := DecodeProperties(h.Properties)
	if err != nil {
		ch.protocolError(protocol.ReplySyntaxError, err.Error(), 0, 0)
		return
	}

	asm.header = true
	asm.props = props
	asm.size = h.BodySize
	if !asm.discard {
		asm.body = make([]byte, 0, min(h.BodySize, maxPrealloc))
	}
	if asm.size == 0 {
		ch.completeContent()
	}
}

func (ch *Channel) handleBody(f *frame.Frame) {
	asm := ch.asm
	if asm == nil || !asm.header {
		ch.protocolError(protocol.ReplyUnexpectedFrame, "unexpected content body", 0, 0)
		return
	}

	n := uint64(len(f.Payload))
	if asm.received+n > asm.size {
		ch.protocolError(protocol.ReplyUnexpectedFrame,
			fmt.Sprintf("content body of %d bytes exceeds declared size %d", asm.received+n, asm.size), 0, 0)
		return
	}
	asm.received += n
	if !asm.discard {
		asm.body = append(asm.body, f.Payload...)
	}
	if asm.received == asm.size {
		ch.completeContent()
	}
}

func (ch *Channel) completeContent() {
	asm := ch.asm
	ch.asm = nil

	switch m := asm.method.(type) {
	case *protocol.BasicDeliver:
		ch.deliver(m, asm)

	case *protocol.BasicReturn:
		ch.handleReturn(Return{
			ReplyCode:  m.ReplyCode,
			ReplyText:  m.ReplyText,
			Exchange:   m.Exchange,
			RoutingKey: m.RoutingKey,
			Properties: asm.props,
			Body:       asm.body,
		})

	case *protocol.BasicGetOk:
		asm.call.resolve(&GetResponse{
			DeliveryTag:  m.DeliveryTag,
			Redelivered:  m.Redelivered,
			Exchange:     m.Exchange,
			RoutingKey:   m.RoutingKey,
			MessageCount: int(m.MessageCount),
			Properties:   asm.props,
			Body:         asm.body,
			channel:      ch,
		}, nil)
		ch.drainBacklog()
	}
}

func (ch *Channel) deliver(m *protocol.BasicDeliver, asm *assembly) {
	cons := asm.consumer
	if asm.discard || cons.cancelled {
		ch.discardDelivery(m)
		return
	}

	ch.conn.metrics.MessageConsumed()
	d := Delivery{
		ConsumerTag: m.ConsumerTag,
		DeliveryTag: m.DeliveryTag,
		Redelivered: m.Redelivered,
		Exchange:    m.Exchange,
		RoutingKey:  m.RoutingKey,
		Properties:  asm.props,
		Body:        asm.body,
		channel:     ch,
	}
	ch.conn.enqueue(func() {
		ch.conn.mu.Lock()
		cancelled := cons.cancelled
		ch.conn.mu.Unlock()

		if cancelled {
			if !cons.noAck {
				_ = d.Reject(true)
			}
			return
		}
		if err := cons.callback.HandleDelivery(d.ConsumerTag, d); err != nil {
			ch.conn.log.Error().
				Err(err).
				Uint16("channel", ch.id).
				Str("consumer", d.ConsumerTag).
				Msg("consumer failed to handle delivery")
		}
	})
}

// discardDelivery drops a delivery for a consumer that is gone. Unless the
// consumer was no-ack the message is rejected so the broker requeues it.
func (ch *Channel) discardDelivery(m *protocol.BasicDeliver) {
	noAck, known := ch.cancelled[m.ConsumerTag]
	if cons := ch.consumers[m.ConsumerTag]; cons != nil {
		noAck, known = cons.noAck, true
	}
	if !known {
		ch.conn.log.Warn().
			Uint16("channel", ch.id).
			Str("consumer", m.ConsumerTag).
			Uint64("delivery_tag", m.DeliveryTag).
			Msg("delivery for unknown consumer, rejecting")
	}
	if noAck {
		return
	}
	f, err := frame.MethodFrame(ch.id, &protocol.BasicReject{DeliveryTag: m.DeliveryTag, Requeue: true})
	if err != nil {
		return
	}
	_ = ch.write(f)
}

// Queue represents queue information returned from QueueDeclare
type Queue struct {
	Name      string
	Messages  int
	Consumers int
}
