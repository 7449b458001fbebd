package rabbitmq

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// ConsumerCallback is a callback-based consumer interface
type ConsumerCallback interface {
	HandleConsumeOk(consumerTag string)
	HandleCancelOk(consumerTag string)
	HandleCancel(consumerTag string) error
	HandleDelivery(consumerTag string, delivery Delivery) error
	HandleShutdown(consumerTag string, cause error)
	HandleRecoverOk(consumerTag string)
}

// DefaultConsumer provides default no-op implementations of ConsumerCallback
type DefaultConsumer struct{}

// HandleConsumeOk is called when the consumer is successfully registered
func (dc *DefaultConsumer) HandleConsumeOk(consumerTag string) {}

// HandleCancelOk is called when the consumer is successfully cancelled
func (dc *DefaultConsumer) HandleCancelOk(consumerTag string) {}

// HandleCancel is called when the server cancels the consumer
func (dc *DefaultConsumer) HandleCancel(consumerTag string) error {
	return nil
}

// HandleDelivery is called when a message is delivered
func (dc *DefaultConsumer) HandleDelivery(consumerTag string, delivery Delivery) error {
	return nil
}

// HandleShutdown is called when the channel closes. cause is nil after a
// graceful close.
func (dc *DefaultConsumer) HandleShutdown(consumerTag string, cause error) {}

// HandleRecoverOk is called after basic.recover completes
func (dc *DefaultConsumer) HandleRecoverOk(consumerTag string) {}

// DeliveryHandlerFunc is a function-based delivery handler
type DeliveryHandlerFunc func(consumerTag string, delivery Delivery) error

// Consumer is the handle of a registered consumer
type Consumer struct {
	ch       *Channel
	tag      string
	queue    string
	noAck    bool
	opts     ConsumeOptions
	callback ConsumerCallback

	// basic.consume
	call      *Call
	cancelled bool
}

// Tag returns the consumer tag
func (cons *Consumer) Tag() string {
	return cons.tag
}

// Queue returns the queue the consumer reads from
func (cons *Consumer) Queue() string {
	return cons.queue
}

// Channel returns the channel the consumer is registered on
func (cons *Consumer) Channel() *Channel {
	return cons.ch
}

// Cancel sends basic.cancel. No delivery reaches the callback once Cancel
// returns; deliveries already in flight are rejected back to the queue.
// Cancel is idempotent.
func (cons *Consumer) Cancel() error {
	c := cons.ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if cons.cancelled {
		return nil
	}
	cons.cancelled = true

	ch := cons.ch
	ch.cancelled[cons.tag] = cons.noAck
	if ch.asm != nil && ch.asm.consumer == cons {
		ch.asm.discard = true
		ch.asm.body = nil
	}
	if ch.usable() != nil {
		return nil
	}

	_, err := ch.request(&protocol.BasicCancel{ConsumerTag: cons.tag}, false, func(m protocol.Method) any {
		if ch.consumers[cons.tag] == cons {
			delete(ch.consumers, cons.tag)
		}
		c.enqueue(func() { cons.callback.HandleCancelOk(cons.tag) })
		return m
	}, nil)
	return err
}

// Consume registers a consumer on queue. Deliveries reach callback from the
// callback queue. An empty consumerTag generates one. The consumer is
// registered before basic.consume is sent, so no delivery can be missed.
func (ch *Channel) Consume(queue, consumerTag string, opts ConsumeOptions, callback ConsumerCallback) (*Consumer, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if consumerTag == "" {
		consumerTag = generateConsumerTag()
	}
	cons := &Consumer{
		tag:      consumerTag,
		queue:    queue,
		noAck:    opts.AutoAck,
		opts:     opts,
		callback: callback,
	}
	if err := ch.register(cons, queue); err != nil {
		return nil, err
	}
	return cons, nil
}

// reconsume registers cons on ch, a channel replacing the one it was
// created on, and sends basic.consume for queue with its original options
func (ch *Channel) reconsume(cons *Consumer, queue string) (*Call, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if err := ch.register(cons, queue); err != nil {
		return nil, err
	}
	return cons.call, nil
}

// register adds cons to the channel and sends basic.consume. Called with
// the connection lock held.
func (ch *Channel) register(cons *Consumer, queue string) error {
	if err := ch.usable(); err != nil {
		return err
	}
	tag := cons.tag
	if _, ok := ch.consumers[tag]; ok {
		return &UsageError{Reason: fmt.Sprintf("consumer tag %q already in use", tag)}
	}

	cons.ch = ch
	cons.cancelled = false
	ch.consumers[tag] = cons

	c := ch.conn
	opts := cons.opts
	call, err := ch.request(&protocol.BasicConsume{
		Queue:       queue,
		ConsumerTag: tag,
		NoLocal:     opts.NoLocal,
		NoAck:       opts.AutoAck,
		Exclusive:   opts.Exclusive,
		NoWait:      opts.NoWait,
		Arguments:   opts.Args,
	}, opts.NoWait, func(protocol.Method) any {
		c.log.Debug().
			Uint16("channel", ch.id).
			Str("consumer", tag).
			Str("queue", queue).
			Msg("consumer registered")
		return cons
	}, func(_ any, err error) {
		if err == nil {
			cons.callback.HandleConsumeOk(tag)
		}
	})
	if err != nil {
		delete(ch.consumers, tag)
		return err
	}
	cons.call = call
	return nil
}

// stopped reports whether the consumer was cancelled by either side, as
// opposed to ending with its channel
func (cons *Consumer) stopped() bool {
	c := cons.ch.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := cons.ch.cancelled[cons.tag]
	return ok
}

// ConsumeWithHandler starts a consumer with a simple function handler
func (ch *Channel) ConsumeWithHandler(queue, consumerTag string, opts ConsumeOptions, handler DeliveryHandlerFunc) (*Consumer, error) {
	return ch.Consume(queue, consumerTag, opts, &handlerConsumer{handler: handler})
}

// handlerConsumer wraps a DeliveryHandlerFunc
type handlerConsumer struct {
	DefaultConsumer
	handler DeliveryHandlerFunc
}

// HandleDelivery delegates to the handler function
func (hc *handlerConsumer) HandleDelivery(consumerTag string, delivery Delivery) error {
	return hc.handler(consumerTag, delivery)
}

// handleServerCancel processes basic.cancel sent by the broker, e.g. when
// the queue was deleted
func (ch *Channel) handleServerCancel(m *protocol.BasicCancel) {
	if cons, ok := ch.consumers[m.ConsumerTag]; ok {
		delete(ch.consumers, m.ConsumerTag)
		cons.cancelled = true
		ch.cancelled[m.ConsumerTag] = cons.noAck
		ch.conn.log.Info().
			Uint16("channel", ch.id).
			Str("consumer", m.ConsumerTag).
			Msg("consumer cancelled by broker")
		ch.conn.enqueue(func() {
			if err := cons.callback.HandleCancel(cons.tag); err != nil {
				ch.conn.log.Error().Err(err).Str("consumer", cons.tag).Msg("cancel handler failed")
			}
		})
	}
	if !m.NoWait {
		f, err := frame.MethodFrame(ch.id, &protocol.BasicCancelOk{ConsumerTag: m.ConsumerTag})
		if err == nil {
			_ = ch.write(f)
		}
	}
}

func (ch *Channel) consumerTags() []string {
	return slices.Sorted(maps.Keys(ch.consumers))
}

// ConsumerCount returns the number of active consumers on the channel
func (ch *Channel) ConsumerCount() int {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	return len(ch.consumers)
}

// generateConsumerTag generates a unique consumer tag
func generateConsumerTag() string {
	return "ctag-" + uuid.NewString()
}
