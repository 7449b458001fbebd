package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RpcClient provides a simple RPC (Remote Procedure Call) pattern
// implementation on a blocking channel: requests carry a reply-to queue and
// a correlation id, replies are matched back by that id.
type RpcClient struct {
	ch         *BlockingChannel
	replyQueue string
	consumer   *Consumer

	mu      sync.Mutex
	pending map[string]*Delivery
	closed  bool
}

// NewRpcClient declares an exclusive reply queue and consumes it
func NewRpcClient(ctx context.Context, ch *BlockingChannel) (*RpcClient, error) {
	q, err := ch.QueueDeclare(ctx, "", QueueDeclareOptions{
		Exclusive:  true,
		AutoDelete: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare reply queue: %w", err)
	}

	client := &RpcClient{
		ch:         ch,
		replyQueue: q.Name,
		pending:    make(map[string]*Delivery),
	}

	cons, err := ch.ConsumeWithHandler(ctx, q.Name, "", ConsumeOptions{
		AutoAck:   true,
		Exclusive: true,
	}, client.handleReply)
	if err != nil {
		return nil, fmt.Errorf("failed to consume reply queue: %w", err)
	}
	client.consumer = cons

	return client, nil
}

// ReplyQueue returns the name of the queue replies are read from
func (c *RpcClient) ReplyQueue() string {
	return c.replyQueue
}

// Call publishes msg and waits for the matching reply
func (c *RpcClient) Call(ctx context.Context, exchange, routingKey string, msg Publishing) (*Delivery, error) {
	correlationID := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("RPC client is closed")
	}
	c.pending[correlationID] = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	msg.ReplyTo = c.replyQueue
	msg.CorrelationId = correlationID
	if err := c.ch.Publish(ctx, exchange, routingKey, false, false, msg); err != nil {
		return nil, fmt.Errorf("failed to publish RPC request: %w", err)
	}

	var reply *Delivery
	err := c.ch.b.wait(ctx, "rpc", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		reply = c.pending[correlationID]
		return reply != nil || c.closed || c.ch.IsClosed()
	})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		if c.ch.IsClosed() {
			return nil, closedError(ErrChannelClosed, c.ch.ch.CloseError())
		}
		return nil, fmt.Errorf("RPC client closed while waiting for reply")
	}
	return reply, nil
}

func (c *RpcClient) handleReply(_ string, d Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[d.Properties.CorrelationId]; !ok {
		return nil
	}
	// the reply queue is auto-ack
	d.channel = nil
	c.pending[d.Properties.CorrelationId] = &d
	return nil
}

// Close cancels the reply consumer. Calls still waiting fail.
func (c *RpcClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.consumer.Cancel()
}
