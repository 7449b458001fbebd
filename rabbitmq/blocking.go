package rabbitmq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const readBufferSize = 64 * 1024

// deadliner is implemented by transports whose reads can be interrupted,
// such as net.Conn
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// BlockingConnection drives a Connection over a blocking transport. Each
// method issues the operation and then reads the transport until the reply
// arrives, dispatching every other frame (deliveries, heartbeats) on the
// way.
//
// One goroutine at a time reads the transport. Other callers wait until it
// has dispatched their reply or hands the transport over.
//
// Operations that wait for a reply fail with ErrReentrantCall from consumer
// and event callbacks running on the reading goroutine. Send-only
// operations (Publish outside confirm mode, acks, consumer Cancel) are
// allowed anywhere.
//
// Exchanges, queues, bindings and consumers declared through its channels
// are recorded for Reconnect.
type BlockingConnection struct {
	conn      *Connection
	transport io.ReadWriteCloser
	now       func() time.Time
	buf       []byte

	redial   Dialer
	topology *topology

	// pump is held by the goroutine reading the transport, pumper is that
	// goroutine's id
	pump   chan struct{}
	pumper atomic.Uint64

	// progress is closed and replaced each time the pump holder has fed the
	// connection
	mu       sync.Mutex
	progress chan struct{}
	channels []*BlockingChannel
}

// Open runs the handshake over transport and returns once the connection is
// open. ctx bounds the handshake; expiry is fatal to the connection.
func Open(ctx context.Context, transport io.ReadWriteCloser, cfg *Config) (*BlockingConnection, error) {
	return open(ctx, transport, cfg, time.Now)
}

func open(ctx context.Context, transport io.ReadWriteCloser, cfg *Config, now func() time.Time) (*BlockingConnection, error) {
	b := &BlockingConnection{
		now:      now,
		buf:      make([]byte, readBufferSize),
		topology: &topology{},
		pump:     make(chan struct{}, 1),
		progress: make(chan struct{}),
	}
	if err := b.connect(ctx, transport, cfg); err != nil {
		return nil, err
	}
	return b, nil
}

// connect runs the handshake over transport and makes the new connection
// the current one
func (b *BlockingConnection) connect(ctx context.Context, transport io.ReadWriteCloser, cfg *Config) error {
	conn, err := newConnection(transport, cfg, b.now)
	if err != nil {
		return err
	}
	b.conn = conn
	b.transport = transport

	err = b.wait(ctx, "handshake", func() bool {
		return conn.State() != StateHandshaking
	})
	if err != nil {
		conn.abort(err)
		if cerr := conn.CloseError(); cerr != nil {
			return cerr
		}
		return err
	}
	if conn.IsClosed() {
		return conn.CloseError()
	}
	return nil
}

// Connection returns the underlying connection, e.g. to register event
// callbacks
func (b *BlockingConnection) Connection() *Connection {
	return b.conn
}

// Channel opens a new channel
func (b *BlockingConnection) Channel(ctx context.Context) (*BlockingChannel, error) {
	ch, err := b.openChannel(ctx)
	if err != nil {
		return nil, err
	}
	bc := &BlockingChannel{b: b, ch: ch}

	b.mu.Lock()
	b.channels = append(b.channels, bc)
	b.mu.Unlock()
	return bc, nil
}

func (b *BlockingConnection) openChannel(ctx context.Context) (*Channel, error) {
	res, err := b.do(ctx, func() (*Call, error) { return b.conn.Channel(nil) })
	if err != nil {
		return nil, err
	}
	return res.(*Channel), nil
}

func (b *BlockingConnection) forget(bc *BlockingChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = slices.DeleteFunc(b.channels, func(c *BlockingChannel) bool { return c == bc })
}

// Close closes the connection gracefully and waits for close-ok. If ctx
// expires first the transport is closed without waiting.
func (b *BlockingConnection) Close(ctx context.Context) error {
	if b.reentrant() {
		return ErrReentrantCall
	}

	if err := b.conn.Close(nil); err != nil {
		return err
	}

	err := b.wait(ctx, "close", b.conn.IsClosed)
	if err != nil {
		b.conn.abort(err)
		return err
	}
	return b.conn.CloseError()
}

// IsClosed returns true once the connection reached its terminal state
func (b *BlockingConnection) IsClosed() bool {
	return b.conn.IsClosed()
}

// ProcessEvents dispatches incoming frames until ctx is done. It returns
// nil when ctx expires and the close reason if the connection closes.
func (b *BlockingConnection) ProcessEvents(ctx context.Context) error {
	err := b.wait(ctx, "process events", func() bool { return false })
	var te *TimeoutError
	if errors.As(err, &te) && ctx.Err() != nil {
		return nil
	}
	return err
}

// StartConsuming dispatches deliveries until no consumer is left on any
// channel, ctx is done or the connection closes.
func (b *BlockingConnection) StartConsuming(ctx context.Context) error {
	err := b.wait(ctx, "consume", func() bool { return b.consumerCount() == 0 })
	var te *TimeoutError
	if errors.As(err, &te) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *BlockingConnection) consumerCount() int {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()

	n := 0
	for _, ch := range b.conn.channels {
		n += len(ch.consumers)
	}
	return n
}

// do issues an operation and waits for its call
func (b *BlockingConnection) do(ctx context.Context, issue func() (*Call, error)) (any, error) {
	if b.reentrant() {
		return nil, ErrReentrantCall
	}
	call, err := issue()
	if err != nil {
		return nil, err
	}
	return b.await(ctx, call)
}

func (b *BlockingConnection) await(ctx context.Context, call *Call) (any, error) {
	if err := b.wait(ctx, call.Method(), call.Done); err != nil {
		call.Cancel()
		return nil, err
	}

	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	return call.outcome()
}

// wait blocks until done reports true. The caller reads the transport
// itself when nobody else does; otherwise it sleeps until the reader has
// made progress and checks again.
func (b *BlockingConnection) wait(ctx context.Context, op string, done func() bool) error {
	if done() {
		return nil
	}
	if b.reentrant() {
		return ErrReentrantCall
	}

	for {
		progress := b.progressed()
		if done() {
			return nil
		}
		if b.conn.IsClosed() {
			return closedError(ErrConnectionClosed, b.conn.CloseError())
		}

		select {
		case b.pump <- struct{}{}:
			return b.pumpUntil(ctx, op, done)
		case <-progress:
		case <-ctx.Done():
			if done() {
				return nil
			}
			return &TimeoutError{Op: op, Err: ctx.Err()}
		}
	}
}

// pumpUntil reads the transport until done reports true. The caller holds
// the pump.
func (b *BlockingConnection) pumpUntil(ctx context.Context, op string, done func() bool) error {
	b.pumper.Store(goid())
	defer func() {
		b.pumper.Store(0)
		<-b.pump
		b.signal()
	}()

	// Without read deadlines ctx is only checked between reads, which the
	// broker's heartbeats keep coming.
	if d, ok := b.transport.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	for !done() {
		if b.conn.IsClosed() {
			return closedError(ErrConnectionClosed, b.conn.CloseError())
		}
		if err := ctx.Err(); err != nil {
			return &TimeoutError{Op: op, Err: err}
		}
		err := b.pumpOnce(ctx)
		b.signal()
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *BlockingConnection) progressed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// signal wakes every caller sleeping in wait
func (b *BlockingConnection) signal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.progress)
	b.progress = make(chan struct{})
}

// reentrant reports whether the caller is a callback dispatched by the pump
// of its own goroutine. Waiting there would never return. The goroutine id
// is only looked up while the connection is dispatching.
func (b *BlockingConnection) reentrant() bool {
	id := b.pumper.Load()
	return id != 0 && b.conn.dispatching() && id == goid()
}

// goid returns the id of the calling goroutine, parsed from the
// "goroutine N [status]:" line of its stack trace
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, _ := strconv.ParseUint(string(s), 10, 64)
	return id
}

// pumpOnce reads the transport once, bounded by the next timer and the
// context deadline, and feeds what it got into the connection
func (b *BlockingConnection) pumpOnce(ctx context.Context) error {
	if d, ok := b.transport.(deadliner); ok {
		deadline := b.conn.NextTick()
		if cd, ok := ctx.Deadline(); ok && (deadline.IsZero() || cd.Before(deadline)) {
			deadline = cd
		}
		if err := d.SetReadDeadline(deadline); err != nil {
			b.conn.TransportFailed(err)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	n, err := b.transport.Read(b.buf)
	if n > 0 {
		if ferr := b.conn.Feed(b.buf[:n]); errors.Is(ferr, ErrReentrantCall) {
			return ferr
		}
	}
	if err != nil && !isTimeout(err) {
		b.conn.TransportFailed(err)
	}
	_ = b.conn.Tick(b.now())
	return nil
}

// BlockingChannel is a Channel whose reply-bearing operations wait for the
// reply
type BlockingChannel struct {
	b  *BlockingConnection
	ch *Channel

	// settings and consumers restored by Reconnect
	qos       []qosSetting
	confirm   bool
	tx        bool
	consumers []*Consumer
}

// Channel returns the underlying channel, e.g. to register event callbacks
func (bc *BlockingChannel) Channel() *Channel {
	return bc.ch
}

// ID returns the channel number
func (bc *BlockingChannel) ID() uint16 {
	return bc.ch.ID()
}

// IsClosed returns true once the channel is closed
func (bc *BlockingChannel) IsClosed() bool {
	return bc.ch.IsClosed()
}

// Close closes the channel and waits for close-ok. A closed channel is not
// reopened by Reconnect.
func (bc *BlockingChannel) Close(ctx context.Context) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.Close(nil) })
	if !errors.Is(err, ErrReentrantCall) {
		bc.b.forget(bc)
	}
	return err
}

// Flow pauses or resumes deliveries and returns the state the broker
// confirmed
func (bc *BlockingChannel) Flow(ctx context.Context, active bool) (bool, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.Flow(active, nil) })
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Qos sets the prefetch window
func (bc *BlockingChannel) Qos(ctx context.Context, prefetchCount, prefetchSize int, global bool) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.Qos(prefetchCount, prefetchSize, global, nil) })
	if err == nil {
		bc.recordQos(qosSetting{count: prefetchCount, size: prefetchSize, global: global})
	}
	return err
}

// ExchangeDeclare declares an exchange
func (bc *BlockingChannel) ExchangeDeclare(ctx context.Context, name, kind string, opts ExchangeDeclareOptions) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.ExchangeDeclare(name, kind, opts, nil) })
	if err == nil {
		bc.b.topology.recordExchange(name, kind, opts)
	}
	return err
}

// ExchangeDeclarePassive checks if an exchange exists
func (bc *BlockingChannel) ExchangeDeclarePassive(ctx context.Context, name string) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.ExchangeDeclarePassive(name, nil) })
	return err
}

// ExchangeDelete deletes an exchange
func (bc *BlockingChannel) ExchangeDelete(ctx context.Context, name string, opts ExchangeDeleteOptions) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.ExchangeDelete(name, opts, nil) })
	if err == nil {
		bc.b.topology.deleteExchange(name)
	}
	return err
}

// ExchangeBind binds destination to source
func (bc *BlockingChannel) ExchangeBind(ctx context.Context, destination, source, routingKey string, opts ExchangeBindOptions) error {
	_, err := bc.b.do(ctx, func() (*Call, error) {
		return bc.ch.ExchangeBind(destination, source, routingKey, opts, nil)
	})
	if err == nil {
		bc.b.topology.recordBinding(binding{destination: destination, source: source, routingKey: routingKey, args: opts.Args, exchange: true})
	}
	return err
}

// ExchangeUnbind removes an exchange to exchange binding
func (bc *BlockingChannel) ExchangeUnbind(ctx context.Context, destination, source, routingKey string, opts ExchangeBindOptions) error {
	_, err := bc.b.do(ctx, func() (*Call, error) {
		return bc.ch.ExchangeUnbind(destination, source, routingKey, opts, nil)
	})
	if err == nil {
		bc.b.topology.deleteBinding(binding{destination: destination, source: source, routingKey: routingKey, exchange: true})
	}
	return err
}

// QueueDeclare declares a queue
func (bc *BlockingChannel) QueueDeclare(ctx context.Context, name string, opts QueueDeclareOptions) (Queue, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.QueueDeclare(name, opts, nil) })
	if err != nil {
		return Queue{}, err
	}
	q := res.(Queue)
	if q.Name != "" {
		bc.b.topology.recordQueue(q.Name, name == "", opts)
	}
	return q, nil
}

// QueueDeclarePassive checks if a queue exists
func (bc *BlockingChannel) QueueDeclarePassive(ctx context.Context, name string) (Queue, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.QueueDeclarePassive(name, nil) })
	if err != nil {
		return Queue{}, err
	}
	return res.(Queue), nil
}

// QueueBind binds a queue to an exchange
func (bc *BlockingChannel) QueueBind(ctx context.Context, name, exchange, routingKey string, opts QueueBindOptions) error {
	_, err := bc.b.do(ctx, func() (*Call, error) {
		return bc.ch.QueueBind(name, exchange, routingKey, opts, nil)
	})
	if err == nil {
		bc.b.topology.recordBinding(binding{destination: name, source: exchange, routingKey: routingKey, args: opts.Args})
	}
	return err
}

// QueueUnbind removes a queue binding
func (bc *BlockingChannel) QueueUnbind(ctx context.Context, name, exchange, routingKey string, args Table) error {
	_, err := bc.b.do(ctx, func() (*Call, error) {
		return bc.ch.QueueUnbind(name, exchange, routingKey, args, nil)
	})
	if err == nil {
		bc.b.topology.deleteBinding(binding{destination: name, source: exchange, routingKey: routingKey})
	}
	return err
}

// QueuePurge removes all ready messages and returns how many were purged
func (bc *BlockingChannel) QueuePurge(ctx context.Context, name string) (int, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.QueuePurge(name, false, nil) })
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// QueueDelete deletes a queue and returns how many messages it held
func (bc *BlockingChannel) QueueDelete(ctx context.Context, name string, opts QueueDeleteOptions) (int, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.QueueDelete(name, opts, nil) })
	if err != nil {
		return 0, err
	}
	bc.b.topology.deleteQueue(name)
	return res.(int), nil
}

// ConfirmSelect enables publisher confirms. Publish then waits for each
// message to be confirmed.
func (bc *BlockingChannel) ConfirmSelect(ctx context.Context) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.ConfirmSelect(false, nil) })
	if err == nil {
		bc.record(func() { bc.confirm = true })
	}
	return err
}

// Publish sends a message. In confirm mode it waits for the broker's ack
// and returns ErrPublishNacked on nack.
func (bc *BlockingChannel) Publish(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg Publishing) error {
	if !bc.ch.InConfirmMode() {
		_, err := bc.ch.Publish(exchange, routingKey, mandatory, immediate, msg)
		return err
	}

	res, err := bc.b.do(ctx, func() (*Call, error) {
		return bc.ch.PublishWithConfirm(exchange, routingKey, mandatory, immediate, msg, nil)
	})
	if err != nil {
		return err
	}
	if !res.(Confirmation).Ack {
		return ErrPublishNacked
	}
	return nil
}

// Consume registers a consumer and waits for consume-ok. Deliveries are
// dispatched to callback while the connection is pumped, e.g. by
// StartConsuming.
func (bc *BlockingChannel) Consume(ctx context.Context, queue, consumerTag string, opts ConsumeOptions, callback ConsumerCallback) (*Consumer, error) {
	if bc.b.reentrant() {
		return nil, ErrReentrantCall
	}
	cons, err := bc.ch.Consume(queue, consumerTag, opts, callback)
	if err != nil {
		return nil, err
	}
	if _, err := bc.b.await(ctx, cons.call); err != nil {
		return nil, err
	}
	bc.record(func() {
		bc.consumers = append(slices.DeleteFunc(bc.consumers, (*Consumer).stopped), cons)
	})
	return cons, nil
}

// ConsumeWithHandler registers a function consumer and waits for
// consume-ok
func (bc *BlockingChannel) ConsumeWithHandler(ctx context.Context, queue, consumerTag string, opts ConsumeOptions, handler DeliveryHandlerFunc) (*Consumer, error) {
	return bc.Consume(ctx, queue, consumerTag, opts, &handlerConsumer{handler: handler})
}

// Get polls one message. It returns nil when the queue is empty.
func (bc *BlockingChannel) Get(ctx context.Context, queue string, autoAck bool) (*GetResponse, error) {
	res, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.BasicGet(queue, autoAck, nil) })
	if err != nil {
		return nil, err
	}
	resp, _ := res.(*GetResponse)
	return resp, nil
}

// Ack acknowledges one or more messages
func (bc *BlockingChannel) Ack(deliveryTag uint64, multiple bool) error {
	return bc.ch.BasicAck(deliveryTag, multiple)
}

// Nack negatively acknowledges one or more messages
func (bc *BlockingChannel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	return bc.ch.BasicNack(deliveryTag, multiple, requeue)
}

// Reject rejects a single message
func (bc *BlockingChannel) Reject(deliveryTag uint64, requeue bool) error {
	return bc.ch.BasicReject(deliveryTag, requeue)
}

// Recover asks the broker to redeliver unacknowledged messages
func (bc *BlockingChannel) Recover(ctx context.Context, requeue bool) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.Recover(requeue, nil) })
	return err
}

// TxSelect puts the channel in transactional mode
func (bc *BlockingChannel) TxSelect(ctx context.Context) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.TxSelect(nil) })
	if err == nil {
		bc.record(func() { bc.tx = true })
	}
	return err
}

// TxCommit commits the current transaction
func (bc *BlockingChannel) TxCommit(ctx context.Context) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.TxCommit(nil) })
	return err
}

// TxRollback rolls back the current transaction
func (bc *BlockingChannel) TxRollback(ctx context.Context) error {
	_, err := bc.b.do(ctx, func() (*Call, error) { return bc.ch.TxRollback(nil) })
	return err
}
