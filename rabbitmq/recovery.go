package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// Dialer opens a new transport to the broker
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// errReconnecting is the close reason of a connection replaced by Reconnect
var errReconnecting = errors.New("amqp: reconnecting")

type exchangeDeclaration struct {
	name string
	kind string
	opts ExchangeDeclareOptions
}

type queueDeclaration struct {
	name        string
	serverNamed bool
	opts        QueueDeclareOptions
}

// binding binds destination to source. destination is a queue unless
// exchange is set.
type binding struct {
	destination string
	source      string
	routingKey  string
	args        Table
	exchange    bool
}

func (b binding) same(o binding) bool {
	return b.destination == o.destination &&
		b.source == o.source &&
		b.routingKey == o.routingKey &&
		b.exchange == o.exchange
}

type qosSetting struct {
	count  int
	size   int
	global bool
}

// topology records the exchanges, queues and bindings declared through a
// BlockingConnection, in declaration order
type topology struct {
	mu        sync.Mutex
	exchanges []exchangeDeclaration
	queues    []queueDeclaration
	bindings  []binding
}

func (t *topology) recordExchange(name, kind string, opts ExchangeDeclareOptions) {
	if name == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	d := exchangeDeclaration{name: name, kind: kind, opts: opts}
	for i, ex := range t.exchanges {
		if ex.name == name {
			t.exchanges[i] = d
			return
		}
	}
	t.exchanges = append(t.exchanges, d)
}

// deleteExchange forgets the exchange and every binding it takes part in
func (t *topology) deleteExchange(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.exchanges = slices.DeleteFunc(t.exchanges, func(ex exchangeDeclaration) bool {
		return ex.name == name
	})
	t.bindings = slices.DeleteFunc(t.bindings, func(b binding) bool {
		return b.source == name || (b.exchange && b.destination == name)
	})
}

func (t *topology) recordQueue(name string, serverNamed bool, opts QueueDeclareOptions) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := queueDeclaration{name: name, serverNamed: serverNamed, opts: opts}
	for i, q := range t.queues {
		if q.name == name {
			t.queues[i] = d
			return
		}
	}
	t.queues = append(t.queues, d)
}

func (t *topology) deleteQueue(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queues = slices.DeleteFunc(t.queues, func(q queueDeclaration) bool {
		return q.name == name
	})
	t.bindings = slices.DeleteFunc(t.bindings, func(b binding) bool {
		return !b.exchange && b.destination == name
	})
}

func (t *topology) recordBinding(b binding) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, have := range t.bindings {
		if have.same(b) {
			t.bindings[i] = b
			return
		}
	}
	t.bindings = append(t.bindings, b)
}

func (t *topology) deleteBinding(b binding) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bindings = slices.DeleteFunc(t.bindings, b.same)
}

// replay declares the recorded topology on ch. Server-named queues are
// declared again with an empty name; the returned map takes their old names
// to the new ones. The records are left untouched.
func (t *topology) replay(ctx context.Context, b *BlockingConnection, ch *Channel) (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ex := range t.exchanges {
		opts := ex.opts
		opts.NoWait = false
		_, err := b.do(ctx, func() (*Call, error) { return ch.ExchangeDeclare(ex.name, ex.kind, opts, nil) })
		if err != nil {
			return nil, fmt.Errorf("recover exchange %q: %w", ex.name, err)
		}
	}

	renamed := make(map[string]string)
	for _, q := range t.queues {
		name := q.name
		if q.serverNamed {
			name = ""
		}
		opts := q.opts
		opts.NoWait = false
		res, err := b.do(ctx, func() (*Call, error) { return ch.QueueDeclare(name, opts, nil) })
		if err != nil {
			return nil, fmt.Errorf("recover queue %q: %w", q.name, err)
		}
		if got := res.(Queue).Name; got != q.name {
			renamed[q.name] = got
		}
	}

	for _, bd := range t.bindings {
		var err error
		if bd.exchange {
			_, err = b.do(ctx, func() (*Call, error) {
				return ch.ExchangeBind(bd.destination, bd.source, bd.routingKey, ExchangeBindOptions{Args: bd.args}, nil)
			})
		} else {
			queue := renamedQueue(renamed, bd.destination)
			_, err = b.do(ctx, func() (*Call, error) {
				return ch.QueueBind(queue, bd.source, bd.routingKey, QueueBindOptions{Args: bd.args}, nil)
			})
		}
		if err != nil {
			return nil, fmt.Errorf("recover binding %q -> %q: %w", bd.source, bd.destination, err)
		}
	}
	return renamed, nil
}

// rename applies the queue names assigned during a successful replay
func (t *topology) rename(renamed map[string]string) {
	if len(renamed) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.queues {
		t.queues[i].name = renamedQueue(renamed, t.queues[i].name)
	}
	for i := range t.bindings {
		if !t.bindings[i].exchange {
			t.bindings[i].destination = renamedQueue(renamed, t.bindings[i].destination)
		}
	}
}

func renamedQueue(renamed map[string]string, name string) string {
	if n, ok := renamed[name]; ok {
		return n
	}
	return name
}

// Reconnect replaces a lost connection. It dials again with the Dialer the
// connection was opened with, making up to cfg.RecoveryAttempts attempts
// cfg.RecoveryInterval apart, and reopens the channels that were still
// open when the connection went down. Channels keep their qos, confirm and
// transaction modes. With cfg.TopologyRecovery the recorded exchanges,
// queues and bindings are declared again and consumers resume with their
// callbacks and *Consumer handles.
//
// A connection that is still open is aborted first. Reconnect must not run
// concurrently with other operations on the connection or its channels.
// Callbacks registered on the previous Connection and Channel values are
// not carried over.
func (b *BlockingConnection) Reconnect(ctx context.Context) error {
	if b.reentrant() {
		return ErrReentrantCall
	}
	if b.redial == nil {
		return &UsageError{Reason: "reconnect needs a connection opened with a dialer"}
	}

	b.conn.abort(errReconnecting)

	// the reading goroutine, if any, returns once it sees the close
	select {
	case b.pump <- struct{}{}:
		<-b.pump
	case <-ctx.Done():
		return &TimeoutError{Op: "reconnect", Err: ctx.Err()}
	}

	cfg := b.conn.cfg
	log := b.conn.log
	lost := b.lostChannels()

	var err error
	for attempt := 1; attempt <= max(cfg.RecoveryAttempts, 1); attempt++ {
		if attempt > 1 {
			if werr := sleep(ctx, cfg.RecoveryInterval); werr != nil {
				return &TimeoutError{Op: "reconnect", Err: werr}
			}
		}
		if err = b.recover(ctx, cfg, lost); err == nil {
			log.Info().
				Int("attempt", attempt).
				Int("channels", len(lost)).
				Msg("connection recovered")
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("connection recovery attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
}

// lostChannels keeps the channels that closed with the connection and
// forgets those closed on their own. Consumers cancelled by either side are
// dropped.
func (b *BlockingConnection) lostChannels() []*BlockingChannel {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lost []*BlockingChannel
	for _, bc := range b.channels {
		if !errors.Is(bc.ch.CloseError(), ErrConnectionClosed) {
			continue
		}
		bc.consumers = slices.DeleteFunc(bc.consumers, (*Consumer).stopped)
		lost = append(lost, bc)
	}
	b.channels = lost
	return slices.Clone(lost)
}

// recover makes one attempt: dial, handshake, then restore lost
func (b *BlockingConnection) recover(ctx context.Context, cfg *Config, lost []*BlockingChannel) error {
	transport, err := b.redial(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	if err := b.connect(ctx, transport, cfg); err != nil {
		return err
	}
	if err := b.restore(ctx, cfg, lost); err != nil {
		b.conn.abort(err)
		return err
	}
	return nil
}

func (b *BlockingConnection) restore(ctx context.Context, cfg *Config, lost []*BlockingChannel) error {
	for _, bc := range lost {
		ch, err := b.openChannel(ctx)
		if err != nil {
			return err
		}
		bc.ch = ch
	}

	var renamed map[string]string
	if cfg.TopologyRecovery {
		ch, err := b.openChannel(ctx)
		if err != nil {
			return err
		}
		if renamed, err = b.topology.replay(ctx, b, ch); err != nil {
			return err
		}
		if _, err := b.do(ctx, func() (*Call, error) { return ch.Close(nil) }); err != nil {
			return err
		}
	}

	for _, bc := range lost {
		if err := bc.restore(ctx, renamed, cfg.TopologyRecovery); err != nil {
			return fmt.Errorf("recover channel %d: %w", bc.ID(), err)
		}
	}

	b.topology.rename(renamed)
	b.mu.Lock()
	for _, bc := range lost {
		for _, cons := range bc.consumers {
			cons.queue = renamedQueue(renamed, cons.queue)
		}
	}
	b.mu.Unlock()
	return nil
}

// record updates the state Reconnect restores
func (bc *BlockingChannel) record(fn func()) {
	bc.b.mu.Lock()
	defer bc.b.mu.Unlock()
	fn()
}

func (bc *BlockingChannel) recordQos(q qosSetting) {
	bc.record(func() {
		bc.qos = slices.DeleteFunc(bc.qos, func(have qosSetting) bool { return have.global == q.global })
		bc.qos = append(bc.qos, q)
	})
}

// restore applies the recorded settings to the channel's new Channel and,
// with consumers set, registers its consumers on it
func (bc *BlockingChannel) restore(ctx context.Context, renamed map[string]string, consumers bool) error {
	b := bc.b
	b.mu.Lock()
	qos := slices.Clone(bc.qos)
	confirm, tx := bc.confirm, bc.tx
	conss := slices.Clone(bc.consumers)
	b.mu.Unlock()

	for _, q := range qos {
		_, err := b.do(ctx, func() (*Call, error) { return bc.ch.Qos(q.count, q.size, q.global, nil) })
		if err != nil {
			return err
		}
	}
	if confirm {
		if _, err := b.do(ctx, func() (*Call, error) { return bc.ch.ConfirmSelect(false, nil) }); err != nil {
			return err
		}
	}
	if tx {
		if _, err := b.do(ctx, func() (*Call, error) { return bc.ch.TxSelect(nil) }); err != nil {
			return err
		}
	}
	if !consumers {
		return nil
	}

	for _, cons := range conss {
		queue := renamedQueue(renamed, cons.queue)
		_, err := b.do(ctx, func() (*Call, error) { return bc.ch.reconsume(cons, queue) })
		if err != nil {
			return fmt.Errorf("recover consumer %q: %w", cons.tag, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
