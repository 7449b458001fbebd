package rabbitmq

import (
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Built-in exchange types
const (
	ExchangeDirect  = protocol.ExchangeTypeDirect
	ExchangeFanout  = protocol.ExchangeTypeFanout
	ExchangeTopic   = protocol.ExchangeTypeTopic
	ExchangeHeaders = protocol.ExchangeTypeHeaders
)

// ExchangeDeclareOptions configures exchange declaration
type ExchangeDeclareOptions struct {
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       Table
}

// ExchangeDeleteOptions configures exchange deletion
type ExchangeDeleteOptions struct {
	IfUnused bool
	NoWait   bool
}

// ExchangeBindOptions configures exchange to exchange bindings
type ExchangeBindOptions struct {
	NoWait bool
	Args   Table
}

// QueueDeclareOptions configures queue declaration
type QueueDeclareOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       Table
}

// QueueDeleteOptions configures queue deletion
type QueueDeleteOptions struct {
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

// QueueBindOptions configures queue bindings
type QueueBindOptions struct {
	NoWait bool
	Args   Table
}

// ExchangeDeclare declares an exchange
func (ch *Channel) ExchangeDeclare(name, kind string, opts ExchangeDeclareOptions, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.ExchangeDeclare{
		Exchange:   name,
		Type:       kind,
		Durable:    opts.Durable,
		AutoDelete: opts.AutoDelete,
		Internal:   opts.Internal,
		NoWait:     opts.NoWait,
		Arguments:  opts.Args,
	}, opts.NoWait, nil, errorHandler(cb))
}

// ExchangeDeclarePassive checks if an exchange exists. A missing exchange
// closes the channel with 404.
func (ch *Channel) ExchangeDeclarePassive(name string, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.ExchangeDeclare{Exchange: name, Passive: true}, false, nil, errorHandler(cb))
}

// ExchangeDelete deletes an exchange
func (ch *Channel) ExchangeDelete(name string, opts ExchangeDeleteOptions, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.ExchangeDelete{
		Exchange: name,
		IfUnused: opts.IfUnused,
		NoWait:   opts.NoWait,
	}, opts.NoWait, nil, errorHandler(cb))
}

// ExchangeBind binds destination to source
func (ch *Channel) ExchangeBind(destination, source, routingKey string, opts ExchangeBindOptions, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.ExchangeBind{
		Destination: destination,
		Source:      source,
		RoutingKey:  routingKey,
		NoWait:      opts.NoWait,
		Arguments:   opts.Args,
	}, opts.NoWait, nil, errorHandler(cb))
}

// ExchangeUnbind removes an exchange to exchange binding
func (ch *Channel) ExchangeUnbind(destination, source, routingKey string, opts ExchangeBindOptions, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.ExchangeUnbind{
		Destination: destination,
		Source:      source,
		RoutingKey:  routingKey,
		NoWait:      opts.NoWait,
		Arguments:   opts.Args,
	}, opts.NoWait, nil, errorHandler(cb))
}

// QueueDeclare declares a queue. An empty name asks the broker to generate
// one; cb receives it in Queue.Name.
func (ch *Channel) QueueDeclare(name string, opts QueueDeclareOptions, cb func(Queue, error)) (*Call, error) {
	return ch.rpc(&protocol.QueueDeclare{
		Queue:      name,
		Durable:    opts.Durable,
		Exclusive:  opts.Exclusive,
		AutoDelete: opts.AutoDelete,
		NoWait:     opts.NoWait,
		Arguments:  opts.Args,
	}, opts.NoWait, func(m protocol.Method) any {
		return queueFrom(name, m)
	}, queueHandler(cb))
}

// QueueDeclarePassive checks if a queue exists and reports its counts
func (ch *Channel) QueueDeclarePassive(name string, cb func(Queue, error)) (*Call, error) {
	return ch.rpc(&protocol.QueueDeclare{Queue: name, Passive: true}, false, func(m protocol.Method) any {
		return queueFrom(name, m)
	}, queueHandler(cb))
}

func queueFrom(name string, m protocol.Method) Queue {
	ok, isOk := m.(*protocol.QueueDeclareOk)
	if !isOk {
		// no-wait
		return Queue{Name: name}
	}
	return Queue{
		Name:      ok.Queue,
		Messages:  int(ok.MessageCount),
		Consumers: int(ok.ConsumerCount),
	}
}

func queueHandler(cb func(Queue, error)) func(any, error) {
	return func(result any, err error) {
		if cb == nil {
			return
		}
		q, _ := result.(Queue)
		cb(q, err)
	}
}

// QueueBind binds a queue to an exchange
func (ch *Channel) QueueBind(name, exchange, routingKey string, opts QueueBindOptions, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.QueueBind{
		Queue:      name,
		Exchange:   exchange,
		RoutingKey: routingKey,
		NoWait:     opts.NoWait,
		Arguments:  opts.Args,
	}, opts.NoWait, nil, errorHandler(cb))
}

// QueueUnbind removes a queue binding
func (ch *Channel) QueueUnbind(name, exchange, routingKey string, args Table, cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.QueueUnbind{
		Queue:      name,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Arguments:  args,
	}, false, nil, errorHandler(cb))
}

// QueuePurge removes all ready messages from a queue. cb receives the number
// of messages purged.
func (ch *Channel) QueuePurge(name string, noWait bool, cb func(int, error)) (*Call, error) {
	return ch.rpc(&protocol.QueuePurge{Queue: name, NoWait: noWait}, noWait, func(m protocol.Method) any {
		if ok, isOk := m.(*protocol.QueuePurgeOk); isOk {
			return int(ok.MessageCount)
		}
		return 0
	}, countHandler(cb))
}

// QueueDelete deletes a queue. cb receives the number of messages deleted
// with it.
func (ch *Channel) QueueDelete(name string, opts QueueDeleteOptions, cb func(int, error)) (*Call, error) {
	return ch.rpc(&protocol.QueueDelete{
		Queue:    name,
		IfUnused: opts.IfUnused,
		IfEmpty:  opts.IfEmpty,
		NoWait:   opts.NoWait,
	}, opts.NoWait, func(m protocol.Method) any {
		if ok, isOk := m.(*protocol.QueueDeleteOk); isOk {
			return int(ok.MessageCount)
		}
		return 0
	}, countHandler(cb))
}

func countHandler(cb func(int, error)) func(any, error) {
	return func(result any, err error) {
		if cb == nil {
			return
		}
		n, _ := result.(int)
		cb(n, err)
	}
}
