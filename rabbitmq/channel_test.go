package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// TestChannelOpen tests that channel.open-ok hands the channel to the
// continuation
func TestChannelOpen(t *testing.T) {
	h := newHarness(t)
	h.handshake()

	ch := h.openChannel()
	assert.Equal(t, uint16(1), ch.ID())
	assert.Same(t, h.conn, ch.Connection())
	assert.Equal(t, ChannelOpen, ch.State())
	assert.False(t, ch.IsClosed())
	assert.Equal(t, 1, h.conn.ChannelCount())
}

// TestChannelPipelining tests that requests of different kinds are sent at
// once while a second request of a kind already in flight waits
func TestChannelPipelining(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var events recorder
	_, err := ch.QueueDeclare("a", QueueDeclareOptions{}, func(q Queue, err error) {
		require.NoError(t, err)
		events.add("declared " + q.Name)
	})
	require.NoError(t, err)
	_, err = ch.QueueBind("a", "amq.direct", "a", QueueBindOptions{}, func(err error) {
		require.NoError(t, err)
		events.add("bound")
	})
	require.NoError(t, err)
	_, err = ch.QueueDeclare("b", QueueDeclareOptions{Durable: true}, func(q Queue, err error) {
		require.NoError(t, err)
		events.add("declared " + q.Name)
	})
	require.NoError(t, err)

	h.expect(1,
		&protocol.QueueDeclare{Queue: "a"},
		&protocol.QueueBind{Queue: "a", Exchange: "amq.direct", RoutingKey: "a"},
	)

	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "a"}))
	h.expect(1, &protocol.QueueDeclare{Queue: "b", Durable: true})

	require.NoError(t, h.send(1, &protocol.QueueBindOk{}))
	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "b"}))
	assert.Equal(t, []string{"declared a", "bound", "declared b"}, events.list())
}

// TestChannelBacklogOrder tests that frames written behind a held request
// keep their order
func TestChannelBacklogOrder(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	_, err := ch.QueueDeclare("a", QueueDeclareOptions{}, nil)
	require.NoError(t, err)
	_, err = ch.QueueDeclare("b", QueueDeclareOptions{}, nil)
	require.NoError(t, err)

	body := []byte("hello")
	_, err = ch.Publish("", "b", false, false, Publishing{Body: body})
	require.NoError(t, err)
	body[0] = 'j'
	h.expect(1, &protocol.QueueDeclare{Queue: "a"})

	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "a"}))
	sent := h.frames()
	require.Len(t, sent, 4)
	assert.Equal(t, "queue.declare", sent[0].MethodKey().String())
	assert.Equal(t, "basic.publish", sent[1].MethodKey().String())
	assert.Equal(t, uint8(protocol.FrameHeader), sent[2].Type)
	assert.Equal(t, []byte("hello"), sent[3].Payload)
}

// TestChannelReplyMismatch tests replies that do not answer the oldest
// request
func TestChannelReplyMismatch(t *testing.T) {
	tests := []struct {
		name    string
		request bool
		reply   protocol.Method
	}{
		{name: "wrong reply", request: true, reply: &protocol.ExchangeDeclareOk{}},
		{name: "unsolicited reply", reply: &protocol.QueueDeclareOk{Queue: "x"}},
		{name: "second open-ok", reply: &protocol.ChannelOpenOk{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.handshake()
			ch := h.openChannel()

			var callErr error
			if tt.request {
				_, err := ch.QueueDeclare("q", QueueDeclareOptions{}, func(_ Queue, err error) { callErr = err })
				require.NoError(t, err)
				h.frames()
			}

			require.NoError(t, h.send(1, tt.reply))
			sent := h.methods(1)
			require.Len(t, sent, 1)
			closing := sent[0].(*protocol.ChannelClose)
			assert.Equal(t, uint16(protocol.ReplyUnexpectedFrame), closing.ReplyCode)
			assert.Equal(t, tt.reply.Key().ClassID(), closing.ClassID)
			assert.Equal(t, tt.reply.Key().MethodID(), closing.MethodID)
			assert.Equal(t, ChannelClosingLocal, ch.State())

			if tt.request {
				require.ErrorIs(t, callErr, ErrChannelClosed)
				var pe *ProtocolError
				require.ErrorAs(t, callErr, &pe)
				assert.Equal(t, uint16(1), pe.Channel)
			}

			require.NoError(t, h.send(1, &protocol.ChannelCloseOk{}))
			assert.True(t, ch.IsClosed())
			assert.Equal(t, protocol.ReplyUnexpectedFrame, ch.ReplyCode())
			assert.Equal(t, StateOpen, h.conn.State())
		})
	}
}

// TestChannelUnknownMethod tests that an unknown method closes the channel
// with 540
func TestChannelUnknownMethod(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	require.NoError(t, h.feed(frame.NewMethodFrame(1, []byte{0x00, 0x3C, 0x03, 0xE7})))
	sent := h.methods(1)
	require.Len(t, sent, 1)
	closing := sent[0].(*protocol.ChannelClose)
	assert.Equal(t, uint16(protocol.ReplyNotImplemented), closing.ReplyCode)
	assert.Equal(t, uint16(protocol.ClassBasic), closing.ClassID)
	assert.Equal(t, uint16(999), closing.MethodID)
	assert.Equal(t, ChannelClosingLocal, ch.State())
}

// TestChannelErrorIsolated tests that a channel error leaves its siblings
// and the connection alone
func TestChannelErrorIsolated(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch1 := h.openChannel()
	ch2 := h.openChannel()

	require.NoError(t, h.send(2, &protocol.QueueBindOk{}))
	h.methods(2)
	require.NoError(t, h.send(2, &protocol.ChannelCloseOk{}))
	assert.True(t, ch2.IsClosed())

	assert.Equal(t, ChannelOpen, ch1.State())
	_, err := ch1.ExchangeDeclare("logs", "fanout", ExchangeDeclareOptions{Durable: true}, nil)
	require.NoError(t, err)
	h.expect(1, &protocol.ExchangeDeclare{Exchange: "logs", Type: "fanout", Durable: true})
}

// TestChannelPeerClose tests channel.close sent by the broker
func TestChannelPeerClose(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	shutdown := &recordingConsumer{}
	_, err := ch.Consume("q", "c1", ConsumeOptions{}, shutdown)
	require.NoError(t, err)
	require.NoError(t, h.send(1, &protocol.BasicConsumeOk{ConsumerTag: "c1"}))

	var callErr, closeErr error
	_, err = ch.QueueDeclarePassive("missing", func(_ Queue, err error) { callErr = err })
	require.NoError(t, err)
	ch.NotifyClose(func(err error) { closeErr = err })
	h.frames()

	require.NoError(t, h.send(1, &protocol.ChannelClose{
		ReplyCode: protocol.ReplyNotFound,
		ReplyText: "NOT_FOUND - no queue 'missing' in vhost '/'",
		ClassID:   protocol.ClassQueue,
		MethodID:  protocol.MethodQueueDeclare,
	}))
	h.expect(1, &protocol.ChannelCloseOk{})

	require.ErrorIs(t, callErr, ErrChannelClosed)
	var be *Error
	require.ErrorAs(t, callErr, &be)
	assert.Equal(t, protocol.ReplyNotFound, be.Code)
	assert.Equal(t, uint16(protocol.ClassQueue), be.ClassID)
	assert.True(t, be.Recover)

	require.ErrorAs(t, closeErr, &be)
	assert.True(t, ch.IsClosed())
	assert.Equal(t, protocol.ReplyNotFound, ch.ReplyCode())
	assert.Contains(t, ch.ReplyText(), "NOT_FOUND")
	assert.Zero(t, h.conn.ChannelCount())
	assert.Equal(t, []string{"consume-ok c1", "shutdown c1"}, shutdown.events.list())

	_, err = ch.QueueDeclare("q", QueueDeclareOptions{}, nil)
	require.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, StateOpen, h.conn.State())
}

// TestChannelLocalClose tests a graceful channel close with work pending
func TestChannelLocalClose(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var callErr, heldErr error
	_, err := ch.QueueDeclare("q", QueueDeclareOptions{}, func(_ Queue, err error) { callErr = err })
	require.NoError(t, err)
	// same kind, so it waits in the backlog
	_, err = ch.QueueDeclare("r", QueueDeclareOptions{}, func(_ Queue, err error) { heldErr = err })
	require.NoError(t, err)
	h.frames()

	var closed []error
	call, err := ch.Close(func(err error) { closed = append(closed, err) })
	require.NoError(t, err)
	assert.Equal(t, "channel.close", call.Method())
	h.expect(1, &protocol.ChannelClose{ReplyCode: protocol.ReplySuccess, ReplyText: "normal shutdown"})
	require.ErrorIs(t, callErr, ErrChannelClosed)
	require.ErrorIs(t, heldErr, ErrChannelClosed)
	assert.Equal(t, ChannelClosingLocal, ch.State())
	assert.Equal(t, 1, h.conn.ChannelCount())

	_, err = ch.QueueDeclare("q", QueueDeclareOptions{}, nil)
	require.ErrorIs(t, err, ErrChannelClosed)

	// everything but close-ok is dropped while closing
	require.NoError(t, h.feed(h.content(1, &protocol.BasicDeliver{ConsumerTag: "c1", DeliveryTag: 1}, Properties{}, []byte("late"))...))
	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "q"}))
	assert.Empty(t, h.frames())
	assert.Empty(t, closed)

	require.NoError(t, h.send(1, &protocol.ChannelCloseOk{}))
	assert.Equal(t, []error{nil}, closed)
	assert.True(t, ch.IsClosed())
	assert.NoError(t, ch.CloseError())
	assert.Equal(t, protocol.ReplySuccess, ch.ReplyCode())

	_, err = ch.Close(nil)
	require.ErrorIs(t, err, ErrChannelClosed)
}

// TestChannelCloseCrossing tests both sides closing the channel at once
func TestChannelCloseCrossing(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var closeErr error
	closed := false
	_, err := ch.Close(func(err error) {
		closed = true
		closeErr = err
	})
	require.NoError(t, err)
	h.methods(1)

	require.NoError(t, h.send(1, &protocol.ChannelClose{ReplyCode: protocol.ReplySuccess, ReplyText: "bye"}))
	h.expect(1, &protocol.ChannelCloseOk{})
	assert.True(t, closed)
	assert.NoError(t, closeErr)
	assert.True(t, ch.IsClosed())
}

// TestChannelCloseWithCode tests closing a channel with an error code
func TestChannelCloseWithCode(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var notified error
	ch.NotifyClose(func(err error) { notified = err })
	_, err := ch.CloseWithCode(protocol.ReplyPreconditionFailed, "giving up", nil)
	require.NoError(t, err)
	h.expect(1, &protocol.ChannelClose{ReplyCode: protocol.ReplyPreconditionFailed, ReplyText: "giving up"})

	require.NoError(t, h.send(1, &protocol.ChannelCloseOk{}))
	var be *Error
	require.ErrorAs(t, notified, &be)
	assert.Equal(t, protocol.ReplyPreconditionFailed, be.Code)
	assert.False(t, be.Server)
}

// TestChannelFrameBeforeOpenOk tests that only open-ok or close may arrive
// on a channel being opened
func TestChannelFrameBeforeOpenOk(t *testing.T) {
	h := newHarness(t)
	h.handshake()

	var openErr error
	_, err := h.conn.Channel(func(_ *Channel, err error) { openErr = err })
	require.NoError(t, err)
	h.frames()

	require.NoError(t, h.send(1, &protocol.BasicDeliver{ConsumerTag: "c1", DeliveryTag: 1}))
	sent := h.methods(1)
	require.Len(t, sent, 1)
	assert.Equal(t, uint16(protocol.ReplyUnexpectedFrame), sent[0].(*protocol.ChannelClose).ReplyCode)
	require.ErrorIs(t, openErr, ErrChannelClosed)
}

// TestChannelOpenRefused tests a channel.close answering channel.open
func TestChannelOpenRefused(t *testing.T) {
	h := newHarness(t)
	h.handshake()

	var openErr error
	_, err := h.conn.Channel(func(_ *Channel, err error) { openErr = err })
	require.NoError(t, err)
	h.frames()

	require.NoError(t, h.send(1, &protocol.ChannelClose{ReplyCode: protocol.ReplyAccessRefused, ReplyText: "ACCESS_REFUSED"}))
	h.expect(1, &protocol.ChannelCloseOk{})
	var be *Error
	require.ErrorAs(t, openErr, &be)
	assert.Equal(t, protocol.ReplyAccessRefused, be.Code)
	assert.Zero(t, h.conn.ChannelCount())
}

// TestChannelFlowReject tests channel.flow from the broker under the
// default reject policy
func TestChannelFlowReject(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var flows []bool
	ch.NotifyFlow(func(active bool) { flows = append(flows, active) })

	require.NoError(t, h.send(1, &protocol.ChannelFlow{Active: false}))
	h.expect(1, &protocol.ChannelFlowOk{Active: false})
	assert.True(t, ch.IsFlowBlocked())

	_, err := ch.Publish("", "q", false, false, Publishing{Body: []byte("x")})
	require.ErrorIs(t, err, ErrFlowBlocked)
	assert.Empty(t, h.frames())

	require.NoError(t, h.send(1, &protocol.ChannelFlow{Active: true}))
	h.expect(1, &protocol.ChannelFlowOk{Active: true})
	assert.False(t, ch.IsFlowBlocked())

	_, err = ch.Publish("", "q", false, false, Publishing{Body: []byte("x")})
	require.NoError(t, err)
	assert.Len(t, h.frames(), 3)
	assert.Equal(t, []bool{false, true}, flows)
}

// TestChannelFlowQueue tests that publishes are held while flow is paused
// under FlowQueue
func TestChannelFlowQueue(t *testing.T) {
	h := newHarness(t, WithFlowPolicy(FlowQueue))
	h.handshake()
	ch := h.openChannel()

	require.NoError(t, h.send(1, &protocol.ChannelFlow{Active: false}))
	h.frames()

	body := []byte("hello")
	_, err := ch.Publish("", "q", false, false, Publishing{Body: body})
	require.NoError(t, err)
	body[0] = 'j'
	assert.Empty(t, h.frames())

	require.NoError(t, h.send(1, &protocol.ChannelFlow{Active: true}))
	sent := h.frames()
	require.Len(t, sent, 4)
	assert.Equal(t, "channel.flow-ok", sent[0].MethodKey().String())
	assert.Equal(t, "basic.publish", sent[1].MethodKey().String())
	assert.Equal(t, []byte("hello"), sent[3].Payload)
}

// TestChannelFlowRequest tests channel.flow sent by the client
func TestChannelFlowRequest(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var got *bool
	_, err := ch.Flow(false, func(active bool, err error) {
		require.NoError(t, err)
		got = &active
	})
	require.NoError(t, err)
	h.expect(1, &protocol.ChannelFlow{Active: false})

	require.NoError(t, h.send(1, &protocol.ChannelFlowOk{Active: false}))
	require.NotNil(t, got)
	assert.False(t, *got)
}

// TestTopologyOperations tests the exchange and queue management methods
// and the values handed to their continuations
func TestTopologyOperations(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	tests := []struct {
		name  string
		issue func(done func(any)) (*Call, error)
		sent  protocol.Method
		reply protocol.Method
		want  any
	}{
		{
			name: "exchange declare",
			issue: func(done func(any)) (*Call, error) {
				return ch.ExchangeDeclare("logs", ExchangeTopic, ExchangeDeclareOptions{Durable: true, Args: Table{"alternate-exchange": "ae"}}, func(err error) { done(err) })
			},
			sent:  &protocol.ExchangeDeclare{Exchange: "logs", Type: "topic", Durable: true, Arguments: Table{"alternate-exchange": "ae"}},
			reply: &protocol.ExchangeDeclareOk{},
			want:  nil,
		},
		{
			name: "exchange declare passive",
			issue: func(done func(any)) (*Call, error) {
				return ch.ExchangeDeclarePassive("logs", func(err error) { done(err) })
			},
			sent:  &protocol.ExchangeDeclare{Exchange: "logs", Passive: true},
			reply: &protocol.ExchangeDeclareOk{},
			want:  nil,
		},
		{
			name: "exchange bind",
			issue: func(done func(any)) (*Call, error) {
				return ch.ExchangeBind("dst", "src", "rk", ExchangeBindOptions{}, func(err error) { done(err) })
			},
			sent:  &protocol.ExchangeBind{Destination: "dst", Source: "src", RoutingKey: "rk"},
			reply: &protocol.ExchangeBindOk{},
			want:  nil,
		},
		{
			name: "exchange unbind",
			issue: func(done func(any)) (*Call, error) {
				return ch.ExchangeUnbind("dst", "src", "rk", ExchangeBindOptions{}, func(err error) { done(err) })
			},
			sent:  &protocol.ExchangeUnbind{Destination: "dst", Source: "src", RoutingKey: "rk"},
			reply: &protocol.ExchangeUnbindOk{},
			want:  nil,
		},
		{
			name: "exchange delete",
			issue: func(done func(any)) (*Call, error) {
				return ch.ExchangeDelete("logs", ExchangeDeleteOptions{IfUnused: true}, func(err error) { done(err) })
			},
			sent:  &protocol.ExchangeDelete{Exchange: "logs", IfUnused: true},
			reply: &protocol.ExchangeDeleteOk{},
			want:  nil,
		},
		{
			name: "queue declare server named",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueueDeclare("", QueueDeclareOptions{Exclusive: true, AutoDelete: true}, func(q Queue, err error) {
					require.NoError(t, err)
					done(q)
				})
			},
			sent:  &protocol.QueueDeclare{Exclusive: true, AutoDelete: true},
			reply: &protocol.QueueDeclareOk{Queue: "amq.gen-JzTY20BRgKO", MessageCount: 2, ConsumerCount: 1},
			want:  Queue{Name: "amq.gen-JzTY20BRgKO", Messages: 2, Consumers: 1},
		},
		{
			name: "queue declare passive",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueueDeclarePassive("jobs", func(q Queue, err error) {
					require.NoError(t, err)
					done(q)
				})
			},
			sent:  &protocol.QueueDeclare{Queue: "jobs", Passive: true},
			reply: &protocol.QueueDeclareOk{Queue: "jobs", MessageCount: 12},
			want:  Queue{Name: "jobs", Messages: 12},
		},
		{
			name: "queue bind",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueueBind("jobs", "logs", "*.error", QueueBindOptions{}, func(err error) { done(err) })
			},
			sent:  &protocol.QueueBind{Queue: "jobs", Exchange: "logs", RoutingKey: "*.error"},
			reply: &protocol.QueueBindOk{},
			want:  nil,
		},
		{
			name: "queue unbind",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueueUnbind("jobs", "logs", "*.error", nil, func(err error) { done(err) })
			},
			sent:  &protocol.QueueUnbind{Queue: "jobs", Exchange: "logs", RoutingKey: "*.error"},
			reply: &protocol.QueueUnbindOk{},
			want:  nil,
		},
		{
			name: "queue purge",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueuePurge("jobs", false, func(n int, err error) {
					require.NoError(t, err)
					done(n)
				})
			},
			sent:  &protocol.QueuePurge{Queue: "jobs"},
			reply: &protocol.QueuePurgeOk{MessageCount: 5},
			want:  5,
		},
		{
			name: "queue delete",
			issue: func(done func(any)) (*Call, error) {
				return ch.QueueDelete("jobs", QueueDeleteOptions{IfEmpty: true}, func(n int, err error) {
					require.NoError(t, err)
					done(n)
				})
			},
			sent:  &protocol.QueueDelete{Queue: "jobs", IfEmpty: true},
			reply: &protocol.QueueDeleteOk{MessageCount: 7},
			want:  7,
		},
		{
			name: "qos",
			issue: func(done func(any)) (*Call, error) {
				return ch.Qos(10, 0, false, func(err error) { done(err) })
			},
			sent:  &protocol.BasicQos{PrefetchCount: 10},
			reply: &protocol.BasicQosOk{},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got any = "not called"
			call, err := tt.issue(func(v any) { got = v })
			require.NoError(t, err)
			assert.Equal(t, tt.sent.Key().String(), call.Method())
			h.expect(1, tt.sent)
			assert.False(t, call.Done())

			require.NoError(t, h.send(1, tt.reply))
			assert.True(t, call.Done())
			assert.NoError(t, call.Err())
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// TestTopologyNoWait tests that no-wait requests complete without a reply
func TestTopologyNoWait(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var got Queue
	call, err := ch.QueueDeclare("jobs", QueueDeclareOptions{Durable: true, NoWait: true}, func(q Queue, err error) {
		require.NoError(t, err)
		got = q
	})
	require.NoError(t, err)
	assert.True(t, call.Done())
	assert.Equal(t, Queue{Name: "jobs"}, got)
	h.expect(1, &protocol.QueueDeclare{Queue: "jobs", Durable: true, NoWait: true})

	purged := -1
	_, err = ch.QueuePurge("jobs", true, func(n int, err error) { purged = n })
	require.NoError(t, err)
	assert.Zero(t, purged)

	// a real request after no-wait ones is not confused by them
	_, err = ch.QueueDeclarePassive("jobs", nil)
	require.NoError(t, err)
	h.methods(1)
	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "jobs"}))
	assert.Equal(t, ChannelOpen, ch.State())
}

// TestQosValidation tests prefetch range checks
func TestQosValidation(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var ue *UsageError
	_, err := ch.Qos(-1, 0, false, nil)
	require.ErrorAs(t, err, &ue)
	_, err = ch.Qos(70000, 0, false, nil)
	require.ErrorAs(t, err, &ue)
	_, err = ch.Qos(1, -5, false, nil)
	require.ErrorAs(t, err, &ue)
	assert.Empty(t, h.frames())
}

// TestCallCancel tests that a cancelled call swallows its reply
func TestCallCancel(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	called := false
	call, err := ch.QueueDeclare("q", QueueDeclareOptions{}, func(Queue, error) { called = true })
	require.NoError(t, err)
	call.Cancel()
	call.Cancel()
	h.frames()

	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "q"}))
	assert.False(t, called)
	assert.True(t, call.Done())
	assert.NoError(t, call.Err())
	assert.Equal(t, ChannelOpen, ch.State())
}

// TestCallbackChaining tests that continuations may issue further requests
// and run in order
func TestCallbackChaining(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	ch := h.openChannel()

	var events recorder
	_, err := ch.QueueDeclare("", QueueDeclareOptions{Exclusive: true}, func(q Queue, err error) {
		require.NoError(t, err)
		events.add("declared")
		_, err = ch.QueueBind(q.Name, "amq.topic", "#", QueueBindOptions{}, func(err error) {
			require.NoError(t, err)
			events.add("bound")
		})
		require.NoError(t, err)
	})
	require.NoError(t, err)
	h.methods(1)

	require.NoError(t, h.send(1, &protocol.QueueDeclareOk{Queue: "amq.gen-1"}))
	h.expect(1, &protocol.QueueBind{Queue: "amq.gen-1", Exchange: "amq.topic", RoutingKey: "#"})
	require.NoError(t, h.send(1, &protocol.QueueBindOk{}))
	assert.Equal(t, []string{"declared", "bound"}, events.list())
}

// TestChannelStateString tests the state names used in logs
func TestChannelStateString(t *testing.T) {
	tests := map[ChannelState]string{
		ChannelClosed:        "closed",
		ChannelOpenPending:   "open-pending",
		ChannelOpen:          "open",
		ChannelFlowBlocked:   "flow-blocked",
		ChannelClosingLocal:  "closing-local",
		ChannelClosingRemote: "closing-remote",
		ChannelState(99):     "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}
