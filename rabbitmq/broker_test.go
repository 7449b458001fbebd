package rabbitmq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// pipeHalf is one direction of an in-memory connection. Reads honour a
// deadline the way net.Conn does.
type pipeHalf struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	closed   bool
	deadline time.Time
	timer    *time.Timer
}

func newPipeHalf() *pipeHalf {
	p := &pipeHalf{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipeHalf) read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.buf.Len() == 0 {
		if p.closed {
			return 0, io.EOF
		}
		if !p.deadline.IsZero() && !time.Now().Before(p.deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		p.cond.Wait()
	}
	return p.buf.Read(b)
}

func (p *pipeHalf) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.buf.Write(b)
	p.cond.Broadcast()
	return n, nil
}

func (p *pipeHalf) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.cond.Broadcast()
}

func (p *pipeHalf) setDeadline(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deadline = t
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if d := time.Until(t); !t.IsZero() && d > 0 {
		p.timer = time.AfterFunc(d, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
	}
	p.cond.Broadcast()
}

// pipeEnd is one side of an in-memory duplex connection
type pipeEnd struct {
	in  *pipeHalf
	out *pipeHalf
}

func newPipe() (*pipeEnd, *pipeEnd) {
	a, b := newPipeHalf(), newPipeHalf()
	return &pipeEnd{in: a, out: b}, &pipeEnd{in: b, out: a}
}

func (e *pipeEnd) Read(p []byte) (int, error)  { return e.in.read(p) }
func (e *pipeEnd) Write(p []byte) (int, error) { return e.out.write(p) }

func (e *pipeEnd) Close() error {
	e.in.close()
	e.out.close()
	return nil
}

func (e *pipeEnd) SetReadDeadline(t time.Time) error {
	e.in.setDeadline(t)
	return nil
}

type brokerMessage struct {
	exchange   string
	routingKey string
	props      Properties
	body       []byte
}

type brokerConsumer struct {
	channel uint16
	tag     string
	noAck   bool
}

// brokerHook may answer a method itself. It returns true when the default
// handling must be skipped.
type brokerHook func(b *fakeBroker, ch uint16, m protocol.Method) bool

// fakeBroker is a small in-process broker speaking enough AMQP for the
// blocking adapter tests. The default exchange routes by queue name,
// publishes to "rpc_queue" are answered on their reply-to queue and
// routing keys starting with "nack" are nacked in confirm mode. State is
// only touched by the broker goroutine.
type fakeBroker struct {
	t      *testing.T
	conn   *pipeEnd
	dec    *frame.Decoder
	hook   brokerHook
	silent bool
	done   chan struct{}

	queues    map[string][]brokerMessage
	consumers map[string]brokerConsumer
	confirms  map[uint16]uint64
	tags      map[uint16]uint64
	named     int

	publishing *brokerMessage
	pubChannel uint16
	pubSize    uint64

	mu    sync.Mutex
	acked int
}

// startBroker runs a fake broker and returns the client end of the
// connection to it
func startBroker(t *testing.T, configure ...func(*fakeBroker)) (*pipeEnd, *fakeBroker) {
	t.Helper()

	client, server := newPipe()
	b := &fakeBroker{
		t:         t,
		conn:      server,
		dec:       frame.NewDecoder(0),
		done:      make(chan struct{}),
		queues:    make(map[string][]brokerMessage),
		consumers: make(map[string]brokerConsumer),
		confirms:  make(map[uint16]uint64),
		tags:      make(map[uint16]uint64),
	}
	for _, fn := range configure {
		fn(b)
	}

	go b.run()
	t.Cleanup(func() {
		_ = server.Close()
		<-b.done
	})
	return client, b
}

func (b *fakeBroker) acks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

func (b *fakeBroker) run() {
	defer close(b.done)

	header := make([]byte, len(protocol.ProtocolHeader))
	if _, err := io.ReadFull(b.conn, header); err != nil {
		return
	}
	if string(header) != protocol.ProtocolHeader {
		b.t.Errorf("broker: unexpected protocol header %q", header)
		return
	}
	if b.silent {
		_, _ = io.Copy(io.Discard, b.conn)
		return
	}

	b.send(0, &protocol.ConnectionStart{
		VersionMajor:     0,
		VersionMinor:     9,
		ServerProperties: Table{"product": "fake"},
		Mechanisms:       "PLAIN",
		Locales:          "en_US",
	})

	buf := make([]byte, 4096)
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			b.dec.Feed(buf[:n])
			for {
				f, ferr := b.dec.Next()
				if errors.Is(ferr, frame.ErrNeedMoreData) {
					break
				}
				if ferr != nil {
					b.t.Errorf("broker: %v", ferr)
					return
				}
				b.handle(f)
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *fakeBroker) send(ch uint16, m protocol.Method) {
	f, err := frame.MethodFrame(ch, m)
	if err != nil {
		b.t.Errorf("broker: encode %s: %v", m.Key(), err)
		return
	}
	_, _ = b.conn.Write(frame.Encode(f))
}

func (b *fakeBroker) sendContent(ch uint16, m protocol.Method, props Properties, body []byte) {
	raw, err := EncodeProperties(props)
	if err != nil {
		b.t.Errorf("broker: encode properties: %v", err)
		return
	}
	mf, err := frame.MethodFrame(ch, m)
	if err != nil {
		b.t.Errorf("broker: encode %s: %v", m.Key(), err)
		return
	}
	out := frame.AppendFrame(nil, mf)
	out = frame.AppendFrame(out, frame.NewHeaderFrame(ch, protocol.ClassBasic, uint64(len(body)), raw))
	for _, bf := range frame.SplitBody(ch, body, protocol.DefaultFrameMax) {
		out = frame.AppendFrame(out, bf)
	}
	_, _ = b.conn.Write(out)
}

func (b *fakeBroker) handle(f *frame.Frame) {
	switch f.Type {
	case protocol.FrameHeartbeat:
		return
	case protocol.FrameHeader:
		h, err := f.ParseHeader()
		if err != nil || b.publishing == nil {
			b.t.Errorf("broker: unexpected content header")
			return
		}
		b.publishing.props, _ = DecodeProperties(h.Properties)
		b.pubSize = h.BodySize
		if b.pubSize == 0 {
			b.published()
		}
		return
	case protocol.FrameBody:
		if b.publishing == nil {
			b.t.Errorf("broker: unexpected content body")
			return
		}
		b.publishing.body = append(b.publishing.body, f.Payload...)
		if uint64(len(b.publishing.body)) == b.pubSize {
			b.published()
		}
		return
	}

	m, err := f.DecodeMethod()
	if err != nil {
		b.t.Errorf("broker: %v", err)
		return
	}
	if b.hook != nil && b.hook(b, f.ChannelID, m) {
		return
	}
	b.dispatch(f.ChannelID, m)
}

func (b *fakeBroker) dispatch(ch uint16, m protocol.Method) {
	switch m := m.(type) {
	case *protocol.ConnectionStartOk:
		b.send(0, &protocol.ConnectionTune{ChannelMax: 2047, FrameMax: protocol.DefaultFrameMax, Heartbeat: 60})
	case *protocol.ConnectionTuneOk:
	case *protocol.ConnectionOpen:
		b.send(0, &protocol.ConnectionOpenOk{})
	case *protocol.ConnectionClose:
		b.send(0, &protocol.ConnectionCloseOk{})
	case *protocol.ConnectionCloseOk:
		_ = b.conn.Close()

	case *protocol.ChannelOpen:
		b.send(ch, &protocol.ChannelOpenOk{})
	case *protocol.ChannelClose:
		b.dropChannel(ch)
		b.send(ch, &protocol.ChannelCloseOk{})
	case *protocol.ChannelCloseOk:
		b.dropChannel(ch)
	case *protocol.ChannelFlow:
		b.send(ch, &protocol.ChannelFlowOk{Active: m.Active})

	case *protocol.ExchangeDeclare:
		if !m.NoWait {
			b.send(ch, &protocol.ExchangeDeclareOk{})
		}
	case *protocol.ExchangeDelete:
		b.send(ch, &protocol.ExchangeDeleteOk{})
	case *protocol.ExchangeBind:
		b.send(ch, &protocol.ExchangeBindOk{})
	case *protocol.ExchangeUnbind:
		b.send(ch, &protocol.ExchangeUnbindOk{})

	case *protocol.QueueDeclare:
		name := m.Queue
		if _, ok := b.queues[name]; !ok {
			if m.Passive {
				b.send(ch, &protocol.ChannelClose{
					ReplyCode: protocol.ReplyNotFound,
					ReplyText: fmt.Sprintf("NOT_FOUND - no queue '%s' in vhost '/'", name),
					ClassID:   protocol.ClassQueue,
					MethodID:  protocol.MethodQueueDeclare,
				})
				return
			}
			if name == "" {
				b.named++
				name = fmt.Sprintf("amq.gen-%d", b.named)
			}
			b.queues[name] = nil
		}
		if !m.NoWait {
			b.send(ch, &protocol.QueueDeclareOk{Queue: name, MessageCount: uint32(len(b.queues[name]))})
		}
	case *protocol.QueueBind:
		b.send(ch, &protocol.QueueBindOk{})
	case *protocol.QueueUnbind:
		b.send(ch, &protocol.QueueUnbindOk{})
	case *protocol.QueuePurge:
		n := len(b.queues[m.Queue])
		b.queues[m.Queue] = nil
		b.send(ch, &protocol.QueuePurgeOk{MessageCount: uint32(n)})
	case *protocol.QueueDelete:
		n := len(b.queues[m.Queue])
		delete(b.queues, m.Queue)
		b.send(ch, &protocol.QueueDeleteOk{MessageCount: uint32(n)})

	case *protocol.BasicQos:
		b.send(ch, &protocol.BasicQosOk{})
	case *protocol.BasicConsume:
		b.consumers[m.Queue] = brokerConsumer{channel: ch, tag: m.ConsumerTag, noAck: m.NoAck}
		b.send(ch, &protocol.BasicConsumeOk{ConsumerTag: m.ConsumerTag})
		queued := b.queues[m.Queue]
		b.queues[m.Queue] = nil
		for _, msg := range queued {
			b.route(m.Queue, msg)
		}
	case *protocol.BasicCancel:
		for queue, c := range b.consumers {
			if c.tag == m.ConsumerTag {
				delete(b.consumers, queue)
			}
		}
		b.send(ch, &protocol.BasicCancelOk{ConsumerTag: m.ConsumerTag})
	case *protocol.BasicGet:
		queued := b.queues[m.Queue]
		if len(queued) == 0 {
			b.send(ch, &protocol.BasicGetEmpty{})
			return
		}
		msg := queued[0]
		b.queues[m.Queue] = queued[1:]
		b.tags[ch]++
		b.sendContent(ch, &protocol.BasicGetOk{
			DeliveryTag:  b.tags[ch],
			Exchange:     msg.exchange,
			RoutingKey:   msg.routingKey,
			MessageCount: uint32(len(queued) - 1),
		}, msg.props, msg.body)
	case *protocol.BasicPublish:
		b.publishing = &brokerMessage{exchange: m.Exchange, routingKey: m.RoutingKey}
		b.pubChannel = ch
		b.pubSize = 0
	case *protocol.BasicAck:
		b.mu.Lock()
		b.acked++
		b.mu.Unlock()
	case *protocol.BasicNack, *protocol.BasicReject:
	case *protocol.BasicRecover:
		b.send(ch, &protocol.BasicRecoverOk{})

	case *protocol.ConfirmSelect:
		b.confirms[ch] = 0
		b.send(ch, &protocol.ConfirmSelectOk{})
	case *protocol.TxSelect:
		b.send(ch, &protocol.TxSelectOk{})
	case *protocol.TxCommit:
		b.send(ch, &protocol.TxCommitOk{})
	case *protocol.TxRollback:
		b.send(ch, &protocol.TxRollbackOk{})

	default:
		b.t.Errorf("broker: unhandled %s", m.Key())
	}
}

func (b *fakeBroker) dropChannel(ch uint16) {
	for queue, c := range b.consumers {
		if c.channel == ch {
			delete(b.consumers, queue)
		}
	}
	delete(b.confirms, ch)
}

// published settles a complete publish: confirm it, then route it
func (b *fakeBroker) published() {
	msg := *b.publishing
	ch := b.pubChannel
	b.publishing = nil

	if seq, ok := b.confirms[ch]; ok {
		seq++
		b.confirms[ch] = seq
		if strings.HasPrefix(msg.routingKey, "nack") {
			b.send(ch, &protocol.BasicNack{DeliveryTag: seq})
		} else {
			b.send(ch, &protocol.BasicAck{DeliveryTag: seq})
		}
	}

	if msg.exchange != "" {
		return
	}
	if msg.routingKey == "rpc_queue" {
		b.route(msg.props.ReplyTo, brokerMessage{
			routingKey: msg.props.ReplyTo,
			props:      Properties{CorrelationId: msg.props.CorrelationId},
			body:       bytes.ToUpper(msg.body),
		})
		return
	}
	if _, ok := b.queues[msg.routingKey]; ok {
		b.route(msg.routingKey, msg)
	}
}

// route delivers msg to the consumer of queue or stores it
func (b *fakeBroker) route(queue string, msg brokerMessage) {
	c, ok := b.consumers[queue]
	if !ok {
		b.queues[queue] = append(b.queues[queue], msg)
		return
	}
	b.tags[c.channel]++
	b.sendContent(c.channel, &protocol.BasicDeliver{
		ConsumerTag: c.tag,
		DeliveryTag: b.tags[c.channel],
		Exchange:    msg.exchange,
		RoutingKey:  msg.routingKey,
	}, msg.props, msg.body)
}
