package rabbitmq

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// fakeClock is advanced by hand
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sink collects what the client writes
type sink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sink) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	return b
}

func (s *sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sink) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// harness plays the broker against an async connection. Frames from the
// broker are fed synchronously; frames from the client are decoded from
// the sink.
type harness struct {
	t     *testing.T
	out   *sink
	clock *fakeClock
	conn  *Connection
	dec   *frame.Decoder
}

var methodCmp = []cmp.Option{cmpopts.EquateEmpty()}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		out:   &sink{},
		clock: newFakeClock(),
		dec:   frame.NewDecoder(0),
	}
	conn, err := newConnection(h.out, NewConfig(opts...), h.clock.Now)
	require.NoError(t, err)
	h.conn = conn
	require.Equal(t, protocol.ProtocolHeader, string(h.out.take()))
	return h
}

// frames returns the frames the client wrote since the last call
func (h *harness) frames() []*frame.Frame {
	h.t.Helper()

	h.dec.Feed(h.out.take())
	var out []*frame.Frame
	for {
		f, err := h.dec.Next()
		if errors.Is(err, frame.ErrNeedMoreData) {
			return out
		}
		require.NoError(h.t, err)
		out = append(out, f)
	}
}

// methods returns the methods the client wrote since the last call on
// channel ch. Content and heartbeat frames are skipped.
func (h *harness) methods(ch uint16) []protocol.Method {
	h.t.Helper()

	var out []protocol.Method
	for _, f := range h.frames() {
		if f.Type != protocol.FrameMethod {
			continue
		}
		require.Equal(h.t, ch, f.ChannelID, "method %s on unexpected channel", f.MethodKey())
		m, err := f.DecodeMethod()
		require.NoError(h.t, err)
		out = append(out, m)
	}
	return out
}

// expect asserts the client wrote exactly want on channel ch
func (h *harness) expect(ch uint16, want ...protocol.Method) {
	h.t.Helper()

	got := h.methods(ch)
	if diff := cmp.Diff(want, got, methodCmp...); diff != "" {
		h.t.Fatalf("sent methods mismatch (-want +got):\n%s", diff)
	}
}

// feed hands frames to the client
func (h *harness) feed(frames ...*frame.Frame) error {
	var buf []byte
	for _, f := range frames {
		buf = frame.AppendFrame(buf, f)
	}
	return h.conn.Feed(buf)
}

func (h *harness) methodFrame(ch uint16, m protocol.Method) *frame.Frame {
	h.t.Helper()

	f, err := frame.MethodFrame(ch, m)
	require.NoError(h.t, err)
	return f
}

// send feeds one method from the broker
func (h *harness) send(ch uint16, m protocol.Method) error {
	h.t.Helper()
	return h.feed(h.methodFrame(ch, m))
}

// content builds m followed by its content header and body frames
func (h *harness) content(ch uint16, m protocol.Method, props Properties, body []byte, chunks ...int) []*frame.Frame {
	h.t.Helper()

	raw, err := EncodeProperties(props)
	require.NoError(h.t, err)

	frames := []*frame.Frame{
		h.methodFrame(ch, m),
		frame.NewHeaderFrame(ch, protocol.ClassBasic, uint64(len(body)), raw),
	}
	if len(chunks) == 0 && len(body) > 0 {
		chunks = []int{len(body)}
	}
	for _, n := range chunks {
		frames = append(frames, frame.NewBodyFrame(ch, body[:n]))
		body = body[n:]
	}
	return frames
}

func (h *harness) start() *protocol.ConnectionStart {
	return &protocol.ConnectionStart{
		VersionMajor:     0,
		VersionMinor:     9,
		ServerProperties: Table{"product": "RabbitMQ", "version": "3.13.0"},
		Mechanisms:       "PLAIN AMQPLAIN",
		Locales:          "en_US",
	}
}

// handshake completes the connection handshake with broker limits
// channel-max 2047, frame-max 131072 and heartbeat 60s
func (h *harness) handshake() {
	h.t.Helper()
	h.handshakeWith(&protocol.ConnectionTune{ChannelMax: 2047, FrameMax: 131072, Heartbeat: 60})
}

func (h *harness) handshakeWith(tune *protocol.ConnectionTune) {
	h.t.Helper()

	require.NoError(h.t, h.send(0, h.start()))
	sent := h.methods(0)
	require.Len(h.t, sent, 1)
	require.IsType(h.t, &protocol.ConnectionStartOk{}, sent[0])

	require.NoError(h.t, h.send(0, tune))
	sent = h.methods(0)
	require.Len(h.t, sent, 2)
	require.IsType(h.t, &protocol.ConnectionTuneOk{}, sent[0])
	require.IsType(h.t, &protocol.ConnectionOpen{}, sent[1])

	require.NoError(h.t, h.send(0, &protocol.ConnectionOpenOk{}))
	require.Equal(h.t, StateOpen, h.conn.State())
}

// openChannel opens the next channel and answers open-ok
func (h *harness) openChannel() *Channel {
	h.t.Helper()

	var opened *Channel
	call, err := h.conn.Channel(func(ch *Channel, err error) {
		require.NoError(h.t, err)
		opened = ch
	})
	require.NoError(h.t, err)
	require.False(h.t, call.Done())

	sent := h.frames()
	require.Len(h.t, sent, 1)
	require.Equal(h.t, protocol.MakeKey(protocol.ClassChannel, protocol.MethodChannelOpen), sent[0].MethodKey())
	id := sent[0].ChannelID
	require.NoError(h.t, h.send(id, &protocol.ChannelOpenOk{}))
	require.NotNil(h.t, opened)
	require.Equal(h.t, ChannelOpen, opened.State())
	return opened
}

// recorder collects callback results in the order they ran
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
