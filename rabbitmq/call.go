package rabbitmq

import (
	"slices"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Call is a request waiting for its reply. Reply-bearing operations return
// one; the continuation passed to the operation runs once the reply arrives
// or the call fails.
type Call struct {
	conn   *Connection
	ch     *Channel
	key    protocol.Key
	expect []protocol.Key

	// onReply runs with the connection lock held before the call resolves
	// and maps the reply onto the value handed to handler.
	onReply func(protocol.Method) any
	handler func(any, error)

	done      bool
	cancelled bool
	result    any
	err       error
}

func newCall(c *Connection, ch *Channel, m protocol.Method, handler func(any, error)) *Call {
	return &Call{
		conn:    c,
		ch:      ch,
		key:     m.Key(),
		expect:  protocol.ExpectedReplies(m),
		handler: handler,
	}
}

// Method returns the name of the request, e.g. "queue.declare"
func (call *Call) Method() string {
	return call.key.String()
}

// Done reports whether the call has completed
func (call *Call) Done() bool {
	call.conn.mu.Lock()
	defer call.conn.mu.Unlock()
	return call.done
}

// Err returns the failure of a completed call
func (call *Call) Err() error {
	call.conn.mu.Lock()
	defer call.conn.mu.Unlock()
	return call.err
}

// Cancel stops the continuation from running. The request itself is not
// withdrawn: its reply is still consumed when it arrives. Cancel is
// idempotent and safe to call after completion.
func (call *Call) Cancel() {
	call.conn.mu.Lock()
	defer call.conn.mu.Unlock()
	call.cancelled = true
}

func (call *Call) matches(k protocol.Key) bool {
	return slices.Contains(call.expect, k)
}

// resolve completes the call. Called with the connection lock held.
func (call *Call) resolve(result any, err error) {
	if call.done {
		return
	}
	call.done = true
	call.result = result
	call.err = err

	if call.handler == nil || call.cancelled {
		return
	}
	call.conn.enqueue(func() {
		call.conn.mu.Lock()
		cancelled := call.cancelled
		call.conn.mu.Unlock()
		if !cancelled {
			call.handler(result, err)
		}
	})
}

// complete resolves the call with a reply method
func (call *Call) complete(m protocol.Method) {
	var result any = m
	if call.onReply != nil {
		result = call.onReply(m)
	}
	call.resolve(result, nil)
}

// outcome returns the result of a completed call. Called with the
// connection lock held.
func (call *Call) outcome() (any, error) {
	return call.result, call.err
}
