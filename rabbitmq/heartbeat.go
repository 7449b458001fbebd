package rabbitmq

import (
	"time"

	"github.com/israelio/rabbit-go-core/internal/frame"
)

// heartbeatFrame is shared by every connection; frames are never mutated
// after creation.
var heartbeatFrame = frame.NewHeartbeatFrame()

// Tick runs the connection timers as of now: the handshake and close
// deadlines, heartbeat sending and dead peer detection. It returns the
// close reason when a timer closed the connection. Hosts call it at
// NextTick or earlier.
func (c *Connection) Tick(now time.Time) error {
	c.mu.Lock()
	err := c.tick(now)
	c.mu.Unlock()
	c.drain()
	return err
}

func (c *Connection) tick(now time.Time) error {
	switch c.state {
	case StateHandshaking:
		if !c.deadline.IsZero() && !now.Before(c.deadline) {
			c.shutdown(&TimeoutError{Op: "handshake", After: c.cfg.HandshakeTimeout})
			return c.closeErr
		}

	case StateClosingLocal:
		if !c.deadline.IsZero() && !now.Before(c.deadline) {
			reason := c.closeErr
			if reason == nil {
				reason = &TimeoutError{Op: "close", After: c.cfg.HandshakeTimeout}
			}
			c.shutdown(reason)
			return c.closeErr
		}

	case StateOpen:
		if c.heartbeat == 0 {
			return nil
		}
		if now.Sub(c.lastRecv) > 2*c.heartbeat {
			c.log.Warn().
				Dur("heartbeat", c.heartbeat).
				Time("last_received", c.lastRecv).
				Msg("missed heartbeats from broker")
			c.shutdown(&TimeoutError{Op: "heartbeat", After: 2 * c.heartbeat})
			return c.closeErr
		}
		if now.Sub(c.lastSent) >= c.heartbeat/2 {
			if err := c.send(heartbeatFrame); err != nil {
				return err
			}
		}
	}
	return nil
}

// NextTick returns when Tick should be called next. The zero time means no
// timer is running.
func (c *Connection) NextTick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateHandshaking, StateClosingLocal:
		return c.deadline
	case StateOpen:
		if c.heartbeat == 0 {
			return time.Time{}
		}
		send := c.lastSent.Add(c.heartbeat / 2)
		dead := c.lastRecv.Add(2*c.heartbeat + time.Nanosecond)
		if send.Before(dead) {
			return send
		}
		return dead
	}
	return time.Time{}
}
