package rabbitmq

import (
	"errors"
	"fmt"
	"time"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Error is the reason carried by a connection.close or channel.close. When
// Server is true it came from the broker.
type Error struct {
	Code     int
	Reason   string
	Server   bool   // true if error originated from server
	Recover  bool   // true if only the channel was affected
	ClassID  uint16 // method that caused the close, if any
	MethodID uint16
}

// Error implements the error interface
func (e *Error) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("AMQP error %d (%s): %s", e.Code, origin, e.Reason)
}

// NewError creates a new Error from reply code and text
func NewError(code int, reason string, server bool) *Error {
	return &Error{
		Code:    code,
		Reason:  reason,
		Server:  server,
		Recover: protocol.IsSoftError(uint16(code)),
	}
}

func newBrokerError(code uint16, text string, classID, methodID uint16) *Error {
	e := NewError(int(code), text, true)
	e.ClassID = classID
	e.MethodID = methodID
	return e
}

// TransportError is an I/O failure on the underlying transport. It is always
// fatal to the connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a violation detected locally: a malformed frame or an
// out-of-sequence method. Code and Reason are what was sent to the peer in
// the resulting close. Channel 0 means the whole connection was closed.
type ProtocolError struct {
	Code     uint16
	Reason   string
	Channel  uint16
	ClassID  uint16
	MethodID uint16
	Err      error
}

func (e *ProtocolError) Error() string {
	scope := "connection"
	if e.Channel != 0 {
		scope = fmt.Sprintf("channel %d", e.Channel)
	}
	return fmt.Sprintf("protocol error on %s (%d): %s", scope, e.Code, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError reports an exceeded deadline: handshake, heartbeat, close or
// a blocking call.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout lets TimeoutError satisfy net.Error style checks
func (e *TimeoutError) Timeout() bool { return true }

// UsageError means the caller broke the API contract, e.g. publishing on a
// closed channel.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return "amqp: " + e.Reason
}

// Usage errors. Failures caused by a close wrap one of the two closed
// sentinels together with the close reason.
var (
	ErrConnectionClosed = &UsageError{Reason: "connection closed"}
	ErrChannelClosed    = &UsageError{Reason: "channel closed"}
	ErrChannelMax       = &UsageError{Reason: "channel max reached"}
	ErrFlowBlocked      = &UsageError{Reason: "publishing is paused by channel flow"}
	ErrReentrantCall    = &UsageError{Reason: "blocking call made while the connection is dispatching"}
	ErrNotConfirmMode   = &UsageError{Reason: "channel is not in confirm mode"}
	ErrNotOpen          = &UsageError{Reason: "connection is not open"}
)

// Connection setup failures
var (
	// ErrSetupFailed wraps every failure before the connection reaches the
	// open state.
	ErrSetupFailed = errors.New("amqp: connection setup failed")

	// ErrProbableAuthentication is reported when the broker drops the
	// transport right after start-ok, which is how it refuses credentials.
	ErrProbableAuthentication = errors.New("amqp: connection closed during authentication, credentials probably rejected")

	// ErrNoMechanism means none of the configured SASL mechanisms is offered
	// by the broker.
	ErrNoMechanism = errors.New("amqp: no supported SASL mechanism")

	// ErrPublishNacked is returned by a blocking publish in confirm mode
	// when the broker nacks the message.
	ErrPublishNacked = errors.New("amqp: publish nacked by broker")

	// ErrRecoveryFailed wraps the last failure once Reconnect has used up
	// its attempts.
	ErrRecoveryFailed = errors.New("amqp: connection recovery failed")
)

// closedError wraps a closed sentinel with the reason of the close
func closedError(sentinel *UsageError, reason error) error {
	if reason == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, reason)
}

func replyOf(err error) (uint16, string) {
	var be *Error
	if errors.As(err, &be) {
		return uint16(be.Code), be.Reason
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code, pe.Reason
	}
	if err == nil {
		return protocol.ReplySuccess, "normal shutdown"
	}
	return protocol.ReplyConnectionForced, err.Error()
}
