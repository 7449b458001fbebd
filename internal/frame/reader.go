package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

var (
	// ErrNeedMoreData means the buffer does not hold a complete frame yet.
	// Nothing was consumed.
	ErrNeedMoreData = errors.New("need more data")

	// ErrMalformed is wrapped by every framing error: unknown frame type
	// or a bad frame-end marker.
	ErrMalformed = errors.New("malformed frame")

	// ErrFrameTooLarge means a frame exceeds the negotiated frame-max.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrProtocolHeader means the peer answered with a protocol header,
	// which is how a broker rejects our protocol version.
	ErrProtocolHeader = errors.New("peer sent protocol header")
)

// Decode decodes one frame from the start of buf. It returns the frame and
// the number of bytes consumed, or ErrNeedMoreData when buf is a prefix of a
// frame. maxFrame bounds the whole frame including overhead; 0 disables the
// check.
func Decode(buf []byte, maxFrame uint32) (*Frame, int, error) {
	if len(buf) > 0 && buf[0] == 'A' {
		if len(buf) < len(protocol.ProtocolHeader) {
			return nil, 0, ErrNeedMoreData
		}
		if bytes.HasPrefix(buf, []byte("AMQP")) {
			return nil, 0, fmt.Errorf("%w: %q", ErrProtocolHeader, buf[:len(protocol.ProtocolHeader)])
		}
	}

	if len(buf) < protocol.FrameHeaderSize {
		return nil, 0, ErrNeedMoreData
	}

	frameType := buf[0]
	channelID := binary.BigEndian.Uint16(buf[1:3])
	size := binary.BigEndian.Uint32(buf[3:7])

	if !isValidFrameType(frameType) {
		return nil, 0, fmt.Errorf("%w: invalid frame type %d", ErrMalformed, frameType)
	}

	total := uint64(size) + protocol.FrameOverhead
	if maxFrame > 0 && total > uint64(maxFrame) {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, maxFrame)
	}
	if uint64(len(buf)) < total {
		return nil, 0, ErrNeedMoreData
	}

	end := protocol.FrameHeaderSize + int(size)
	if buf[end] != protocol.FrameEnd {
		return nil, 0, fmt.Errorf("%w: invalid frame end marker 0x%02X (expected 0x%02X)", ErrMalformed, buf[end], protocol.FrameEnd)
	}

	payload := make([]byte, size)
	copy(payload, buf[protocol.FrameHeaderSize:end])

	return &Frame{
		Type:      frameType,
		ChannelID: channelID,
		Payload:   payload,
	}, int(total), nil
}

// Decoder buffers a byte stream fed in arbitrary chunks and yields the
// complete frames it contains, in order.
type Decoder struct {
	buf      []byte
	maxFrame uint32
	err      error
}

// NewDecoder creates a decoder. maxFrameSize 0 means unlimited until
// SetMaxFrameSize is called.
func NewDecoder(maxFrameSize uint32) *Decoder {
	return &Decoder{maxFrame: maxFrameSize}
}

// Feed appends p to the pending buffer
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, ErrNeedMoreData when the buffer only
// holds a partial frame, or a framing error. Framing errors are sticky: the
// stream cannot be resynchronised.
func (d *Decoder) Next() (*Frame, error) {
	if d.err != nil {
		return nil, d.err
	}

	f, n, err := Decode(d.buf, d.maxFrame)
	if err != nil {
		if !errors.Is(err, ErrNeedMoreData) {
			d.err = err
		}
		return nil, err
	}

	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return f, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// SetMaxFrameSize updates the maximum frame size
func (d *Decoder) SetMaxFrameSize(size uint32) {
	d.maxFrame = size
}

// isValidFrameType checks if the frame type is valid
func isValidFrameType(frameType uint8) bool {
	switch frameType {
	case protocol.FrameMethod,
		protocol.FrameHeader,
		protocol.FrameBody,
		protocol.FrameHeartbeat:
		return true
	default:
		return false
	}
}
