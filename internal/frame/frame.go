package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Frame represents an AMQP frame
type Frame struct {
	Type      uint8
	ChannelID uint16
	Payload   []byte
}

// Header represents a content header frame payload
type Header struct {
	ClassID    uint16
	Weight     uint16
	BodySize   uint64
	Properties []byte
}

// NewMethodFrame creates a method frame from an already encoded method
// payload (class id, method id, arguments).
func NewMethodFrame(channelID uint16, payload []byte) *Frame {
	return &Frame{
		Type:      protocol.FrameMethod,
		ChannelID: channelID,
		Payload:   payload,
	}
}

// MethodFrame encodes m into a method frame for channelID
func MethodFrame(channelID uint16, m protocol.Method) (*Frame, error) {
	payload, err := protocol.EncodeMethod(m)
	if err != nil {
		return nil, err
	}
	return NewMethodFrame(channelID, payload), nil
}

// NewHeaderFrame creates a new content header frame
func NewHeaderFrame(channelID uint16, classID uint16, bodySize uint64, properties []byte) *Frame {
	payload := make([]byte, 12+len(properties))
	binary.BigEndian.PutUint16(payload[0:2], classID)
	binary.BigEndian.PutUint16(payload[2:4], 0) // weight
	binary.BigEndian.PutUint64(payload[4:12], bodySize)
	copy(payload[12:], properties)

	return &Frame{
		Type:      protocol.FrameHeader,
		ChannelID: channelID,
		Payload:   payload,
	}
}

// NewBodyFrame creates a new content body frame
func NewBodyFrame(channelID uint16, data []byte) *Frame {
	return &Frame{
		Type:      protocol.FrameBody,
		ChannelID: channelID,
		Payload:   data,
	}
}

// NewHeartbeatFrame creates a new heartbeat frame
func NewHeartbeatFrame() *Frame {
	return &Frame{
		Type:      protocol.FrameHeartbeat,
		ChannelID: 0,
		Payload:   []byte{},
	}
}

// DecodeMethod decodes the method carried by a method frame
func (f *Frame) DecodeMethod() (protocol.Method, error) {
	if f.Type != protocol.FrameMethod {
		return nil, fmt.Errorf("not a method frame: type=%d", f.Type)
	}
	if len(f.Payload) < 4 {
		return nil, fmt.Errorf("%w: method frame payload too short: %d", protocol.ErrMalformed, len(f.Payload))
	}

	classID := binary.BigEndian.Uint16(f.Payload[0:2])
	methodID := binary.BigEndian.Uint16(f.Payload[2:4])
	return protocol.DecodeMethod(classID, methodID, f.Payload[4:])
}

// MethodKey returns the (class, method) key of a method frame without
// decoding its arguments. It returns 0 for other frame types.
func (f *Frame) MethodKey() protocol.Key {
	if f.Type != protocol.FrameMethod || len(f.Payload) < 4 {
		return 0
	}
	return protocol.MakeKey(binary.BigEndian.Uint16(f.Payload[0:2]), binary.BigEndian.Uint16(f.Payload[2:4]))
}

// ParseHeader parses a content header frame payload
func (f *Frame) ParseHeader() (*Header, error) {
	if f.Type != protocol.FrameHeader {
		return nil, fmt.Errorf("not a header frame: type=%d", f.Type)
	}

	if len(f.Payload) < 14 {
		return nil, fmt.Errorf("%w: header frame payload too short: %d", protocol.ErrMalformed, len(f.Payload))
	}

	return &Header{
		ClassID:    binary.BigEndian.Uint16(f.Payload[0:2]),
		Weight:     binary.BigEndian.Uint16(f.Payload[2:4]),
		BodySize:   binary.BigEndian.Uint64(f.Payload[4:12]),
		Properties: f.Payload[12:],
	}, nil
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var frameType string
	switch f.Type {
	case protocol.FrameMethod:
		return fmt.Sprintf("Frame{type=METHOD, channel=%d, method=%s}", f.ChannelID, f.MethodKey())
	case protocol.FrameHeader:
		frameType = "HEADER"
	case protocol.FrameBody:
		frameType = "BODY"
	case protocol.FrameHeartbeat:
		frameType = "HEARTBEAT"
	default:
		frameType = fmt.Sprintf("UNKNOWN(%d)", f.Type)
	}

	return fmt.Sprintf("Frame{type=%s, channel=%d, size=%d}", frameType, f.ChannelID, len(f.Payload))
}

// SplitBody cuts body into frames whose payload fits within frameMax.
func SplitBody(channelID uint16, body []byte, frameMax uint32) []*Frame {
	chunk := int(frameMax) - protocol.FrameOverhead
	if frameMax == 0 || chunk <= 0 {
		chunk = len(body)
	}

	var frames []*Frame
	for len(body) > 0 {
		n := min(chunk, len(body))
		frames = append(frames, NewBodyFrame(channelID, body[:n]))
		body = body[n:]
	}
	return frames
}
