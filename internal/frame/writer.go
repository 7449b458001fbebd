package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// AppendFrame appends the wire encoding of f to dst
func AppendFrame(dst []byte, f *Frame) []byte {
	dst = append(dst, f.Type)
	dst = binary.BigEndian.AppendUint16(dst, f.ChannelID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Payload)))
	dst = append(dst, f.Payload...)
	return append(dst, protocol.FrameEnd)
}

// Encode returns the wire encoding of f
func Encode(f *Frame) []byte {
	return AppendFrame(make([]byte, 0, len(f.Payload)+protocol.FrameOverhead), f)
}

// Writer writes AMQP frames to a connection. All writes go through one
// mutex so a method, its content header and its body frames reach the wire
// without frames from other channels in between.
type Writer struct {
	w        io.Writer
	mu       sync.Mutex
	maxFrame uint32
	buf      []byte
}

// NewWriter creates a new frame writer. maxFrameSize 0 means unlimited.
func NewWriter(w io.Writer, maxFrameSize uint32) *Writer {
	return &Writer{
		w:        w,
		maxFrame: maxFrameSize,
	}
}

// WriteFrames writes frames as one contiguous sequence and returns the
// number of bytes written.
func (fw *Writer) WriteFrames(frames ...*Frame) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.buf = fw.buf[:0]
	for _, f := range frames {
		if fw.maxFrame > 0 && uint64(len(f.Payload))+protocol.FrameOverhead > uint64(fw.maxFrame) {
			return 0, fmt.Errorf("frame payload too large: %d > %d", len(f.Payload)+protocol.FrameOverhead, fw.maxFrame)
		}
		fw.buf = AppendFrame(fw.buf, f)
	}

	n, err := fw.w.Write(fw.buf)
	if err != nil {
		return n, fmt.Errorf("write frames: %w", err)
	}
	return n, nil
}

// WriteProtocolHeader writes the AMQP protocol header
func (fw *Writer) WriteProtocolHeader() (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	n, err := io.WriteString(fw.w, protocol.ProtocolHeader)
	if err != nil {
		return n, fmt.Errorf("write protocol header: %w", err)
	}
	return n, nil
}

// SetMaxFrameSize updates the maximum frame size
func (fw *Writer) SetMaxFrameSize(size uint32) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.maxFrame = size
}
