package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when a payload is truncated or carries a value
// that cannot be decoded.
var ErrMalformed = errors.New("malformed payload")

// Reader decodes AMQP primitive fields from a method, property or table
// payload. The first error sticks: later reads return zero values and Err
// reports the original failure.
type Reader struct {
	data   []byte
	pos    int
	bits   byte
	bitPos int
	err    error
}

// NewReader creates a Reader over data
func NewReader(data []byte) *Reader {
	return &Reader{data: data, bitPos: 8}
}

// Err returns the first decoding error
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) take(n int) []byte {
	r.bitPos = 8
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.pos, len(r.data)-r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Octet() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Short() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Long() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) LongLong() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Bit reads the next packed boolean. Consecutive bits share octets, least
// significant bit first; any other field starts a fresh octet.
func (r *Reader) Bit() bool {
	if r.bitPos >= 8 {
		b := r.take(1)
		if b == nil {
			return false
		}
		r.bits = b[0]
		r.bitPos = 0
	}
	v := r.bits&(1<<uint(r.bitPos)) != 0
	r.bitPos++
	return v
}

func (r *Reader) Shortstr() string {
	n := r.Octet()
	return string(r.take(int(n)))
}

func (r *Reader) Longstr() string {
	return string(r.LongBytes())
}

// LongBytes reads a long string as raw bytes
func (r *Reader) LongBytes() []byte {
	n := r.Long()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Timestamp reads a 64-bit POSIX timestamp
func (r *Reader) Timestamp() time.Time {
	v := r.LongLong()
	if r.err != nil {
		return time.Time{}
	}
	return time.Unix(int64(v), 0)
}

// Writer encodes AMQP primitive fields. Like Reader, the first error sticks.
type Writer struct {
	data   []byte
	bitIdx int
	bitPos int
	err    error
}

// NewWriter creates an empty Writer
func NewWriter() *Writer {
	return &Writer{data: make([]byte, 0, 64), bitPos: 8}
}

// Bytes returns the encoded bytes
func (w *Writer) Bytes() []byte {
	return w.data
}

// Err returns the first encoding error
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) put(b ...byte) {
	w.bitPos = 8
	w.data = append(w.data, b...)
}

func (w *Writer) Octet(v uint8) {
	w.put(v)
}

func (w *Writer) Short(v uint16) {
	w.bitPos = 8
	w.data = binary.BigEndian.AppendUint16(w.data, v)
}

func (w *Writer) Long(v uint32) {
	w.bitPos = 8
	w.data = binary.BigEndian.AppendUint32(w.data, v)
}

func (w *Writer) LongLong(v uint64) {
	w.bitPos = 8
	w.data = binary.BigEndian.AppendUint64(w.data, v)
}

// Bit appends a packed boolean, sharing the octet with preceding bits.
func (w *Writer) Bit(v bool) {
	if w.bitPos >= 8 {
		w.data = append(w.data, 0)
		w.bitIdx = len(w.data) - 1
		w.bitPos = 0
	}
	if v {
		w.data[w.bitIdx] |= 1 << uint(w.bitPos)
	}
	w.bitPos++
}

func (w *Writer) Shortstr(s string) {
	if len(s) > 255 {
		if w.err == nil {
			w.err = fmt.Errorf("short string too long: %d", len(s))
		}
		return
	}
	w.put(uint8(len(s)))
	w.put([]byte(s)...)
}

func (w *Writer) Longstr(s string) {
	w.LongBytes([]byte(s))
}

// LongBytes appends a long string from raw bytes
func (w *Writer) LongBytes(b []byte) {
	w.Long(uint32(len(b)))
	w.put(b...)
}

// Timestamp appends a 64-bit POSIX timestamp
func (w *Writer) Timestamp(t time.Time) {
	w.LongLong(uint64(t.Unix()))
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}
