package protocol

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// Table represents an AMQP field table
type Table map[string]interface{}

// Decimal is the AMQP decimal field value: Value scaled down by 10^Scale.
type Decimal struct {
	Scale uint8
	Value int32
}

// Table reads a length-prefixed field table. An empty table decodes to nil.
func (r *Reader) Table() Table {
	n := r.Long()
	body := r.take(int(n))
	if body == nil || len(body) == 0 {
		return nil
	}

	sub := NewReader(body)
	table := make(Table)
	for sub.Remaining() > 0 && sub.err == nil {
		name := sub.Shortstr()
		table[name] = sub.fieldValue()
	}
	if sub.err != nil {
		r.err = sub.err
		return nil
	}
	return table
}

func (r *Reader) array() []interface{} {
	n := r.Long()
	body := r.take(int(n))
	if body == nil || len(body) == 0 {
		return nil
	}

	sub := NewReader(body)
	var values []interface{}
	for sub.Remaining() > 0 && sub.err == nil {
		values = append(values, sub.fieldValue())
	}
	if sub.err != nil {
		r.err = sub.err
		return nil
	}
	return values
}

// fieldValue reads a field value based on its type indicator
func (r *Reader) fieldValue() interface{} {
	tag := r.Octet()
	if r.err != nil {
		return nil
	}

	switch tag {
	case 't':
		return r.Octet() != 0
	case 'b':
		return int8(r.Octet())
	case 'B':
		return r.Octet()
	case 's':
		return int16(r.Short())
	case 'u':
		return r.Short()
	case 'I':
		return int32(r.Long())
	case 'i':
		return r.Long()
	case 'l':
		return int64(r.LongLong())
	case 'f':
		return math.Float32frombits(r.Long())
	case 'd':
		return math.Float64frombits(r.LongLong())
	case 'D':
		scale := r.Octet()
		return Decimal{Scale: scale, Value: int32(r.Long())}
	case 'S':
		return r.Longstr()
	case 'x':
		return r.LongBytes()
	case 'A':
		return r.array()
	case 'T':
		return r.Timestamp()
	case 'F':
		return r.Table()
	case 'V':
		return nil
	default:
		r.err = fmt.Errorf("%w: unknown field type %q", ErrMalformed, tag)
		return nil
	}
}

// Table appends a length-prefixed field table. Keys are written in sorted
// order so equal tables always encode to equal bytes.
func (w *Writer) Table(t Table) {
	if len(t) == 0 {
		w.Long(0)
		return
	}

	sub := NewWriter()
	for _, name := range slices.Sorted(maps.Keys(t)) {
		sub.Shortstr(name)
		sub.fieldValue(t[name])
	}
	if sub.err != nil {
		w.fail(sub.err)
		return
	}
	w.LongBytes(sub.data)
}

func (w *Writer) array(values []interface{}) {
	sub := NewWriter()
	for _, v := range values {
		sub.fieldValue(v)
	}
	if sub.err != nil {
		w.fail(sub.err)
		return
	}
	w.LongBytes(sub.data)
}

// fieldValue writes a field value with its type indicator
func (w *Writer) fieldValue(value interface{}) {
	switch v := value.(type) {
	case bool:
		w.Octet('t')
		if v {
			w.Octet(1)
		} else {
			w.Octet(0)
		}
	case int8:
		w.Octet('b')
		w.Octet(uint8(v))
	case uint8:
		w.Octet('B')
		w.Octet(v)
	case int16:
		w.Octet('s')
		w.Short(uint16(v))
	case uint16:
		w.Octet('u')
		w.Short(v)
	case int32:
		w.Octet('I')
		w.Long(uint32(v))
	case uint32:
		w.Octet('i')
		w.Long(v)
	case int64:
		w.Octet('l')
		w.LongLong(uint64(v))
	case int:
		w.Octet('l')
		w.LongLong(uint64(int64(v)))
	case float32:
		w.Octet('f')
		w.Long(math.Float32bits(v))
	case float64:
		w.Octet('d')
		w.LongLong(math.Float64bits(v))
	case Decimal:
		w.Octet('D')
		w.Octet(v.Scale)
		w.Long(uint32(v.Value))
	case string:
		w.Octet('S')
		w.Longstr(v)
	case []byte:
		w.Octet('x')
		w.LongBytes(v)
	case []interface{}:
		w.Octet('A')
		w.array(v)
	case time.Time:
		w.Octet('T')
		w.Timestamp(v)
	case Table:
		w.Octet('F')
		w.Table(v)
	case map[string]interface{}:
		w.Octet('F')
		w.Table(Table(v))
	case nil:
		w.Octet('V')
	default:
		w.fail(fmt.Errorf("unsupported field value type: %T", value))
	}
}

// ReadTable decodes a complete length-prefixed table from data
func ReadTable(data []byte) (Table, error) {
	r := NewReader(data)
	t := r.Table()
	return t, r.Err()
}

// WriteTable encodes a table with its length prefix
func WriteTable(t Table) ([]byte, error) {
	w := NewWriter()
	w.Table(t)
	return w.Bytes(), w.Err()
}
