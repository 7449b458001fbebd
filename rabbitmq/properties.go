package rabbitmq

import (
	"time"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Table is an alias for AMQP field table
type Table = protocol.Table

// Decimal is an alias for the AMQP decimal field value
type Decimal = protocol.Decimal

// Properties represents the basic class content header properties
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationId   string
	ReplyTo         string
	Expiration      string
	MessageId       string
	Timestamp       time.Time
	Type            string
	UserId          string
	AppId           string
	ClusterId       string // deprecated in 0-9-1, kept for wire compatibility
}

// Publishing represents a message to publish
type Publishing struct {
	Properties
	Body []byte
}

// Property flags for encoding/decoding
const (
	flagContentType     = 0x8000
	flagContentEncoding = 0x4000
	flagHeaders         = 0x2000
	flagDeliveryMode    = 0x1000
	flagPriority        = 0x0800
	flagCorrelationId   = 0x0400
	flagReplyTo         = 0x0200
	flagExpiration      = 0x0100
	flagMessageId       = 0x0080
	flagTimestamp       = 0x0040
	flagType            = 0x0020
	flagUserId          = 0x0010
	flagAppId           = 0x0008
	flagClusterId       = 0x0004
)

func (p Properties) flags() uint16 {
	var flags uint16
	set := func(present bool, flag uint16) {
		if present {
			flags |= flag
		}
	}
	set(p.ContentType != "", flagContentType)
	set(p.ContentEncoding != "", flagContentEncoding)
	set(len(p.Headers) > 0, flagHeaders)
	set(p.DeliveryMode != 0, flagDeliveryMode)
	set(p.Priority != 0, flagPriority)
	set(p.CorrelationId != "", flagCorrelationId)
	set(p.ReplyTo != "", flagReplyTo)
	set(p.Expiration != "", flagExpiration)
	set(p.MessageId != "", flagMessageId)
	set(!p.Timestamp.IsZero(), flagTimestamp)
	set(p.Type != "", flagType)
	set(p.UserId != "", flagUserId)
	set(p.AppId != "", flagAppId)
	set(p.ClusterId != "", flagClusterId)
	return flags
}

// EncodeProperties encodes properties to wire format: the flag word followed
// by each present property in flag order.
func EncodeProperties(props Properties) ([]byte, error) {
	flags := props.flags()

	w := protocol.NewWriter()
	w.Short(flags)

	if flags&flagContentType != 0 {
		w.Shortstr(props.ContentType)
	}
	if flags&flagContentEncoding != 0 {
		w.Shortstr(props.ContentEncoding)
	}
	if flags&flagHeaders != 0 {
		w.Table(props.Headers)
	}
	if flags&flagDeliveryMode != 0 {
		w.Octet(props.DeliveryMode)
	}
	if flags&flagPriority != 0 {
		w.Octet(props.Priority)
	}
	if flags&flagCorrelationId != 0 {
		w.Shortstr(props.CorrelationId)
	}
	if flags&flagReplyTo != 0 {
		w.Shortstr(props.ReplyTo)
	}
	if flags&flagExpiration != 0 {
		w.Shortstr(props.Expiration)
	}
	if flags&flagMessageId != 0 {
		w.Shortstr(props.MessageId)
	}
	if flags&flagTimestamp != 0 {
		w.Timestamp(props.Timestamp)
	}
	if flags&flagType != 0 {
		w.Shortstr(props.Type)
	}
	if flags&flagUserId != 0 {
		w.Shortstr(props.UserId)
	}
	if flags&flagAppId != 0 {
		w.Shortstr(props.AppId)
	}
	if flags&flagClusterId != 0 {
		w.Shortstr(props.ClusterId)
	}

	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeProperties decodes properties from wire format
func DecodeProperties(data []byte) (Properties, error) {
	var props Properties
	r := protocol.NewReader(data)

	flags := r.Short()

	if flags&flagContentType != 0 {
		props.ContentType = r.Shortstr()
	}
	if flags&flagContentEncoding != 0 {
		props.ContentEncoding = r.Shortstr()
	}
	if flags&flagHeaders != 0 {
		props.Headers = r.Table()
	}
	if flags&flagDeliveryMode != 0 {
		props.DeliveryMode = r.Octet()
	}
	if flags&flagPriority != 0 {
		props.Priority = r.Octet()
	}
	if flags&flagCorrelationId != 0 {
		props.CorrelationId = r.Shortstr()
	}
	if flags&flagReplyTo != 0 {
		props.ReplyTo = r.Shortstr()
	}
	if flags&flagExpiration != 0 {
		props.Expiration = r.Shortstr()
	}
	if flags&flagMessageId != 0 {
		props.MessageId = r.Shortstr()
	}
	if flags&flagTimestamp != 0 {
		props.Timestamp = r.Timestamp()
	}
	if flags&flagType != 0 {
		props.Type = r.Shortstr()
	}
	if flags&flagUserId != 0 {
		props.UserId = r.Shortstr()
	}
	if flags&flagAppId != 0 {
		props.AppId = r.Shortstr()
	}
	if flags&flagClusterId != 0 {
		props.ClusterId = r.Shortstr()
	}

	if err := r.Err(); err != nil {
		return Properties{}, err
	}
	return props, nil
}

// Predefined message properties
var (
	// MinimalBasic is an empty set of properties
	MinimalBasic = Properties{}

	// MinimalPersistentBasic has only persistent delivery mode
	MinimalPersistentBasic = Properties{
		DeliveryMode: protocol.DeliveryModePersistent,
	}

	// Basic is basic properties with default content type
	Basic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: protocol.DeliveryModeNonPersistent,
	}

	// PersistentBasic is basic properties with persistent delivery
	PersistentBasic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: protocol.DeliveryModePersistent,
	}

	// TextPlain is properties for text messages
	TextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: protocol.DeliveryModeNonPersistent,
	}

	// PersistentTextPlain is properties for persistent text messages
	PersistentTextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: protocol.DeliveryModePersistent,
	}
)
