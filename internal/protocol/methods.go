package protocol

// Method is a decoded AMQP method frame payload. Reserved fields are not
// exposed; they are written as zero values and skipped on read.
type Method interface {
	Key() Key
	read(r *Reader)
	write(w *Writer)
}

// connection

type ConnectionStart struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties Table
	Mechanisms       string
	Locales          string
}

func (m *ConnectionStart) Key() Key { return MakeKey(ClassConnection, MethodConnectionStart) }
func (m *ConnectionStart) read(r *Reader) {
	m.VersionMajor = r.Octet()
	m.VersionMinor = r.Octet()
	m.ServerProperties = r.Table()
	m.Mechanisms = r.Longstr()
	m.Locales = r.Longstr()
}
func (m *ConnectionStart) write(w *Writer) {
	w.Octet(m.VersionMajor)
	w.Octet(m.VersionMinor)
	w.Table(m.ServerProperties)
	w.Longstr(m.Mechanisms)
	w.Longstr(m.Locales)
}

type ConnectionStartOk struct {
	ClientProperties Table
	Mechanism        string
	Response         string
	Locale           string
}

func (m *ConnectionStartOk) Key() Key { return MakeKey(ClassConnection, MethodConnectionStartOk) }
func (m *ConnectionStartOk) read(r *Reader) {
	m.ClientProperties = r.Table()
	m.Mechanism = r.Shortstr()
	m.Response = r.Longstr()
	m.Locale = r.Shortstr()
}
func (m *ConnectionStartOk) write(w *Writer) {
	w.Table(m.ClientProperties)
	w.Shortstr(m.Mechanism)
	w.Longstr(m.Response)
	w.Shortstr(m.Locale)
}

type ConnectionSecure struct {
	Challenge string
}

func (m *ConnectionSecure) Key() Key        { return MakeKey(ClassConnection, MethodConnectionSecure) }
func (m *ConnectionSecure) read(r *Reader)  { m.Challenge = r.Longstr() }
func (m *ConnectionSecure) write(w *Writer) { w.Longstr(m.Challenge) }

type ConnectionSecureOk struct {
	Response string
}

func (m *ConnectionSecureOk) Key() Key        { return MakeKey(ClassConnection, MethodConnectionSecureOk) }
func (m *ConnectionSecureOk) read(r *Reader)  { m.Response = r.Longstr() }
func (m *ConnectionSecureOk) write(w *Writer) { w.Longstr(m.Response) }

type ConnectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTune) Key() Key { return MakeKey(ClassConnection, MethodConnectionTune) }
func (m *ConnectionTune) read(r *Reader) {
	m.ChannelMax = r.Short()
	m.FrameMax = r.Long()
	m.Heartbeat = r.Short()
}
func (m *ConnectionTune) write(w *Writer) {
	w.Short(m.ChannelMax)
	w.Long(m.FrameMax)
	w.Short(m.Heartbeat)
}

type ConnectionTuneOk struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTuneOk) Key() Key { return MakeKey(ClassConnection, MethodConnectionTuneOk) }
func (m *ConnectionTuneOk) read(r *Reader) {
	m.ChannelMax = r.Short()
	m.FrameMax = r.Long()
	m.Heartbeat = r.Short()
}
func (m *ConnectionTuneOk) write(w *Writer) {
	w.Short(m.ChannelMax)
	w.Long(m.FrameMax)
	w.Short(m.Heartbeat)
}

type ConnectionOpen struct {
	VirtualHost string
}

func (m *ConnectionOpen) Key() Key { return MakeKey(ClassConnection, MethodConnectionOpen) }
func (m *ConnectionOpen) read(r *Reader) {
	m.VirtualHost = r.Shortstr()
	r.Shortstr() // capabilities
	r.Bit()      // insist
}
func (m *ConnectionOpen) write(w *Writer) {
	w.Shortstr(m.VirtualHost)
	w.Shortstr("")
	w.Bit(false)
}

type ConnectionOpenOk struct {
	KnownHosts string
}

func (m *ConnectionOpenOk) Key() Key        { return MakeKey(ClassConnection, MethodConnectionOpenOk) }
func (m *ConnectionOpenOk) read(r *Reader)  { m.KnownHosts = r.Shortstr() }
func (m *ConnectionOpenOk) write(w *Writer) { w.Shortstr(m.KnownHosts) }

type ConnectionClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ConnectionClose) Key() Key { return MakeKey(ClassConnection, MethodConnectionClose) }
func (m *ConnectionClose) read(r *Reader) {
	m.ReplyCode = r.Short()
	m.ReplyText = r.Shortstr()
	m.ClassID = r.Short()
	m.MethodID = r.Short()
}
func (m *ConnectionClose) write(w *Writer) {
	w.Short(m.ReplyCode)
	w.Shortstr(m.ReplyText)
	w.Short(m.ClassID)
	w.Short(m.MethodID)
}

type ConnectionCloseOk struct{}

func (m *ConnectionCloseOk) Key() Key      { return MakeKey(ClassConnection, MethodConnectionCloseOk) }
func (m *ConnectionCloseOk) read(*Reader)  {}
func (m *ConnectionCloseOk) write(*Writer) {}

type ConnectionBlocked struct {
	Reason string
}

func (m *ConnectionBlocked) Key() Key        { return MakeKey(ClassConnection, MethodConnectionBlocked) }
func (m *ConnectionBlocked) read(r *Reader)  { m.Reason = r.Shortstr() }
func (m *ConnectionBlocked) write(w *Writer) { w.Shortstr(m.Reason) }

type ConnectionUnblocked struct{}

func (m *ConnectionUnblocked) Key() Key      { return MakeKey(ClassConnection, MethodConnectionUnblocked) }
func (m *ConnectionUnblocked) read(*Reader)  {}
func (m *ConnectionUnblocked) write(*Writer) {}

type ConnectionUpdateSecret struct {
	NewSecret string
	Reason    string
}

func (m *ConnectionUpdateSecret) Key() Key {
	return MakeKey(ClassConnection, MethodConnectionUpdateSecret)
}
func (m *ConnectionUpdateSecret) read(r *Reader) {
	m.NewSecret = r.Longstr()
	m.Reason = r.Shortstr()
}
func (m *ConnectionUpdateSecret) write(w *Writer) {
	w.Longstr(m.NewSecret)
	w.Shortstr(m.Reason)
}

type ConnectionUpdateSecretOk struct{}

func (m *ConnectionUpdateSecretOk) Key() Key {
	return MakeKey(ClassConnection, MethodConnectionUpdateSecretOk)
}
func (m *ConnectionUpdateSecretOk) read(*Reader)  {}
func (m *ConnectionUpdateSecretOk) write(*Writer) {}

// channel

type ChannelOpen struct{}

func (m *ChannelOpen) Key() Key        { return MakeKey(ClassChannel, MethodChannelOpen) }
func (m *ChannelOpen) read(r *Reader)  { r.Shortstr() }
func (m *ChannelOpen) write(w *Writer) { w.Shortstr("") }

type ChannelOpenOk struct{}

func (m *ChannelOpenOk) Key() Key        { return MakeKey(ClassChannel, MethodChannelOpenOk) }
func (m *ChannelOpenOk) read(r *Reader)  { r.Longstr() }
func (m *ChannelOpenOk) write(w *Writer) { w.Longstr("") }

type ChannelFlow struct {
	Active bool
}

func (m *ChannelFlow) Key() Key        { return MakeKey(ClassChannel, MethodChannelFlow) }
func (m *ChannelFlow) read(r *Reader)  { m.Active = r.Bit() }
func (m *ChannelFlow) write(w *Writer) { w.Bit(m.Active) }

type ChannelFlowOk struct {
	Active bool
}

func (m *ChannelFlowOk) Key() Key        { return MakeKey(ClassChannel, MethodChannelFlowOk) }
func (m *ChannelFlowOk) read(r *Reader)  { m.Active = r.Bit() }
func (m *ChannelFlowOk) write(w *Writer) { w.Bit(m.Active) }

type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ChannelClose) Key() Key { return MakeKey(ClassChannel, MethodChannelClose) }
func (m *ChannelClose) read(r *Reader) {
	m.ReplyCode = r.Short()
	m.ReplyText = r.Shortstr()
	m.ClassID = r.Short()
	m.MethodID = r.Short()
}
func (m *ChannelClose) write(w *Writer) {
	w.Short(m.ReplyCode)
	w.Shortstr(m.ReplyText)
	w.Short(m.ClassID)
	w.Short(m.MethodID)
}

type ChannelCloseOk struct{}

func (m *ChannelCloseOk) Key() Key      { return MakeKey(ClassChannel, MethodChannelCloseOk) }
func (m *ChannelCloseOk) read(*Reader)  {}
func (m *ChannelCloseOk) write(*Writer) {}

// exchange

type ExchangeDeclare struct {
	Exchange   string
	Type       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  Table
}

func (m *ExchangeDeclare) Key() Key { return MakeKey(ClassExchange, MethodExchangeDeclare) }
func (m *ExchangeDeclare) read(r *Reader) {
	r.Short()
	m.Exchange = r.Shortstr()
	m.Type = r.Shortstr()
	m.Passive = r.Bit()
	m.Durable = r.Bit()
	m.AutoDelete = r.Bit()
	m.Internal = r.Bit()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *ExchangeDeclare) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.Type)
	w.Bit(m.Passive)
	w.Bit(m.Durable)
	w.Bit(m.AutoDelete)
	w.Bit(m.Internal)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type ExchangeDeclareOk struct{}

func (m *ExchangeDeclareOk) Key() Key      { return MakeKey(ClassExchange, MethodExchangeDeclareOk) }
func (m *ExchangeDeclareOk) read(*Reader)  {}
func (m *ExchangeDeclareOk) write(*Writer) {}

type ExchangeDelete struct {
	Exchange string
	IfUnused bool
	NoWait   bool
}

func (m *ExchangeDelete) Key() Key { return MakeKey(ClassExchange, MethodExchangeDelete) }
func (m *ExchangeDelete) read(r *Reader) {
	r.Short()
	m.Exchange = r.Shortstr()
	m.IfUnused = r.Bit()
	m.NoWait = r.Bit()
}
func (m *ExchangeDelete) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Exchange)
	w.Bit(m.IfUnused)
	w.Bit(m.NoWait)
}

type ExchangeDeleteOk struct{}

func (m *ExchangeDeleteOk) Key() Key      { return MakeKey(ClassExchange, MethodExchangeDeleteOk) }
func (m *ExchangeDeleteOk) read(*Reader)  {}
func (m *ExchangeDeleteOk) write(*Writer) {}

type ExchangeBind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   Table
}

func (m *ExchangeBind) Key() Key { return MakeKey(ClassExchange, MethodExchangeBind) }
func (m *ExchangeBind) read(r *Reader) {
	r.Short()
	m.Destination = r.Shortstr()
	m.Source = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *ExchangeBind) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Destination)
	w.Shortstr(m.Source)
	w.Shortstr(m.RoutingKey)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type ExchangeBindOk struct{}

func (m *ExchangeBindOk) Key() Key      { return MakeKey(ClassExchange, MethodExchangeBindOk) }
func (m *ExchangeBindOk) read(*Reader)  {}
func (m *ExchangeBindOk) write(*Writer) {}

type ExchangeUnbind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   Table
}

func (m *ExchangeUnbind) Key() Key { return MakeKey(ClassExchange, MethodExchangeUnbind) }
func (m *ExchangeUnbind) read(r *Reader) {
	r.Short()
	m.Destination = r.Shortstr()
	m.Source = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *ExchangeUnbind) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Destination)
	w.Shortstr(m.Source)
	w.Shortstr(m.RoutingKey)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type ExchangeUnbindOk struct{}

func (m *ExchangeUnbindOk) Key() Key      { return MakeKey(ClassExchange, MethodExchangeUnbindOk) }
func (m *ExchangeUnbindOk) read(*Reader)  {}
func (m *ExchangeUnbindOk) write(*Writer) {}

// queue

type QueueDeclare struct {
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  Table
}

func (m *QueueDeclare) Key() Key { return MakeKey(ClassQueue, MethodQueueDeclare) }
func (m *QueueDeclare) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.Passive = r.Bit()
	m.Durable = r.Bit()
	m.Exclusive = r.Bit()
	m.AutoDelete = r.Bit()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *QueueDeclare) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Bit(m.Passive)
	w.Bit(m.Durable)
	w.Bit(m.Exclusive)
	w.Bit(m.AutoDelete)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type QueueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (m *QueueDeclareOk) Key() Key { return MakeKey(ClassQueue, MethodQueueDeclareOk) }
func (m *QueueDeclareOk) read(r *Reader) {
	m.Queue = r.Shortstr()
	m.MessageCount = r.Long()
	m.ConsumerCount = r.Long()
}
func (m *QueueDeclareOk) write(w *Writer) {
	w.Shortstr(m.Queue)
	w.Long(m.MessageCount)
	w.Long(m.ConsumerCount)
}

type QueueBind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Arguments  Table
}

func (m *QueueBind) Key() Key { return MakeKey(ClassQueue, MethodQueueBind) }
func (m *QueueBind) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *QueueBind) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type QueueBindOk struct{}

func (m *QueueBindOk) Key() Key      { return MakeKey(ClassQueue, MethodQueueBindOk) }
func (m *QueueBindOk) read(*Reader)  {}
func (m *QueueBindOk) write(*Writer) {}

type QueuePurge struct {
	Queue  string
	NoWait bool
}

func (m *QueuePurge) Key() Key { return MakeKey(ClassQueue, MethodQueuePurge) }
func (m *QueuePurge) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.NoWait = r.Bit()
}
func (m *QueuePurge) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Bit(m.NoWait)
}

type QueuePurgeOk struct {
	MessageCount uint32
}

func (m *QueuePurgeOk) Key() Key        { return MakeKey(ClassQueue, MethodQueuePurgeOk) }
func (m *QueuePurgeOk) read(r *Reader)  { m.MessageCount = r.Long() }
func (m *QueuePurgeOk) write(w *Writer) { w.Long(m.MessageCount) }

type QueueDelete struct {
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (m *QueueDelete) Key() Key { return MakeKey(ClassQueue, MethodQueueDelete) }
func (m *QueueDelete) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.IfUnused = r.Bit()
	m.IfEmpty = r.Bit()
	m.NoWait = r.Bit()
}
func (m *QueueDelete) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Bit(m.IfUnused)
	w.Bit(m.IfEmpty)
	w.Bit(m.NoWait)
}

type QueueDeleteOk struct {
	MessageCount uint32
}

func (m *QueueDeleteOk) Key() Key        { return MakeKey(ClassQueue, MethodQueueDeleteOk) }
func (m *QueueDeleteOk) read(r *Reader)  { m.MessageCount = r.Long() }
func (m *QueueDeleteOk) write(w *Writer) { w.Long(m.MessageCount) }

type QueueUnbind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  Table
}

func (m *QueueUnbind) Key() Key { return MakeKey(ClassQueue, MethodQueueUnbind) }
func (m *QueueUnbind) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.Arguments = r.Table()
}
func (m *QueueUnbind) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
	w.Table(m.Arguments)
}

type QueueUnbindOk struct{}

func (m *QueueUnbindOk) Key() Key      { return MakeKey(ClassQueue, MethodQueueUnbindOk) }
func (m *QueueUnbindOk) read(*Reader)  {}
func (m *QueueUnbindOk) write(*Writer) {}

// basic

type BasicQos struct {
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}

func (m *BasicQos) Key() Key { return MakeKey(ClassBasic, MethodBasicQos) }
func (m *BasicQos) read(r *Reader) {
	m.PrefetchSize = r.Long()
	m.PrefetchCount = r.Short()
	m.Global = r.Bit()
}
func (m *BasicQos) write(w *Writer) {
	w.Long(m.PrefetchSize)
	w.Short(m.PrefetchCount)
	w.Bit(m.Global)
}

type BasicQosOk struct{}

func (m *BasicQosOk) Key() Key      { return MakeKey(ClassBasic, MethodBasicQosOk) }
func (m *BasicQosOk) read(*Reader)  {}
func (m *BasicQosOk) write(*Writer) {}

type BasicConsume struct {
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   Table
}

func (m *BasicConsume) Key() Key { return MakeKey(ClassBasic, MethodBasicConsume) }
func (m *BasicConsume) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.ConsumerTag = r.Shortstr()
	m.NoLocal = r.Bit()
	m.NoAck = r.Bit()
	m.Exclusive = r.Bit()
	m.NoWait = r.Bit()
	m.Arguments = r.Table()
}
func (m *BasicConsume) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Shortstr(m.ConsumerTag)
	w.Bit(m.NoLocal)
	w.Bit(m.NoAck)
	w.Bit(m.Exclusive)
	w.Bit(m.NoWait)
	w.Table(m.Arguments)
}

type BasicConsumeOk struct {
	ConsumerTag string
}

func (m *BasicConsumeOk) Key() Key        { return MakeKey(ClassBasic, MethodBasicConsumeOk) }
func (m *BasicConsumeOk) read(r *Reader)  { m.ConsumerTag = r.Shortstr() }
func (m *BasicConsumeOk) write(w *Writer) { w.Shortstr(m.ConsumerTag) }

type BasicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (m *BasicCancel) Key() Key { return MakeKey(ClassBasic, MethodBasicCancel) }
func (m *BasicCancel) read(r *Reader) {
	m.ConsumerTag = r.Shortstr()
	m.NoWait = r.Bit()
}
func (m *BasicCancel) write(w *Writer) {
	w.Shortstr(m.ConsumerTag)
	w.Bit(m.NoWait)
}

type BasicCancelOk struct {
	ConsumerTag string
}

func (m *BasicCancelOk) Key() Key        { return MakeKey(ClassBasic, MethodBasicCancelOk) }
func (m *BasicCancelOk) read(r *Reader)  { m.ConsumerTag = r.Shortstr() }
func (m *BasicCancelOk) write(w *Writer) { w.Shortstr(m.ConsumerTag) }

type BasicPublish struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (m *BasicPublish) Key() Key { return MakeKey(ClassBasic, MethodBasicPublish) }
func (m *BasicPublish) read(r *Reader) {
	r.Short()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.Mandatory = r.Bit()
	m.Immediate = r.Bit()
}
func (m *BasicPublish) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
	w.Bit(m.Mandatory)
	w.Bit(m.Immediate)
}

type BasicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (m *BasicReturn) Key() Key { return MakeKey(ClassBasic, MethodBasicReturn) }
func (m *BasicReturn) read(r *Reader) {
	m.ReplyCode = r.Short()
	m.ReplyText = r.Shortstr()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
}
func (m *BasicReturn) write(w *Writer) {
	w.Short(m.ReplyCode)
	w.Shortstr(m.ReplyText)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
}

type BasicDeliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (m *BasicDeliver) Key() Key { return MakeKey(ClassBasic, MethodBasicDeliver) }
func (m *BasicDeliver) read(r *Reader) {
	m.ConsumerTag = r.Shortstr()
	m.DeliveryTag = r.LongLong()
	m.Redelivered = r.Bit()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
}
func (m *BasicDeliver) write(w *Writer) {
	w.Shortstr(m.ConsumerTag)
	w.LongLong(m.DeliveryTag)
	w.Bit(m.Redelivered)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
}

type BasicGet struct {
	Queue string
	NoAck bool
}

func (m *BasicGet) Key() Key { return MakeKey(ClassBasic, MethodBasicGet) }
func (m *BasicGet) read(r *Reader) {
	r.Short()
	m.Queue = r.Shortstr()
	m.NoAck = r.Bit()
}
func (m *BasicGet) write(w *Writer) {
	w.Short(0)
	w.Shortstr(m.Queue)
	w.Bit(m.NoAck)
}

type BasicGetOk struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (m *BasicGetOk) Key() Key { return MakeKey(ClassBasic, MethodBasicGetOk) }
func (m *BasicGetOk) read(r *Reader) {
	m.DeliveryTag = r.LongLong()
	m.Redelivered = r.Bit()
	m.Exchange = r.Shortstr()
	m.RoutingKey = r.Shortstr()
	m.MessageCount = r.Long()
}
func (m *BasicGetOk) write(w *Writer) {
	w.LongLong(m.DeliveryTag)
	w.Bit(m.Redelivered)
	w.Shortstr(m.Exchange)
	w.Shortstr(m.RoutingKey)
	w.Long(m.MessageCount)
}

type BasicGetEmpty struct{}

func (m *BasicGetEmpty) Key() Key        { return MakeKey(ClassBasic, MethodBasicGetEmpty) }
func (m *BasicGetEmpty) read(r *Reader)  { r.Shortstr() }
func (m *BasicGetEmpty) write(w *Writer) { w.Shortstr("") }

type BasicAck struct {
	DeliveryTag uint64
	Multiple    bool
}

func (m *BasicAck) Key() Key { return MakeKey(ClassBasic, MethodBasicAck) }
func (m *BasicAck) read(r *Reader) {
	m.DeliveryTag = r.LongLong()
	m.Multiple = r.Bit()
}
func (m *BasicAck) write(w *Writer) {
	w.LongLong(m.DeliveryTag)
	w.Bit(m.Multiple)
}

type BasicReject struct {
	DeliveryTag uint64
	Requeue     bool
}

func (m *BasicReject) Key() Key { return MakeKey(ClassBasic, MethodBasicReject) }
func (m *BasicReject) read(r *Reader) {
	m.DeliveryTag = r.LongLong()
	m.Requeue = r.Bit()
}
func (m *BasicReject) write(w *Writer) {
	w.LongLong(m.DeliveryTag)
	w.Bit(m.Requeue)
}

type BasicRecoverAsync struct {
	Requeue bool
}

func (m *BasicRecoverAsync) Key() Key        { return MakeKey(ClassBasic, MethodBasicRecoverAsync) }
func (m *BasicRecoverAsync) read(r *Reader)  { m.Requeue = r.Bit() }
func (m *BasicRecoverAsync) write(w *Writer) { w.Bit(m.Requeue) }

type BasicRecover struct {
	Requeue bool
}

func (m *BasicRecover) Key() Key        { return MakeKey(ClassBasic, MethodBasicRecover) }
func (m *BasicRecover) read(r *Reader)  { m.Requeue = r.Bit() }
func (m *BasicRecover) write(w *Writer) { w.Bit(m.Requeue) }

type BasicRecoverOk struct{}

func (m *BasicRecoverOk) Key() Key      { return MakeKey(ClassBasic, MethodBasicRecoverOk) }
func (m *BasicRecoverOk) read(*Reader)  {}
func (m *BasicRecoverOk) write(*Writer) {}

type BasicNack struct {
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (m *BasicNack) Key() Key { return MakeKey(ClassBasic, MethodBasicNack) }
func (m *BasicNack) read(r *Reader) {
	m.DeliveryTag = r.LongLong()
	m.Multiple = r.Bit()
	m.Requeue = r.Bit()
}
func (m *BasicNack) write(w *Writer) {
	w.LongLong(m.DeliveryTag)
	w.Bit(m.Multiple)
	w.Bit(m.Requeue)
}

// tx

type TxSelect struct{}

func (m *TxSelect) Key() Key      { return MakeKey(ClassTx, MethodTxSelect) }
func (m *TxSelect) read(*Reader)  {}
func (m *TxSelect) write(*Writer) {}

type TxSelectOk struct{}

func (m *TxSelectOk) Key() Key      { return MakeKey(ClassTx, MethodTxSelectOk) }
func (m *TxSelectOk) read(*Reader)  {}
func (m *TxSelectOk) write(*Writer) {}

type TxCommit struct{}

func (m *TxCommit) Key() Key      { return MakeKey(ClassTx, MethodTxCommit) }
func (m *TxCommit) read(*Reader)  {}
func (m *TxCommit) write(*Writer) {}

type TxCommitOk struct{}

func (m *TxCommitOk) Key() Key      { return MakeKey(ClassTx, MethodTxCommitOk) }
func (m *TxCommitOk) read(*Reader)  {}
func (m *TxCommitOk) write(*Writer) {}

type TxRollback struct{}

func (m *TxRollback) Key() Key      { return MakeKey(ClassTx, MethodTxRollback) }
func (m *TxRollback) read(*Reader)  {}
func (m *TxRollback) write(*Writer) {}

type TxRollbackOk struct{}

func (m *TxRollbackOk) Key() Key      { return MakeKey(ClassTx, MethodTxRollbackOk) }
func (m *TxRollbackOk) read(*Reader)  {}
func (m *TxRollbackOk) write(*Writer) {}

// confirm

type ConfirmSelect struct {
	NoWait bool
}

func (m *ConfirmSelect) Key() Key        { return MakeKey(ClassConfirm, MethodConfirmSelect) }
func (m *ConfirmSelect) read(r *Reader)  { m.NoWait = r.Bit() }
func (m *ConfirmSelect) write(w *Writer) { w.Bit(m.NoWait) }

type ConfirmSelectOk struct{}

func (m *ConfirmSelectOk) Key() Key      { return MakeKey(ClassConfirm, MethodConfirmSelectOk) }
func (m *ConfirmSelectOk) read(*Reader)  {}
func (m *ConfirmSelectOk) write(*Writer) {}
