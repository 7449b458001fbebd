package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnknownMethod is returned for a (class, method) pair that is not part
// of AMQP 0-9-1.
var ErrUnknownMethod = errors.New("unknown method")

// Key identifies a method by class and method id.
type Key uint32

// MakeKey builds a Key from its class and method ids
func MakeKey(classID, methodID uint16) Key {
	return Key(uint32(classID)<<16 | uint32(methodID))
}

func (k Key) ClassID() uint16  { return uint16(k >> 16) }
func (k Key) MethodID() uint16 { return uint16(k) }

// String returns the dotted method name, e.g. "queue.declare-ok"
func (k Key) String() string {
	if e, ok := registry[k]; ok {
		return e.name
	}
	return fmt.Sprintf("%d.%d", k.ClassID(), k.MethodID())
}

type entry struct {
	name    string
	new     func() Method
	replies []Key
}

// registry is built once at package initialisation and only read afterwards.
var registry = map[Key]entry{
	MakeKey(ClassConnection, MethodConnectionStart):          {name: "connection.start", new: func() Method { return new(ConnectionStart) }, replies: keys(ClassConnection, MethodConnectionStartOk)},
	MakeKey(ClassConnection, MethodConnectionStartOk):        {name: "connection.start-ok", new: func() Method { return new(ConnectionStartOk) }},
	MakeKey(ClassConnection, MethodConnectionSecure):         {name: "connection.secure", new: func() Method { return new(ConnectionSecure) }, replies: keys(ClassConnection, MethodConnectionSecureOk)},
	MakeKey(ClassConnection, MethodConnectionSecureOk):       {name: "connection.secure-ok", new: func() Method { return new(ConnectionSecureOk) }},
	MakeKey(ClassConnection, MethodConnectionTune):           {name: "connection.tune", new: func() Method { return new(ConnectionTune) }, replies: keys(ClassConnection, MethodConnectionTuneOk)},
	MakeKey(ClassConnection, MethodConnectionTuneOk):         {name: "connection.tune-ok", new: func() Method { return new(ConnectionTuneOk) }},
	MakeKey(ClassConnection, MethodConnectionOpen):           {name: "connection.open", new: func() Method { return new(ConnectionOpen) }, replies: keys(ClassConnection, MethodConnectionOpenOk)},
	MakeKey(ClassConnection, MethodConnectionOpenOk):         {name: "connection.open-ok", new: func() Method { return new(ConnectionOpenOk) }},
	MakeKey(ClassConnection, MethodConnectionClose):          {name: "connection.close", new: func() Method { return new(ConnectionClose) }, replies: keys(ClassConnection, MethodConnectionCloseOk)},
	MakeKey(ClassConnection, MethodConnectionCloseOk):        {name: "connection.close-ok", new: func() Method { return new(ConnectionCloseOk) }},
	MakeKey(ClassConnection, MethodConnectionBlocked):        {name: "connection.blocked", new: func() Method { return new(ConnectionBlocked) }},
	MakeKey(ClassConnection, MethodConnectionUnblocked):      {name: "connection.unblocked", new: func() Method { return new(ConnectionUnblocked) }},
	MakeKey(ClassConnection, MethodConnectionUpdateSecret):   {name: "connection.update-secret", new: func() Method { return new(ConnectionUpdateSecret) }, replies: keys(ClassConnection, MethodConnectionUpdateSecretOk)},
	MakeKey(ClassConnection, MethodConnectionUpdateSecretOk): {name: "connection.update-secret-ok", new: func() Method { return new(ConnectionUpdateSecretOk) }},

	MakeKey(ClassChannel, MethodChannelOpen):    {name: "channel.open", new: func() Method { return new(ChannelOpen) }, replies: keys(ClassChannel, MethodChannelOpenOk)},
	MakeKey(ClassChannel, MethodChannelOpenOk):  {name: "channel.open-ok", new: func() Method { return new(ChannelOpenOk) }},
	MakeKey(ClassChannel, MethodChannelFlow):    {name: "channel.flow", new: func() Method { return new(ChannelFlow) }, replies: keys(ClassChannel, MethodChannelFlowOk)},
	MakeKey(ClassChannel, MethodChannelFlowOk):  {name: "channel.flow-ok", new: func() Method { return new(ChannelFlowOk) }},
	MakeKey(ClassChannel, MethodChannelClose):   {name: "channel.close", new: func() Method { return new(ChannelClose) }, replies: keys(ClassChannel, MethodChannelCloseOk)},
	MakeKey(ClassChannel, MethodChannelCloseOk): {name: "channel.close-ok", new: func() Method { return new(ChannelCloseOk) }},

	MakeKey(ClassExchange, MethodExchangeDeclare):   {name: "exchange.declare", new: func() Method { return new(ExchangeDeclare) }, replies: keys(ClassExchange, MethodExchangeDeclareOk)},
	MakeKey(ClassExchange, MethodExchangeDeclareOk): {name: "exchange.declare-ok", new: func() Method { return new(ExchangeDeclareOk) }},
	MakeKey(ClassExchange, MethodExchangeDelete):    {name: "exchange.delete", new: func() Method { return new(ExchangeDelete) }, replies: keys(ClassExchange, MethodExchangeDeleteOk)},
	MakeKey(ClassExchange, MethodExchangeDeleteOk):  {name: "exchange.delete-ok", new: func() Method { return new(ExchangeDeleteOk) }},
	MakeKey(ClassExchange, MethodExchangeBind):      {name: "exchange.bind", new: func() Method { return new(ExchangeBind) }, replies: keys(ClassExchange, MethodExchangeBindOk)},
	MakeKey(ClassExchange, MethodExchangeBindOk):    {name: "exchange.bind-ok", new: func() Method { return new(ExchangeBindOk) }},
	MakeKey(ClassExchange, MethodExchangeUnbind):    {name: "exchange.unbind", new: func() Method { return new(ExchangeUnbind) }, replies: keys(ClassExchange, MethodExchangeUnbindOk)},
	MakeKey(ClassExchange, MethodExchangeUnbindOk):  {name: "exchange.unbind-ok", new: func() Method { return new(ExchangeUnbindOk) }},

	MakeKey(ClassQueue, MethodQueueDeclare):   {name: "queue.declare", new: func() Method { return new(QueueDeclare) }, replies: keys(ClassQueue, MethodQueueDeclareOk)},
	MakeKey(ClassQueue, MethodQueueDeclareOk): {name: "queue.declare-ok", new: func() Method { return new(QueueDeclareOk) }},
	MakeKey(ClassQueue, MethodQueueBind):      {name: "queue.bind", new: func() Method { return new(QueueBind) }, replies: keys(ClassQueue, MethodQueueBindOk)},
	MakeKey(ClassQueue, MethodQueueBindOk):    {name: "queue.bind-ok", new: func() Method { return new(QueueBindOk) }},
	MakeKey(ClassQueue, MethodQueuePurge):     {name: "queue.purge", new: func() Method { return new(QueuePurge) }, replies: keys(ClassQueue, MethodQueuePurgeOk)},
	MakeKey(ClassQueue, MethodQueuePurgeOk):   {name: "queue.purge-ok", new: func() Method { return new(QueuePurgeOk) }},
	MakeKey(ClassQueue, MethodQueueDelete):    {name: "queue.delete", new: func() Method { return new(QueueDelete) }, replies: keys(ClassQueue, MethodQueueDeleteOk)},
	MakeKey(ClassQueue, MethodQueueDeleteOk):  {name: "queue.delete-ok", new: func() Method { return new(QueueDeleteOk) }},
	MakeKey(ClassQueue, MethodQueueUnbind):    {name: "queue.unbind", new: func() Method { return new(QueueUnbind) }, replies: keys(ClassQueue, MethodQueueUnbindOk)},
	MakeKey(ClassQueue, MethodQueueUnbindOk):  {name: "queue.unbind-ok", new: func() Method { return new(QueueUnbindOk) }},

	MakeKey(ClassBasic, MethodBasicQos):          {name: "basic.qos", new: func() Method { return new(BasicQos) }, replies: keys(ClassBasic, MethodBasicQosOk)},
	MakeKey(ClassBasic, MethodBasicQosOk):        {name: "basic.qos-ok", new: func() Method { return new(BasicQosOk) }},
	MakeKey(ClassBasic, MethodBasicConsume):      {name: "basic.consume", new: func() Method { return new(BasicConsume) }, replies: keys(ClassBasic, MethodBasicConsumeOk)},
	MakeKey(ClassBasic, MethodBasicConsumeOk):    {name: "basic.consume-ok", new: func() Method { return new(BasicConsumeOk) }},
	MakeKey(ClassBasic, MethodBasicCancel):       {name: "basic.cancel", new: func() Method { return new(BasicCancel) }, replies: keys(ClassBasic, MethodBasicCancelOk)},
	MakeKey(ClassBasic, MethodBasicCancelOk):     {name: "basic.cancel-ok", new: func() Method { return new(BasicCancelOk) }},
	MakeKey(ClassBasic, MethodBasicPublish):      {name: "basic.publish", new: func() Method { return new(BasicPublish) }},
	MakeKey(ClassBasic, MethodBasicReturn):       {name: "basic.return", new: func() Method { return new(BasicReturn) }},
	MakeKey(ClassBasic, MethodBasicDeliver):      {name: "basic.deliver", new: func() Method { return new(BasicDeliver) }},
	MakeKey(ClassBasic, MethodBasicGet):          {name: "basic.get", new: func() Method { return new(BasicGet) }, replies: keys(ClassBasic, MethodBasicGetOk, MethodBasicGetEmpty)},
	MakeKey(ClassBasic, MethodBasicGetOk):        {name: "basic.get-ok", new: func() Method { return new(BasicGetOk) }},
	MakeKey(ClassBasic, MethodBasicGetEmpty):     {name: "basic.get-empty", new: func() Method { return new(BasicGetEmpty) }},
	MakeKey(ClassBasic, MethodBasicAck):          {name: "basic.ack", new: func() Method { return new(BasicAck) }},
	MakeKey(ClassBasic, MethodBasicReject):       {name: "basic.reject", new: func() Method { return new(BasicReject) }},
	MakeKey(ClassBasic, MethodBasicRecoverAsync): {name: "basic.recover-async", new: func() Method { return new(BasicRecoverAsync) }},
	MakeKey(ClassBasic, MethodBasicRecover):      {name: "basic.recover", new: func() Method { return new(BasicRecover) }, replies: keys(ClassBasic, MethodBasicRecoverOk)},
	MakeKey(ClassBasic, MethodBasicRecoverOk):    {name: "basic.recover-ok", new: func() Method { return new(BasicRecoverOk) }},
	MakeKey(ClassBasic, MethodBasicNack):         {name: "basic.nack", new: func() Method { return new(BasicNack) }},

	MakeKey(ClassTx, MethodTxSelect):     {name: "tx.select", new: func() Method { return new(TxSelect) }, replies: keys(ClassTx, MethodTxSelectOk)},
	MakeKey(ClassTx, MethodTxSelectOk):   {name: "tx.select-ok", new: func() Method { return new(TxSelectOk) }},
	MakeKey(ClassTx, MethodTxCommit):     {name: "tx.commit", new: func() Method { return new(TxCommit) }, replies: keys(ClassTx, MethodTxCommitOk)},
	MakeKey(ClassTx, MethodTxCommitOk):   {name: "tx.commit-ok", new: func() Method { return new(TxCommitOk) }},
	MakeKey(ClassTx, MethodTxRollback):   {name: "tx.rollback", new: func() Method { return new(TxRollback) }, replies: keys(ClassTx, MethodTxRollbackOk)},
	MakeKey(ClassTx, MethodTxRollbackOk): {name: "tx.rollback-ok", new: func() Method { return new(TxRollbackOk) }},

	MakeKey(ClassConfirm, MethodConfirmSelect):   {name: "confirm.select", new: func() Method { return new(ConfirmSelect) }, replies: keys(ClassConfirm, MethodConfirmSelectOk)},
	MakeKey(ClassConfirm, MethodConfirmSelectOk): {name: "confirm.select-ok", new: func() Method { return new(ConfirmSelectOk) }},
}

// replyKeys is the set of every method that answers a synchronous request.
var replyKeys = func() map[Key]bool {
	set := make(map[Key]bool)
	for _, e := range registry {
		for _, k := range e.replies {
			set[k] = true
		}
	}
	return set
}()

func keys(classID uint16, methodIDs ...uint16) []Key {
	out := make([]Key, len(methodIDs))
	for i, id := range methodIDs {
		out[i] = MakeKey(classID, id)
	}
	return out
}

// Keys returns every registered method key
func Keys() []Key {
	out := make([]Key, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// New returns a zero value of the method registered under k
func New(k Key) (Method, error) {
	e, ok := registry[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnknownMethod, k.ClassID(), k.MethodID())
	}
	return e.new(), nil
}

// DecodeMethod decodes method arguments for (classID, methodID). Trailing
// bytes after the last field are tolerated.
func DecodeMethod(classID, methodID uint16, args []byte) (Method, error) {
	m, err := New(MakeKey(classID, methodID))
	if err != nil {
		return nil, err
	}

	r := NewReader(args)
	m.read(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Key(), err)
	}
	return m, nil
}

// EncodeMethod encodes a method payload: class id, method id, arguments.
func EncodeMethod(m Method) ([]byte, error) {
	w := NewWriter()
	k := m.Key()
	w.data = binary.BigEndian.AppendUint16(w.data, k.ClassID())
	w.data = binary.BigEndian.AppendUint16(w.data, k.MethodID())
	m.write(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", k, err)
	}
	return w.Bytes(), nil
}

// ExpectedReplies lists the methods that may answer m. It is empty for
// asynchronous methods.
func ExpectedReplies(m Method) []Key {
	return registry[m.Key()].replies
}

// IsReply reports whether k answers some synchronous request
func IsReply(k Key) bool {
	return replyKeys[k]
}
