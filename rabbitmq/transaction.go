package rabbitmq

import (
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// TxSelect puts the channel in transactional mode
func (ch *Channel) TxSelect(cb func(error)) (*Call, error) {
	c := ch.conn
	c.mu.Lock()
	defer c.drain()
	defer c.mu.Unlock()

	if ch.confirm != nil {
		return nil, &UsageError{Reason: "tx.select on a channel in confirm mode"}
	}
	return ch.request(&protocol.TxSelect{}, false, func(m protocol.Method) any {
		ch.txMode = true
		return m
	}, errorHandler(cb))
}

// TxCommit commits the current transaction
func (ch *Channel) TxCommit(cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.TxCommit{}, false, nil, errorHandler(cb))
}

// TxRollback rolls back the current transaction
func (ch *Channel) TxRollback(cb func(error)) (*Call, error) {
	return ch.rpc(&protocol.TxRollback{}, false, nil, errorHandler(cb))
}

// InTransaction returns true after tx.select-ok
func (ch *Channel) InTransaction() bool {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	return ch.txMode
}
