package rabbitmq

// Return represents a message returned by the broker (unroutable)
type Return struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
	Properties Properties
	Body       []byte
}

// ReturnListener handles returned messages
type ReturnListener interface {
	HandleReturn(ret Return)
}

// NotifyReturn registers cb for messages returned by the broker
func (ch *Channel) NotifyReturn(cb func(Return)) {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	ch.returnCbs = append(ch.returnCbs, cb)
}

// AddReturnListener adds a callback-based return listener
func (ch *Channel) AddReturnListener(listener ReturnListener) {
	ch.conn.mu.Lock()
	defer ch.conn.mu.Unlock()
	ch.returnListeners = append(ch.returnListeners, listener)
}

func (ch *Channel) handleReturn(ret Return) {
	ch.conn.metrics.MessageReturned()
	if len(ch.returnCbs) == 0 && len(ch.returnListeners) == 0 {
		ch.conn.log.Warn().
			Uint16("channel", ch.id).
			Uint16("code", ret.ReplyCode).
			Str("exchange", ret.Exchange).
			Str("routing_key", ret.RoutingKey).
			Msg("message returned with no return handler")
		return
	}
	for _, cb := range ch.returnCbs {
		ch.conn.enqueue(func() { cb(ret) })
	}
	for _, l := range ch.returnListeners {
		ch.conn.enqueue(func() { l.HandleReturn(ret) })
	}
}
