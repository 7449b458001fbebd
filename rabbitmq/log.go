package rabbitmq

import (
	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-go-core/internal/frame"
	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// logger is the package logger. It discards everything until SetLogger is
// called; a Config.Logger overrides it for a single connection.
var logger = zerolog.Nop()

// SetLogger sets the package logger used by connections without their own
func SetLogger(l zerolog.Logger) {
	logger = l
}

func (c *Connection) logFrame(dir string, f *frame.Frame) {
	if c.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	ev := c.log.Debug().
		Str("dir", dir).
		Uint16("channel", f.ChannelID)
	switch f.Type {
	case protocol.FrameMethod:
		ev = ev.Str("method", f.MethodKey().String())
	case protocol.FrameHeader:
		ev = ev.Str("frame", "header")
	case protocol.FrameBody:
		ev = ev.Str("frame", "body").Int("size", len(f.Payload))
	case protocol.FrameHeartbeat:
		ev = ev.Str("frame", "heartbeat")
	}
	ev.Msg("frame")
}
