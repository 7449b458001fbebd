package rabbitmq

import (
	"io"
	"time"
)

// AsyncConnection is a Connection driven by the host's own event loop. The
// host reads the transport and hands the bytes to Feed, calls TransportFailed
// when reading fails, and calls Tick no later than NextTick. No goroutines
// are started; every continuation runs on the goroutine calling Feed or the
// operation that completed it.
type AsyncConnection struct {
	*Connection
}

// NewAsyncConnection writes the protocol header to w and starts the
// handshake. Register OnOpen to learn when the connection is usable.
func NewAsyncConnection(w io.WriteCloser, cfg *Config) (*AsyncConnection, error) {
	conn, err := newConnection(w, cfg, time.Now)
	if err != nil {
		return nil, err
	}
	return &AsyncConnection{Connection: conn}, nil
}

// Pump reads r until it fails, feeding everything read into the connection
// and running timers between reads. It is a convenience for hosts that
// dedicate a goroutine to the transport; r should return periodically (for
// instance through read deadlines) so heartbeats are sent on time.
func (ac *AsyncConnection) Pump(r io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := ac.Feed(buf[:n]); ferr != nil && ac.IsClosed() {
				return ferr
			}
		}
		if err != nil && !isTimeout(err) {
			ac.TransportFailed(err)
			return ac.CloseError()
		}
		if terr := ac.Tick(time.Now()); terr != nil {
			return terr
		}
		if ac.IsClosed() {
			return ac.CloseError()
		}
	}
}
