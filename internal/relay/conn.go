package relay

import "context"

// Conn is a non-owning handle to one live, ordered, message-oriented channel
// to a remote peer. The transport layer owns the connection; the relay only
// addresses it.
//
// Send must be safe for concurrent use and must preserve the order of calls
// made from a single goroutine. It should honour ctx's deadline and return
// ErrConnClosed (possibly wrapped) when the transport is gone.
type Conn interface {
	ID() string
	IsOpen() bool
	Send(ctx context.Context, data []byte) error
}
