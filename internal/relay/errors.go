package relay

import "errors"

var (
	// ErrMalformedEnvelope is returned by Router.Route for input that cannot be
	// interpreted. The message is dropped; the connection stays usable.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrEmptyIdentity     = errors.New("empty identity")
	// ErrConnClosed is returned by Conn.Send implementations once the
	// underlying transport has been closed.
	ErrConnClosed = errors.New("connection closed")
)
