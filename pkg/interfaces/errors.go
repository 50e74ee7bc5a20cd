package interfaces

import "errors"

// Errors a Sender may return from Send.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)
