package interfaces

// Sender is the outbound half of one client connection.
//
// Send must not block the caller on a slow or dead peer: implementations
// queue the frame and return an error when the frame cannot be queued.
// Close releases the connection; it is safe to call more than once.
type Sender interface {
	Send(data []byte) error
	Close() error
}
