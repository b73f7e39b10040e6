// Package transfer implements the file transfer protocol that runs over a connected data channel.
package transfer

// Message is a single data channel message. String messages carry control frames, binary messages carry chunks.
type Message struct {
	Data     []byte
	IsString bool
}

// Channel is an ordered, reliable, message oriented channel between the two peers.
type Channel interface {
	SendText(s string) error
	Send(b []byte) error
	// BufferedAmount returns the number of bytes queued for sending but not yet sent.
	BufferedAmount() uint64
	// Recv returns the inbound messages.
	Recv() <-chan Message
	// Done is closed when the channel is closed, by either peer.
	Done() <-chan struct{}
	Close() error
}
