// transfer.go specifies the frames of the transfer protocol that runs over the connected data channel.
// Control frames travel as string messages holding JSON, chunks travel as binary messages holding raw bytes.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType specifies the type of a control frame.
type FrameType string

const (
	Handshake FrameType = "handshake" // Informational peer identity, sent once after connect
	Metadata  FrameType = "metadata"  // Announces the start of a new transfer
	End       FrameType = "end"       // Marks completion of the current transfer
	// Chunk frames carry no JSON, they are the binary messages between Metadata and End.
	Chunk FrameType = "chunk"
)

// Status specifies the status of a transfer in one direction.
type Status int

const (
	Idle Status = iota
	SendingMetadata
	Streaming
	Completed
	Aborted
)

var ErrMalformedFrame = errors.New("malformed control frame")

// Frame is a control frame.
type Frame struct {
	Type     FrameType `json:"type"`
	Device   string    `json:"device,omitempty"`
	Name     string    `json:"name,omitempty"`
	Size     int64     `json:"size,omitempty"`
	MimeType string    `json:"mime,omitempty"`
}

// HandshakeFrame returns the handshake frame for the provided device label.
func HandshakeFrame(device string) Frame {
	return Frame{Type: Handshake, Device: device}
}

// MetadataFrame returns the frame announcing a file.
func MetadataFrame(name string, size int64, mimeType string) Frame {
	return Frame{Type: Metadata, Name: name, Size: size, MimeType: mimeType}
}

// EndFrame returns the frame that completes a transfer.
func EndFrame() Frame {
	return Frame{Type: End}
}

// Encode encodes the control frame.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode decodes and validates a control frame.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case Handshake, End:
	case Metadata:
		if f.Name == "" || f.Size < 0 {
			return Frame{}, fmt.Errorf("%w: invalid metadata (name=%q size=%d)", ErrMalformedFrame, f.Name, f.Size)
		}
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return f, nil
}

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SendingMetadata:
		return "SendingMetadata"
	case Streaming:
		return "Streaming"
	case Completed:
		return "Completed"
	case Aborted:
		return "Aborted"
	default:
		return ""
	}
}
