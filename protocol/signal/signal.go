// signal.go specifies the messages exchanged with the relay while two peers negotiate a direct channel.
package signal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MsgType specifies the type of a signaling message.
type MsgType string

const (
	Join         MsgType = "join"          // Peer associates its connection with a session
	Offer        MsgType = "offer"         // Initiator session description
	Answer       MsgType = "answer"        // Responder session description
	ICECandidate MsgType = "ice-candidate" // Trickled candidate, either direction
	// Relay originated messages.
	PeerJoined MsgType = "peer-joined" // Another member joined the session
	PeerLeft   MsgType = "peer-left"   // The other member left the session
	Error      MsgType = "error"       // Relay rejected the last request
)

// Msg is a single signaling message. The payload is opaque to everything but the
// negotiation capability, the relay only routes it.
type Msg struct {
	Type    MsgType         `json:"type"`
	Session string          `json:"session,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Negotiation reports whether the message carries transport negotiation data.
func (m Msg) Negotiation() bool {
	switch m.Type {
	case Offer, Answer, ICECandidate:
		return true
	default:
		return false
	}
}

// Valid reports whether the message type is known.
func (t MsgType) Valid() bool {
	switch t {
	case Join, Offer, Answer, ICECandidate, PeerJoined, PeerLeft, Error:
		return true
	default:
		return false
	}
}

// WrongTypeError is returned when a message of an unexpected type is read.
type WrongTypeError struct {
	Expected []MsgType
	Got      MsgType
}

func (e WrongTypeError) Error() string {
	var expected []string
	for _, t := range e.Expected {
		expected = append(expected, string(t))
	}
	return fmt.Sprintf("wrong message type, expected one of: (%s), got: (%s)", strings.Join(expected, ", "), e.Got)
}
