// Package signaling implements the client side of the channel two peers use to exchange negotiation
// messages before they are directly connected.
package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"go.uber.org/zap"
)

const (
	KindWS   = "ws"
	KindMQTT = "mqtt"

	// inboxSize is the number of inbound messages buffered before new ones are dropped.
	inboxSize = 64
)

var (
	ErrNotJoined     = errors.New("signaling channel has not joined a session")
	ErrAlreadyJoined = errors.New("signaling channel already joined another session")
	ErrClosed        = errors.New("signaling channel closed")
)

// Channel is a best effort, message oriented link to the other member of a session.
type Channel interface {
	// Join associates the channel with the session. Joining the same session again is a no-op.
	Join(ctx context.Context, session string) error
	// Relay delivers the message to the other member of the session, never back to the sender.
	Relay(ctx context.Context, msg signal.Msg) error
	// Messages returns the inbound messages, the channel is closed when the connection drops.
	Messages() <-chan signal.Msg
	Close() error
}

// Options selects and configures the backing of a signaling channel.
type Options struct {
	Kind        string
	Relay       string
	Broker      string
	TopicPrefix string
	Logger      *zap.Logger
}

// Dial connects the channel selected by the options.
func Dial(ctx context.Context, opts Options) (Channel, error) {
	lgr := opts.Logger
	if lgr == nil {
		lgr = zap.NewNop()
	}
	switch opts.Kind {
	case KindWS, "":
		return DialWS(ctx, opts.Relay, lgr)
	case KindMQTT:
		return DialMQTT(ctx, opts.Broker, opts.TopicPrefix, lgr)
	default:
		return nil, fmt.Errorf("unknown signaling backing %q, expected one of (%s, %s)", opts.Kind, KindWS, KindMQTT)
	}
}
