package conn

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"nhooyr.io/websocket"
)

// ErrClosed is returned by reads once the peer has closed the connection normally.
var ErrClosed = errors.New("connection closed")

// Conn is an interface that wraps a message oriented network connection.
type Conn interface {
	Write(context.Context, []byte) error
	Read(context.Context) ([]byte, error)
}

// ------------------------------------------------------- WS ----------------------------------------------------------

// WS is a wrapper around a websocket connection.
type WS struct {
	Conn *websocket.Conn
}

func (ws *WS) Write(ctx context.Context, payload []byte) error {
	return ws.Conn.Write(ctx, websocket.MessageText, payload)
}

// Read reads the next message. A normal closure or EOF from the peer is reported as ErrClosed.
func (ws *WS) Read(ctx context.Context) ([]byte, error) {
	_, payload, err := ws.Conn.Read(ctx)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, io.EOF),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		return nil, ErrClosed
	default:
		return nil, err
	}
}

// Close closes the websocket with a normal closure.
func (ws *WS) Close() error {
	return ws.Conn.Close(websocket.StatusNormalClosure, "")
}

// ----------------------------------------------------- Signal --------------------------------------------------------

// Signal specifies a connection carrying signaling messages.
type Signal struct {
	Conn Conn
}

// WriteMsg writes a signaling message to the underlying connection.
func (s Signal) WriteMsg(ctx context.Context, msg signal.Msg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Conn.Write(ctx, payload)
}

// ReadMsg reads a signaling message from the underlying connection. If expected types are
// provided, a message of any other type results in a signal.WrongTypeError.
func (s Signal) ReadMsg(ctx context.Context, expected ...signal.MsgType) (signal.Msg, error) {
	b, err := s.Conn.Read(ctx)
	if err != nil {
		return signal.Msg{}, err
	}
	var msg signal.Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return signal.Msg{}, err
	}
	if len(expected) == 0 {
		return msg, nil
	}
	for _, t := range expected {
		if t == msg.Type {
			return msg, nil
		}
	}
	return signal.Msg{}, signal.WrongTypeError{Expected: expected, Got: msg.Type}
}
