package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/conn"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WS is a signaling channel backed by a websocket connection to a lanbeam relay.
type WS struct {
	ws     *conn.WS
	sc     conn.Signal
	msgs   chan signal.Msg
	logger *zap.Logger

	mu      sync.Mutex
	session string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to the relay at the provided host:port address.
func DialWS(ctx context.Context, relayAddr string, lgr *zap.Logger) (*WS, error) {
	c, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", relayAddr), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}
	return newWS(&conn.WS{Conn: c}, lgr), nil
}

func newWS(ws *conn.WS, lgr *zap.Logger) *WS {
	readCtx, cancel := context.WithCancel(context.Background())
	w := &WS{
		ws:     ws,
		sc:     conn.Signal{Conn: ws},
		msgs:   make(chan signal.Msg, inboxSize),
		logger: lgr.With(zap.String("component", "signaling-ws")),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.read(readCtx)
	return w
}

func (w *WS) read(ctx context.Context) {
	defer close(w.done)
	defer close(w.msgs)
	for {
		msg, err := w.sc.ReadMsg(ctx)
		if err != nil {
			if !errors.Is(err, conn.ErrClosed) && !errors.Is(err, context.Canceled) {
				w.logger.Warn("reading from relay", zap.Error(err))
			}
			return
		}
		if !msg.Type.Valid() {
			w.logger.Warn("dropping message of unknown type", zap.String("type", string(msg.Type)))
			continue
		}
		select {
		case w.msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (w *WS) Join(ctx context.Context, session string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.session {
	case session:
		return nil
	case "":
	default:
		return ErrAlreadyJoined
	}
	if err := w.sc.WriteMsg(ctx, signal.Msg{Type: signal.Join, Session: session}); err != nil {
		return fmt.Errorf("joining session: %w", err)
	}
	w.session = session
	return nil
}

func (w *WS) Relay(ctx context.Context, msg signal.Msg) error {
	w.mu.Lock()
	session := w.session
	w.mu.Unlock()
	if session == "" {
		return ErrNotJoined
	}
	msg.Session = session
	if err := w.sc.WriteMsg(ctx, msg); err != nil {
		return fmt.Errorf("relaying %s: %w", msg.Type, err)
	}
	return nil
}

func (w *WS) Messages() <-chan signal.Msg {
	return w.msgs
}

func (w *WS) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.ws.Close()
		w.cancel()
		<-w.done
	})
	return err
}
