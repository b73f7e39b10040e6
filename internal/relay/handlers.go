// handlers.go specifies the websocket handler the relay uses to route negotiation messages between peers.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/conn"
	"github.com/SpatiumPortae/lanbeam/internal/logger"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"github.com/SpatiumPortae/lanbeam/templates"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleSignal returns a websocket handler that joins the connection to a session and relays
// its negotiation messages to the other member.
func (s *Server) handleSignal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		lgr, err := logger.FromContext(ctx)
		if err != nil {
			return
		}
		c, err := conn.FromContext(ctx)
		if err != nil {
			lgr.Error("getting Conn from request context", zap.Error(err))
			return
		}
		if closer, ok := c.(io.Closer); ok {
			defer closer.Close()
		}
		sc := conn.Signal{Conn: c}
		member := NewMember(uuid.NewString())
		lgr = lgr.With(zap.String("member", member.ID))
		lgr.Info("peer connected")

		writerCtx, cancel := context.WithCancel(ctx)
		wg := sync.WaitGroup{}
		wg.Add(1)
		go s.writer(writerCtx, &wg, sc, member, lgr)

		var session string
		defer func() {
			if session != "" {
				for _, m := range s.rooms.Leave(session, member) {
					m.deliver(signal.Msg{Type: signal.PeerLeft, Session: session, From: member.ID})
				}
				lgr.Info("left session", zap.String("session", session))
			}
			cancel()
			wg.Wait()
			lgr.Info("peer closing")
		}()

		for {
			msg, err := sc.ReadMsg(ctx)
			switch {
			case errors.Is(err, conn.ErrClosed):
				lgr.Info("connection closed, closing handler")
				return
			case errors.Is(err, context.Canceled):
				lgr.Info("context canceled, closing handler")
				return
			case err != nil:
				var syntaxErr *json.SyntaxError
				if errors.As(err, &syntaxErr) {
					lgr.Warn("dropping malformed message", zap.Error(err))
					continue
				}
				lgr.Error("error reading from connection, closing handler", zap.Error(err))
				return
			}

			switch msg.Type {
			case signal.Join:
				joined, err := s.join(session, msg.Session, member, lgr)
				if err != nil {
					member.deliver(signal.Msg{Type: signal.Error, Session: msg.Session, Reason: err.Error()})
					continue
				}
				session = joined

			case signal.Offer, signal.Answer, signal.ICECandidate:
				if session == "" || (msg.Session != "" && msg.Session != session) {
					lgr.Warn("dropping message for a session the peer has not joined",
						zap.String("type", string(msg.Type)), zap.String("session", msg.Session))
					continue
				}
				msg.Session = session
				msg.From = member.ID
				n := s.rooms.Relay(session, member, msg)
				lgr.Debug("relayed message", zap.String("type", string(msg.Type)), zap.Int("delivered", n))

			default:
				lgr.Warn("unexpected message type", zap.String("type", string(msg.Type)))
				member.deliver(signal.Msg{Type: signal.Error, Reason: "unexpected message type " + string(msg.Type)})
			}
		}
	}
}

//nolint:errcheck
func (s *Server) ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

//nolint:errcheck
func (s *Server) handleVersionCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.version)
	}
}

// handleLanding serves the page a scanned invite opens. It tells the visitor how to join the session.
func (s *Server) handleLanding() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lgr, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		session := strings.TrimSpace(r.URL.Query().Get("join"))
		if session == "" {
			http.Error(w, "missing session, expected /?join=<session>", http.StatusBadRequest)
			return
		}
		tmpl, ok := s.templates[templates.RelayLanding]
		if !ok {
			lgr.Error("landing template missing")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data := struct {
			Session string
			Relay   string
			Members int
		}{
			Session: session,
			Relay:   r.Host,
			Members: s.rooms.Size(session),
		}
		if err := tmpl.Execute(w, data); err != nil {
			lgr.Error("rendering landing page", zap.Error(err))
		}
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

// join joins the member to the requested session. current is the session the member has already joined, if any.
func (s *Server) join(current, requested string, member *Member, lgr *zap.Logger) (string, error) {
	if requested == "" {
		return current, errors.New("missing session")
	}
	if current != "" && current != requested {
		return current, ErrAlreadyJoined
	}
	flush, present, err := s.rooms.Join(requested, member)
	if err != nil {
		lgr.Warn("rejected join", zap.String("session", requested), zap.Error(err))
		return current, err
	}
	for _, m := range present {
		m.deliver(signal.Msg{Type: signal.PeerJoined, Session: requested, From: member.ID})
	}
	for _, msg := range flush {
		member.deliver(msg)
	}
	lgr.Info("joined session",
		zap.String("session", requested),
		zap.Int("members", len(present)+1),
		zap.Int("flushed", len(flush)))
	return requested, nil
}

// writer writes the messages queued for the member to its connection.
func (s *Server) writer(ctx context.Context, wg *sync.WaitGroup, sc conn.Signal, member *Member, lgr *zap.Logger) {
	writerLogger := lgr.With(zap.String("component", "writer"))
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-member.Out():
			if err := sc.WriteMsg(ctx, msg); err != nil {
				writerLogger.Error("writing message to connection", zap.Error(err))
				return
			}
		}
	}
}
