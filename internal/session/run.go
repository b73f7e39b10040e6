package session

import (
	"context"
	"fmt"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"go.uber.org/zap"
)

// negotiation is the bookkeeping of the event loop.
type negotiation struct {
	// remote is the member the negotiation runs with, set by the first accepted offer or answer.
	remote   string
	answered bool
	deadline <-chan time.Time
	timer    *time.Timer
}

func (n *negotiation) startTimer(d time.Duration) {
	if n.timer != nil || d <= 0 {
		return
	}
	n.timer = time.NewTimer(d)
	n.deadline = n.timer.C
}

func (n *negotiation) stop() {
	if n.timer != nil {
		n.timer.Stop()
	}
}

// Run joins the session and negotiates until the data channel is open, returning it. The returned channel
// is owned by the session and is released by Close.
func (s *Session) Run(ctx context.Context) (transfer.Channel, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrFinished
	}
	s.started = true
	s.mu.Unlock()

	n := &negotiation{}
	defer n.stop()

	if err := s.sig.Join(ctx, s.id); err != nil {
		return nil, s.fail(fmt.Errorf("joining session: %w", err))
	}

	switch s.role {
	case Initiator:
		s.setState(Negotiating)
		s.reporter.OnStatus("Waiting for peer to scan QR code...")
		offer, err := s.negotiator.Offer(ctx)
		if err != nil {
			return nil, s.fail(fmt.Errorf("creating offer: %w", err))
		}
		if err := s.sig.Relay(ctx, signal.Msg{Type: signal.Offer, Payload: offer}); err != nil {
			return nil, s.fail(fmt.Errorf("relaying offer: %w", err))
		}
		s.logger.Info("offer relayed, waiting for answer")
	case Responder:
		s.setState(AwaitingRemoteDescription)
		s.reporter.OnStatus("Connecting...")
		n.startTimer(s.timeout)
	}

	msgs := s.sig.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil, s.fail(ctx.Err())

		case <-n.deadline:
			return nil, s.fail(ErrTimeout)

		case err := <-s.negotiator.Failed():
			return nil, s.fail(fmt.Errorf("negotiating: %w", err))

		case ch := <-s.negotiator.Ready():
			s.setState(Connected)
			s.reporter.OnStatus("Connected")
			s.logger.Info("connected", zap.String("remote", n.remote))
			return ch, nil

		case c := <-s.negotiator.Candidates():
			if !s.trickle {
				continue
			}
			if err := s.sig.Relay(ctx, signal.Msg{Type: signal.ICECandidate, Payload: c}); err != nil {
				s.logger.Warn("relaying candidate", zap.Error(err))
			}

		case msg, ok := <-msgs:
			if !ok {
				return nil, s.fail(ErrSignalingLost)
			}
			if err := s.handle(ctx, n, msg); err != nil {
				return nil, s.fail(err)
			}
		}
	}
}

// handle applies a single signaling message to the negotiation.
func (s *Session) handle(ctx context.Context, n *negotiation, msg signal.Msg) error {
	lgr := s.logger.With(zap.String("type", string(msg.Type)), zap.String("from", msg.From))
	switch msg.Type {
	case signal.Offer:
		if s.role == Initiator || n.answered {
			lgr.Debug("ignoring offer")
			return nil
		}
		if len(msg.Payload) == 0 {
			return fmt.Errorf("%w: empty offer", ErrMalformed)
		}
		answer, err := s.negotiator.Answer(ctx, msg.Payload)
		if err != nil {
			return fmt.Errorf("answering offer: %w", err)
		}
		n.answered = true
		n.remote = msg.From
		if err := s.sig.Relay(ctx, signal.Msg{Type: signal.Answer, Payload: answer}); err != nil {
			return fmt.Errorf("relaying answer: %w", err)
		}
		s.setState(Negotiating)
		lgr.Info("answer relayed")

	case signal.Answer:
		if s.role == Responder || n.answered {
			lgr.Debug("ignoring answer")
			return nil
		}
		if len(msg.Payload) == 0 {
			return fmt.Errorf("%w: empty answer", ErrMalformed)
		}
		if err := s.negotiator.SetAnswer(msg.Payload); err != nil {
			return fmt.Errorf("applying answer: %w", err)
		}
		n.answered = true
		n.remote = msg.From
		n.startTimer(s.timeout)
		s.reporter.OnStatus("Peer found, connecting...")
		lgr.Info("answer applied")

	case signal.ICECandidate:
		if n.remote != "" && msg.From != "" && msg.From != n.remote {
			lgr.Debug("ignoring candidate from another member")
			return nil
		}
		if err := s.negotiator.AddCandidate(msg.Payload); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

	case signal.PeerJoined:
		lgr.Info("peer joined")
		if s.role == Initiator {
			n.startTimer(s.timeout)
			s.reporter.OnStatus("Peer found, connecting...")
		}

	case signal.PeerLeft:
		if n.remote == "" || msg.From == "" || msg.From == n.remote {
			return ErrPeerLeft
		}
		lgr.Debug("ignoring departure of another member")

	case signal.Error:
		if msg.Reason == ErrSessionFull.Error() {
			return ErrSessionFull
		}
		return fmt.Errorf("%w: %s", ErrRelay, msg.Reason)

	default:
		return fmt.Errorf("%w: unexpected type %q", ErrMalformed, msg.Type)
	}
	return nil
}
