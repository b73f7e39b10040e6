// Package session establishes the direct channel between the host and the joiner of a session. It drives
// the negotiation over a signaling channel and hands over the connected data channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/SpatiumPortae/lanbeam/internal/signaling"
	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrSessionFull   = errors.New("session full")
	ErrPeerLeft      = errors.New("peer left before the connection was established")
	ErrTimeout       = errors.New("negotiation timed out")
	ErrSignalingLost = errors.New("signaling connection lost")
	ErrMalformed     = errors.New("malformed negotiation message")
	ErrRelay         = errors.New("relay rejected the request")
	ErrFinished      = errors.New("session already ran")
)

// Role is the part a peer plays in the negotiation.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// Entry is how the user entered the session.
type Entry int

const (
	// EntryHost is a user hosting a new session.
	EntryHost Entry = iota
	// EntryJoinLink is a user joining with an invite link or session id.
	EntryJoinLink
)

// RoleFor returns the role of a peer entering the session the given way.
func RoleFor(e Entry) Role {
	if e == EntryHost {
		return Initiator
	}
	return Responder
}

type State int

const (
	Idle State = iota
	AwaitingRemoteDescription
	Negotiating
	Connected
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingRemoteDescription:
		return "AwaitingRemoteDescription"
	case Negotiating:
		return "Negotiating"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return ""
	}
}

// Negotiator produces and consumes the opaque negotiation payloads and reports when the data channel is open.
type Negotiator interface {
	Offer(ctx context.Context) ([]byte, error)
	Answer(ctx context.Context, offer []byte) ([]byte, error)
	SetAnswer(answer []byte) error
	AddCandidate(candidate []byte) error
	Candidates() <-chan []byte
	Ready() <-chan transfer.Channel
	Failed() <-chan error
	Close() error
}

type Option func(*Session)

// WithTimeout bounds the negotiation. For the initiator the timeout starts when a peer shows up.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithTrickle relays local candidates as they are gathered.
func WithTrickle(trickle bool) Option {
	return func(s *Session) {
		s.trickle = trickle
	}
}

func WithReporter(r report.Reporter) Option {
	return func(s *Session) {
		s.reporter = r
	}
}

func WithLogger(lgr *zap.Logger) Option {
	return func(s *Session) {
		s.logger = lgr
	}
}

// Session is a single attempt at connecting two peers. A failed session never recovers, a new one is
// needed to try again.
type Session struct {
	id         string
	role       Role
	sig        signaling.Channel
	negotiator Negotiator

	timeout  time.Duration
	trickle  bool
	reporter report.Reporter
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	started bool
}

func New(role Role, id string, sig signaling.Channel, negotiator Negotiator, opts ...Option) *Session {
	s := &Session{
		id:         id,
		role:       role,
		sig:        sig,
		negotiator: negotiator,
		timeout:    DefaultTimeout,
		reporter:   report.Nop{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		zap.String("component", "session"),
		zap.String("session", id),
		zap.Stringer("role", role))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Role() Role { return s.role }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.logger.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", state))
	}
}

// Close releases the negotiator, which closes the data channel. Closing a connected session moves it to Closed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != Failed {
		s.state = Closed
	}
	s.mu.Unlock()
	return s.negotiator.Close()
}

// fail moves the session to Failed, releasing the negotiator.
func (s *Session) fail(err error) error {
	s.setState(Failed)
	if cerr := s.negotiator.Close(); cerr != nil {
		s.logger.Debug("closing negotiator", zap.Error(cerr))
	}
	s.logger.Warn("session failed", zap.Error(err))
	s.reporter.OnStatus(fmt.Sprintf("Failed: %v", err))
	return err
}
