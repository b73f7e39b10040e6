// Package webrtc negotiates the direct data channel between two peers using pion/webrtc.
package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	// ChannelLabel is the label of the data channel the transfer runs on.
	ChannelLabel = "transfer"

	candidateQueueSize = 64
)

var ErrNoRemoteDescription = errors.New("remote description not set")

// Config configures the peer connection.
type Config struct {
	// STUNServers are stun: URLs. Without any only host candidates are gathered, which is enough on a LAN.
	STUNServers []string
	// Trickle relays candidates as they are gathered instead of bundling them into the description.
	Trickle bool
	// IncludeLoopback gathers loopback candidates, useful when both peers run on the same host.
	IncludeLoopback bool
	Logger          *zap.Logger
}

// Peer is one end of a negotiation. It implements the negotiator the session drives.
type Peer struct {
	pc     *webrtc.PeerConnection
	cfg    Config
	logger *zap.Logger

	candidates chan []byte
	ready      chan transfer.Channel
	failed     chan error

	mu                sync.Mutex
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	channel           *channel

	failOnce  sync.Once
	closeOnce sync.Once
}

// New creates a peer with a fresh peer connection.
func New(cfg Config) (*Peer, error) {
	lgr := cfg.Logger
	if lgr == nil {
		lgr = zap.NewNop()
	}
	se := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	p := &Peer{
		pc:         pc,
		cfg:        cfg,
		logger:     lgr.With(zap.String("component", "webrtc")),
		candidates: make(chan []byte, candidateQueueSize),
		ready:      make(chan transfer.Channel, 1),
		failed:     make(chan error, 1),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Debug("peer connection state changed", zap.String("state", s.String()))
		switch s {
		case webrtc.PeerConnectionStateFailed:
			p.fail(errors.New("peer connection failed"))
			p.closeChannel()
		case webrtc.PeerConnectionStateClosed:
			p.closeChannel()
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || !p.cfg.Trickle {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.logger.Warn("encoding local candidate", zap.Error(err))
			return
		}
		select {
		case p.candidates <- b:
		default:
			p.logger.Warn("candidate queue full, dropping local candidate")
		}
	})
	return p, nil
}

// Offer creates the data channel and returns the local offer.
func (p *Peer) Offer(ctx context.Context) ([]byte, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	return p.setLocal(ctx, offer)
}

// Answer applies the remote offer and returns the local answer.
func (p *Peer) Answer(ctx context.Context, offer []byte) ([]byte, error) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			p.logger.Warn("ignoring unexpected data channel", zap.String("label", dc.Label()))
			return
		}
		p.attach(dc)
	})
	if err := p.setRemote(offer, webrtc.SDPTypeOffer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating answer: %w", err)
	}
	return p.setLocal(ctx, answer)
}

// SetAnswer applies the remote answer.
func (p *Peer) SetAnswer(answer []byte) error {
	return p.setRemote(answer, webrtc.SDPTypeAnswer)
}

// AddCandidate adds a remote candidate. Candidates arriving before the remote description are held back.
func (p *Peer) AddCandidate(b []byte) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("decoding candidate: %w", err)
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.pendingCandidates = append(p.pendingCandidates, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("adding candidate: %w", err)
	}
	return nil
}

// Candidates returns the local candidates to relay. Nothing is produced unless trickle is enabled.
func (p *Peer) Candidates() <-chan []byte {
	return p.candidates
}

// Ready delivers the data channel once it is open.
func (p *Peer) Ready() <-chan transfer.Channel {
	return p.ready
}

// Failed delivers the error if the connection fails.
func (p *Peer) Failed() <-chan error {
	return p.failed
}

// Close closes the peer connection and with it the data channel.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pc.Close()
		p.closeChannel()
	})
	return err
}

func (p *Peer) closeChannel() {
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()
	if ch != nil {
		ch.markClosed()
	}
}

func (p *Peer) fail(err error) {
	p.failOnce.Do(func() {
		p.failed <- err
	})
}

func (p *Peer) setLocal(ctx context.Context, desc webrtc.SessionDescription) ([]byte, error) {
	var gathered <-chan struct{}
	if !p.cfg.Trickle {
		gathered = webrtc.GatheringCompletePromise(p.pc)
	}
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}
	if gathered != nil {
		select {
		case <-gathered:
		case <-ctx.Done():
			return nil, fmt.Errorf("gathering candidates: %w", ctx.Err())
		}
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return nil, errors.New("local description missing after negotiation")
	}
	return json.Marshal(local)
}

func (p *Peer) setRemote(b []byte, expected webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(b, &desc); err != nil {
		return fmt.Errorf("decoding %s: %w", expected, err)
	}
	if desc.Type != expected {
		return fmt.Errorf("expected %s description, got %s", expected, desc.Type)
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pendingCandidates
	p.pendingCandidates = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.logger.Warn("adding held back candidate", zap.Error(err))
		}
	}
	return nil
}

func (p *Peer) attach(dc *webrtc.DataChannel) {
	ch := newChannel(dc)
	p.mu.Lock()
	p.channel = ch
	p.mu.Unlock()
	dc.OnOpen(func() {
		p.logger.Debug("data channel open", zap.String("label", dc.Label()))
		select {
		case p.ready <- ch:
		default:
		}
	})
	dc.OnError(func(err error) {
		p.logger.Warn("data channel error", zap.Error(err))
	})
}
