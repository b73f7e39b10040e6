package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
)

// ----------------------------------------------------- Signaling -----------------------------------------------------

type fakeSignal struct {
	mu      sync.Mutex
	joined  []string
	relayed []signal.Msg
	msgs    chan signal.Msg
	joinErr error
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{msgs: make(chan signal.Msg, 16)}
}

func (f *fakeSignal) Join(_ context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, session)
	return f.joinErr
}

func (f *fakeSignal) Relay(_ context.Context, msg signal.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, msg)
	return nil
}

func (f *fakeSignal) Messages() <-chan signal.Msg { return f.msgs }
func (f *fakeSignal) Close() error { return nil }

func (f *fakeSignal) Relayed() []signal.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signal.Msg(nil), f.relayed...)
}

func (f *fakeSignal) relayedOf(t signal.MsgType) int {
	n := 0
	for _, msg := range f.Relayed() {
		if msg.Type == t {
			n++
		}
	}
	return n
}

// ---------------------------------------------------- Negotiator -----------------------------------------------------

type stubChannel struct {
	done chan struct{}
	once sync.Once
}

func newStubChannel() *stubChannel { return &stubChannel{done: make(chan struct{})} }

func (c *stubChannel) SendText(string) error { return nil }
func (c *stubChannel) Send([]byte) error { return nil }
func (c *stubChannel) BufferedAmount() uint64 { return 0 }
func (c *stubChannel) Recv() <-chan transfer.Message { return nil }
func (c *stubChannel) Done() <-chan struct{} { return c.done }
func (c *stubChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// network links fake negotiators so that an applied answer opens the channel on both ends.
type network struct {
	mu    sync.Mutex
	peers map[string]*fakeNegotiator
}

func newNetwork() *network {
	return &network{peers: make(map[string]*fakeNegotiator)}
}

type description struct {
	ID string `json:"id"`
	To string `json:"to,omitempty"`
}

type fakeNegotiator struct {
	name       string
	net        *network
	mu         sync.Mutex
	answers    int
	setAnswers int
	candidates [][]byte
	closed     bool

	candidateC chan []byte
	ready      chan transfer.Channel
	failed     chan error
}

func newFakeNegotiator(name string, net *network) *fakeNegotiator {
	n := &fakeNegotiator{
		name:       name,
		net:        net,
		candidateC: make(chan []byte, 4),
		ready:      make(chan transfer.Channel, 1),
		failed:     make(chan error, 1),
	}
	if net != nil {
		net.mu.Lock()
		net.peers[name] = n
		net.mu.Unlock()
	}
	return n
}

func (n *fakeNegotiator) Offer(context.Context) ([]byte, error) {
	return json.Marshal(description{ID: n.name})
}

func (n *fakeNegotiator) Answer(_ context.Context, offer []byte) ([]byte, error) {
	var d description
	if err := json.Unmarshal(offer, &d); err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.answers++
	n.mu.Unlock()
	return json.Marshal(description{ID: n.name, To: d.ID})
}

func (n *fakeNegotiator) SetAnswer(answer []byte) error {
	var d description
	if err := json.Unmarshal(answer, &d); err != nil {
		return err
	}
	n.mu.Lock()
	n.setAnswers++
	n.mu.Unlock()
	if n.net == nil {
		n.ready <- newStubChannel()
		return nil
	}
	n.net.mu.Lock()
	remote, ok := n.net.peers[d.ID]
	n.net.mu.Unlock()
	if !ok {
		return errors.New("unknown remote")
	}
	n.ready <- newStubChannel()
	remote.ready <- newStubChannel()
	return nil
}

func (n *fakeNegotiator) AddCandidate(c []byte) error {
	if !json.Valid(c) {
		return errors.New("invalid candidate")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.candidates = append(n.candidates, c)
	return nil
}

func (n *fakeNegotiator) Candidates() <-chan []byte { return n.candidateC }
func (n *fakeNegotiator) Ready() <-chan transfer.Channel { return n.ready }
func (n *fakeNegotiator) Failed() <-chan error { return n.failed }

func (n *fakeNegotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNegotiator) counts() (answers, setAnswers, candidates int, closed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.answers, n.setAnswers, len(n.candidates), n.closed
}
