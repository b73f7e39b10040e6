package transfer_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/SpatiumPortae/lanbeam/internal/transfer"
)

// end is one side of an in-memory channel. Messages sent on an end are queued until the peer's
// Run loop takes them, the queued bytes are reported as the buffered amount.
type end struct {
	peer        *end
	in          chan transfer.Message
	queue       chan transfer.Message
	buffered    atomic.Int64
	maxBuffered atomic.Int64
	done        chan struct{}
	once        *sync.Once
}

func newPipe() (*end, *end) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &end{in: make(chan transfer.Message), queue: make(chan transfer.Message, 4096), done: done, once: once}
	b := &end{in: make(chan transfer.Message), queue: make(chan transfer.Message, 4096), done: done, once: once}
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func (e *end) pump() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.queue:
			select {
			case e.peer.in <- msg:
				e.buffered.Add(-int64(len(msg.Data)))
			case <-e.done:
				return
			}
		}
	}
}

func (e *end) enqueue(msg transfer.Message) error {
	select {
	case <-e.done:
		return errors.New("closed")
	default:
	}
	if len(msg.Data) > transfer.MaxChunkSize {
		// A data channel peer closes the channel on oversized messages.
		e.Close()
		return fmt.Errorf("message of %d bytes exceeds %d", len(msg.Data), transfer.MaxChunkSize)
	}
	n := e.buffered.Add(int64(len(msg.Data)))
	for {
		peak := e.maxBuffered.Load()
		if n <= peak || e.maxBuffered.CompareAndSwap(peak, n) {
			break
		}
	}
	e.queue <- msg
	return nil
}

func (e *end) SendText(s string) error {
	return e.enqueue(transfer.Message{Data: []byte(s), IsString: true})
}

func (e *end) Send(b []byte) error {
	return e.enqueue(transfer.Message{Data: append([]byte(nil), b...)})
}

func (e *end) BufferedAmount() uint64 {
	return uint64(e.buffered.Load())
}

func (e *end) Recv() <-chan transfer.Message {
	return e.in
}

func (e *end) Done() <-chan struct{} {
	return e.done
}

func (e *end) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

// ----------------------------------------------------- Reporter ------------------------------------------------------

type sink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	closed   bool
	aborted  bool
	onWrite  func()
}

func (s *sink) Write(b []byte) (int, error) {
	if s.onWrite != nil {
		s.onWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(b)
}

func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return nil
}

func (s *sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *sink) state() (closed, aborted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.aborted
}

type reporter struct {
	mu       sync.Mutex
	statuses []string
	progress []float64
	peers    []string
	sinks    []*sink
	newSink  func(name string) *sink
}

func (r *reporter) OnStatus(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *reporter) OnProgress(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *reporter) OnPeerIdentified(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, label)
}

func (r *reporter) OnFileReady(name, _ string, _ int64) (report.Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &sink{}
	if r.newSink != nil {
		s = r.newSink(name)
	}
	r.sinks = append(r.sinks, s)
	return s, nil
}

func (r *reporter) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *reporter) Progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.progress...)
}

func (r *reporter) Sinks() []*sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*sink(nil), r.sinks...)
}

func (r *reporter) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.peers...)
}

type results struct {
	mu  sync.Mutex
	all []transfer.Result
}

func (r *results) Record(res transfer.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, res)
}

func (r *results) All() []transfer.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer.Result(nil), r.all...)
}
