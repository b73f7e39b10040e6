package transfer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/report"
	protocol "github.com/SpatiumPortae/lanbeam/protocol/transfer"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize     = 16 << 10
	DefaultHighWaterMark = 1 << 20
	DefaultPollInterval  = 5 * time.Millisecond
	DefaultResetDelay    = 2 * time.Second

	// MaxChunkSize is the largest message a data channel peer reads in one piece. Larger messages close
	// the receiving channel.
	MaxChunkSize = math.MaxUint16
)

var (
	ErrChannelClosed       = errors.New("channel closed")
	ErrSendInProgress      = errors.New("a transfer is already in progress")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrTransferInterrupted = errors.New("transfer interrupted")
)

// Config controls chunking and flow control of outbound transfers.
type Config struct {
	ChunkSize     int
	HighWaterMark uint64
	PollInterval  time.Duration
	ResetDelay    time.Duration
	// Device is the label announced to the peer in the handshake.
	Device string
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:     DefaultChunkSize,
		HighWaterMark: DefaultHighWaterMark,
		PollInterval:  DefaultPollInterval,
		ResetDelay:    DefaultResetDelay,
	}
}

// Validate checks that chunks fit in a single data channel message and that the high water mark leaves
// room for at least two chunks.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size must be between 1 and %d, got %d", MaxChunkSize, c.ChunkSize)
	}
	if c.HighWaterMark < 2*uint64(c.ChunkSize) {
		return fmt.Errorf("high water mark (%d) must be at least twice the chunk size (%d)", c.HighWaterMark, c.ChunkSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ResetDelay < 0 {
		return fmt.Errorf("reset delay must not be negative, got %s", c.ResetDelay)
	}
	return nil
}

// Source is a file to send.
type Source struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Result describes a finished or aborted transfer.
type Result struct {
	Direction   Direction
	Name        string
	MimeType    string
	Size        int64
	Transferred int64
	Status      protocol.Status
	Peer        string
	Err         error
}

// Recorder keeps track of transfer results.
type Recorder interface {
	Record(Result)
}

type Option func(*Engine)

func WithLogger(lgr *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = lgr
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// Engine runs the transfer protocol on a connected channel. It is the only writer on the channel.
type Engine struct {
	ch       Channel
	reporter report.Reporter
	cfg      Config
	logger   *zap.Logger
	recorder Recorder

	writeMu sync.Mutex
	sending atomic.Bool
	// resetGen invalidates scheduled progress resets of the send path.
	resetGen atomic.Uint64

	mu         sync.Mutex
	peer       string
	sendStatus protocol.Status
	recvStatus protocol.Status
}

// NewEngine returns an engine borrowing the channel. The engine never closes the channel.
func NewEngine(ch Channel, reporter report.Reporter, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating transfer config: %w", err)
	}
	if reporter == nil {
		reporter = report.Nop{}
	}
	e := &Engine{
		ch:       ch,
		reporter: reporter,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "transfer"))
	return e, nil
}

// Peer returns the label the peer announced in its handshake.
func (e *Engine) Peer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// SendStatus returns the status of the outbound transfer.
func (e *Engine) SendStatus() protocol.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendStatus
}

// ReceiveStatus returns the status of the inbound transfer.
func (e *Engine) ReceiveStatus() protocol.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recvStatus
}

func (e *Engine) setSendStatus(s protocol.Status) {
	e.mu.Lock()
	e.sendStatus = s
	e.mu.Unlock()
}

func (e *Engine) setReceiveStatus(s protocol.Status) {
	e.mu.Lock()
	e.recvStatus = s
	e.mu.Unlock()
}

func (e *Engine) record(r Result) {
	r.Peer = e.Peer()
	if e.recorder != nil {
		e.recorder.Record(r)
	}
}

// writeFrame writes a control frame as a string message.
func (e *Engine) writeFrame(f protocol.Frame) error {
	b, err := f.Encode()
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed() {
		return ErrChannelClosed
	}
	if err := e.ch.SendText(string(b)); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}

func (e *Engine) writeChunk(b []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed() {
		return ErrChannelClosed
	}
	if err := e.ch.Send(b); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}

func (e *Engine) closed() bool {
	select {
	case <-e.ch.Done():
		return true
	default:
		return false
	}
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
