package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/report"
	protocol "github.com/SpatiumPortae/lanbeam/protocol/transfer"
	"go.uber.org/zap"
)

// inbound is the state of the transfer the peer is sending.
type inbound struct {
	name        string
	mimeType    string
	total       int64
	transferred int64
	sink        report.Sink
}

// Run sends the handshake and dispatches inbound messages until the channel closes or the context is
// done. If the channel closes while a file is streaming, the file is aborted and ErrTransferInterrupted
// is returned.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.writeFrame(protocol.HandshakeFrame(e.cfg.Device)); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}

	var (
		cur   *inbound
		reset <-chan time.Time
		timer *time.Timer
	)
	stopReset := func() {
		if timer != nil {
			timer.Stop()
			timer, reset = nil, nil
		}
	}
	defer stopReset()

	for {
		select {
		case <-ctx.Done():
			if cur != nil {
				e.abortInbound(cur, ctx.Err())
			}
			return ctx.Err()

		case <-e.ch.Done():
			return e.interrupted(cur)

		case <-reset:
			timer, reset = nil, nil
			e.setReceiveStatus(protocol.Idle)
			e.reporter.OnProgress(0)

		case msg, ok := <-e.ch.Recv():
			if !ok || e.closed() {
				return e.interrupted(cur)
			}
			if !msg.IsString {
				cur = e.handleChunk(cur, msg.Data)
				continue
			}
			frame, err := protocol.Decode(msg.Data)
			if err != nil {
				e.logger.Warn("dropping control frame", zap.Error(err))
				continue
			}
			switch frame.Type {
			case protocol.Handshake:
				e.mu.Lock()
				e.peer = frame.Device
				e.mu.Unlock()
				e.logger.Info("peer identified", zap.String("device", frame.Device))
				e.reporter.OnPeerIdentified(frame.Device)

			case protocol.Metadata:
				stopReset()
				if cur != nil {
					e.replaceInbound(cur, frame.Name)
				}
				cur = e.startInbound(frame)

			case protocol.End:
				if cur == nil {
					e.logger.Warn("dropping end frame outside of a transfer", zap.Error(ErrProtocolViolation))
					continue
				}
				if e.finishInbound(cur) {
					timer = time.NewTimer(e.cfg.ResetDelay)
					reset = timer.C
				}
				cur = nil
			}
		}
	}
}

// startInbound begins a new inbound transfer. Returns nil if no sink could be opened, in which case the
// transfer is aborted and its chunks are dropped.
func (e *Engine) startInbound(f protocol.Frame) *inbound {
	in := &inbound{name: f.Name, mimeType: f.MimeType, total: f.Size}
	e.setReceiveStatus(protocol.Streaming)
	e.reporter.OnStatus(fmt.Sprintf("Receiving %s...", f.Name))
	e.reporter.OnProgress(0)

	sink, err := e.reporter.OnFileReady(f.Name, f.MimeType, f.Size)
	if err != nil {
		e.abortInbound(in, fmt.Errorf("opening sink: %w", err))
		return nil
	}
	in.sink = sink
	e.logger.Info("receiving file", zap.String("name", f.Name), zap.Int64("size", f.Size))
	return in
}

func (e *Engine) handleChunk(in *inbound, b []byte) *inbound {
	if in == nil {
		e.logger.Debug("dropping chunk outside of a transfer", zap.Int("bytes", len(b)), zap.Error(ErrProtocolViolation))
		return nil
	}
	n, err := in.sink.Write(b)
	in.transferred += int64(n)
	if err != nil {
		e.abortInbound(in, fmt.Errorf("writing chunk: %w", err))
		return nil
	}
	e.reporter.OnProgress(percent(in.transferred, in.total))
	return in
}

// finishInbound commits the file, reporting whether it completed.
func (e *Engine) finishInbound(in *inbound) bool {
	if in.transferred != in.total {
		e.logger.Warn("received size differs from announced size",
			zap.String("name", in.name), zap.Int64("announced", in.total), zap.Int64("received", in.transferred))
	}
	if err := in.sink.Close(); err != nil {
		in.sink = nil
		e.abortInbound(in, fmt.Errorf("committing file: %w", err))
		return false
	}
	e.setReceiveStatus(protocol.Completed)
	e.reporter.OnProgress(100)
	e.reporter.OnStatus(fmt.Sprintf("File %s Received!", in.name))
	e.record(Result{
		Direction: Received, Name: in.name, MimeType: in.mimeType, Size: in.total,
		Transferred: in.transferred, Status: protocol.Completed,
	})
	e.logger.Info("file received", zap.String("name", in.name), zap.Int64("received", in.transferred))
	return true
}

func (e *Engine) abortInbound(in *inbound, cause error) {
	if in.sink != nil {
		if err := report.Abort(in.sink); err != nil {
			e.logger.Warn("aborting sink", zap.Error(err))
		}
	}
	e.setReceiveStatus(protocol.Aborted)
	e.reporter.OnProgress(0)
	if errors.Is(cause, ErrTransferInterrupted) {
		e.reporter.OnStatus(ErrTransferInterrupted.Error())
	} else {
		e.reporter.OnStatus(fmt.Sprintf("Could not receive %s", in.name))
	}
	e.record(Result{
		Direction: Received, Name: in.name, MimeType: in.mimeType, Size: in.total,
		Transferred: in.transferred, Status: protocol.Aborted, Err: cause,
	})
	e.logger.Warn("receive aborted", zap.String("name", in.name), zap.Error(cause))
}

// replaceInbound discards the streaming transfer because the peer announced a new file. The discarded
// transfer is recorded as aborted without an error.
func (e *Engine) replaceInbound(in *inbound, next string) {
	if in.sink != nil {
		if err := report.Abort(in.sink); err != nil {
			e.logger.Warn("aborting sink", zap.Error(err))
		}
	}
	e.record(Result{
		Direction: Received, Name: in.name, MimeType: in.mimeType, Size: in.total,
		Transferred: in.transferred, Status: protocol.Aborted,
	})
	e.logger.Info("transfer replaced", zap.String("previous", in.name), zap.String("next", next))
}

func (e *Engine) interrupted(in *inbound) error {
	if in == nil {
		e.logger.Info("channel closed")
		return nil
	}
	e.abortInbound(in, ErrTransferInterrupted)
	return ErrTransferInterrupted
}
