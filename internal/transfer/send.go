package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	protocol "github.com/SpatiumPortae/lanbeam/protocol/transfer"
	"go.uber.org/zap"
)

// Send streams the source to the peer: a metadata frame, the chunks, and an end frame. Before every
// chunk it waits until the channel's buffered amount is at most the high water mark, so no more than
// high water mark plus one chunk is ever queued. Only one outbound transfer runs at a time.
func (e *Engine) Send(ctx context.Context, src Source) (err error) {
	if !e.sending.CompareAndSwap(false, true) {
		return ErrSendInProgress
	}
	defer e.sending.Store(false)
	e.resetGen.Add(1)

	lgr := e.logger.With(zap.String("name", src.Name), zap.Int64("size", src.Size))
	var sent int64
	defer func() {
		if err == nil {
			return
		}
		e.setSendStatus(protocol.Aborted)
		e.reporter.OnProgress(0)
		e.record(Result{
			Direction: Sent, Name: src.Name, MimeType: src.MimeType, Size: src.Size,
			Transferred: sent, Status: protocol.Aborted, Err: err,
		})
		if errors.Is(err, ErrChannelClosed) {
			e.reporter.OnStatus("Peer Disconnected")
		}
		lgr.Warn("send aborted", zap.Int64("sent", sent), zap.Error(err))
	}()

	e.setSendStatus(protocol.SendingMetadata)
	if err := e.writeFrame(protocol.MetadataFrame(src.Name, src.Size, src.MimeType)); err != nil {
		return err
	}
	e.setSendStatus(protocol.Streaming)
	e.reporter.OnStatus(fmt.Sprintf("Sending %s...", src.Name))
	e.reporter.OnProgress(0)
	lgr.Info("sending file")

	buf := make([]byte, e.cfg.ChunkSize)
	for {
		n, rerr := io.ReadFull(src.Reader, buf)
		if n > 0 {
			if err := e.waitForDrain(ctx); err != nil {
				return err
			}
			if err := e.writeChunk(buf[:n]); err != nil {
				if e.closed() {
					return ErrChannelClosed
				}
				return err
			}
			sent += int64(n)
			e.reporter.OnProgress(percent(sent, src.Size))
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", src.Name, rerr)
		}
	}

	if err := e.waitForDrain(ctx); err != nil {
		return err
	}
	if err := e.writeFrame(protocol.EndFrame()); err != nil {
		return err
	}
	e.setSendStatus(protocol.Completed)
	e.reporter.OnProgress(100)
	e.reporter.OnStatus("Sent!")
	e.record(Result{
		Direction: Sent, Name: src.Name, MimeType: src.MimeType, Size: src.Size,
		Transferred: sent, Status: protocol.Completed,
	})
	lgr.Info("file sent", zap.Int64("sent", sent))
	e.scheduleSendReset()
	return nil
}

// waitForDrain blocks while more than the high water mark is queued on the channel.
func (e *Engine) waitForDrain(ctx context.Context) error {
	if e.ch.BufferedAmount() <= e.cfg.HighWaterMark {
		return nil
	}
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for e.ch.BufferedAmount() > e.cfg.HighWaterMark {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ch.Done():
			return ErrChannelClosed
		case <-ticker.C:
		}
	}
	return nil
}

// scheduleSendReset returns the send path to Idle after the reset delay, unless another send started.
func (e *Engine) scheduleSendReset() {
	gen := e.resetGen.Load()
	time.AfterFunc(e.cfg.ResetDelay, func() {
		if e.resetGen.Load() != gen {
			return
		}
		e.setSendStatus(protocol.Idle)
		e.reporter.OnProgress(0)
	})
}
