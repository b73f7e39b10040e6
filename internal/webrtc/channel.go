package webrtc

import (
	"fmt"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/pion/webrtc/v3"
)

// channel adapts a pion data channel to transfer.Channel.
type channel struct {
	dc   *webrtc.DataChannel
	msgs chan transfer.Message
	done chan struct{}
	once sync.Once
}

func newChannel(dc *webrtc.DataChannel) *channel {
	c := &channel{
		dc:   dc,
		msgs: make(chan transfer.Message),
		done: make(chan struct{}),
	}
	// pion delivers messages one at a time, blocking here keeps them in order and pushes back on the peer.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.msgs <- transfer.Message{Data: msg.Data, IsString: msg.IsString}:
		case <-c.done:
		}
	})
	dc.OnClose(c.markClosed)
	return c
}

func (c *channel) markClosed() {
	c.once.Do(func() { close(c.done) })
}

func (c *channel) SendText(s string) error {
	return c.dc.SendText(s)
}

// Send writes a binary message. Messages above transfer.MaxChunkSize are refused since the peer would
// close the channel on them.
func (c *channel) Send(b []byte) error {
	if len(b) > transfer.MaxChunkSize {
		return fmt.Errorf("message of %d bytes exceeds the data channel limit of %d", len(b), transfer.MaxChunkSize)
	}
	return c.dc.Send(b)
}

func (c *channel) BufferedAmount() uint64 {
	return c.dc.BufferedAmount()
}

func (c *channel) Recv() <-chan transfer.Message {
	return c.msgs
}

func (c *channel) Done() <-chan struct{} {
	return c.done
}

func (c *channel) Close() error {
	err := c.dc.Close()
	c.markClosed()
	return err
}
