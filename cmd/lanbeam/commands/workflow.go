package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/SpatiumPortae/lanbeam/internal/file"
	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/SpatiumPortae/lanbeam/internal/session"
	"github.com/SpatiumPortae/lanbeam/internal/signaling"
	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/SpatiumPortae/lanbeam/internal/webrtc"
	protocol "github.com/SpatiumPortae/lanbeam/protocol/transfer"
	"go.uber.org/zap"
)

// peerEnv is everything a single session attempt needs.
type peerEnv struct {
	cfg             config.Config
	logger          *zap.Logger
	reporter        report.Reporter
	recorder        transfer.Recorder
	includeLoopback bool
}

// runSession negotiates one session over fresh signaling and runs the transfer on the connected channel.
// Signaling is closed as soon as the channel is up. payload may be nil for receive only peers. The returned
// bool reports whether the peers got connected.
func runSession(ctx context.Context, role session.Role, inv invite.Invite, payload *file.Payload, env peerEnv) (bool, error) {
	sig, err := signaling.Dial(ctx, signaling.Options{
		Kind:        env.cfg.Signaling,
		Relay:       inv.Relay,
		Broker:      env.cfg.MQTTBroker,
		TopicPrefix: env.cfg.MQTTTopicPrefix,
		Logger:      env.logger,
	})
	if err != nil {
		env.reporter.OnStatus(fmt.Sprintf("Failed: %v", err))
		return false, fmt.Errorf("dialing signaling: %w", err)
	}
	peer, err := webrtc.New(webrtc.Config{
		STUNServers:     env.cfg.STUNServers,
		Trickle:         env.cfg.Trickle,
		IncludeLoopback: env.includeLoopback,
		Logger:          env.logger,
	})
	if err != nil {
		sig.Close()
		return false, err
	}
	sess := session.New(role, inv.Session, sig, peer,
		session.WithTimeout(env.cfg.NegotiationTimeout),
		session.WithTrickle(env.cfg.Trickle),
		session.WithReporter(env.reporter),
		session.WithLogger(env.logger),
	)
	ch, err := sess.Run(ctx)
	if cerr := sig.Close(); cerr != nil {
		env.logger.Debug("closing signaling", zap.Error(cerr))
	}
	if err != nil {
		return false, err
	}
	defer sess.Close()
	return true, runTransfer(ctx, ch, payload, env)
}

// runTransfer sends the payload, if any, and receives until the exchange is complete. A peer is done once it
// has sent its payload and either received a file or seen the channel close.
func runTransfer(ctx context.Context, ch transfer.Channel, payload *file.Payload, env peerEnv) error {
	done := newCompletion(env.recorder)
	engine, err := transfer.NewEngine(ch, env.reporter, engineConfig(env.cfg),
		transfer.WithLogger(env.logger),
		transfer.WithRecorder(done),
	)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(ctx)
	}()

	if payload != nil {
		src, err := payload.Source()
		if err != nil {
			return fmt.Errorf("reading %s: %w", payload.Name, err)
		}
		if err := engine.Send(ctx, src); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("sending %s: %w", payload.Name, err)
		}
	}

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-done.received:
		cancel()
		<-runErr
		return nil
	}
}

// completion forwards results to the next recorder and signals the first completed inbound file.
type completion struct {
	next     transfer.Recorder
	once     sync.Once
	received chan struct{}
}

func newCompletion(next transfer.Recorder) *completion {
	return &completion{next: next, received: make(chan struct{})}
}

func (c *completion) Record(r transfer.Result) {
	if c.next != nil {
		c.next.Record(r)
	}
	if r.Direction == transfer.Received && r.Status == protocol.Completed {
		c.once.Do(func() { close(c.received) })
	}
}
