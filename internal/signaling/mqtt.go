package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTopicPrefix = "lanbeam/signal"

	qos             = 1
	disconnectQuiet = 250 // milliseconds
	connectTimeout  = 10 * time.Second
)

// broker is the subset of mqtt.Client the channel uses.
type broker interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT is a signaling channel backed by an MQTT broker. The session id is used as the topic, offers are
// retained by the broker so that a member joining later still receives the latest one.
type MQTT struct {
	client broker
	prefix string
	id     string
	logger *zap.Logger

	mu            sync.Mutex
	session       string
	retainedOffer bool
	closed        bool
	msgs          chan signal.Msg
}

// DialMQTT connects to the broker, e.g. tcp://broker.local:1883.
func DialMQTT(ctx context.Context, brokerURL, prefix string, lgr *zap.Logger) (*MQTT, error) {
	id := uuid.NewString()
	var m *MQTT
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("lanbeam-" + id)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		lgr.Warn("mqtt connection lost", zap.Error(err))
		m.shutdown()
	})

	client := mqtt.NewClient(opts)
	m = newMQTT(client, prefix, id, lgr)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	return m, nil
}

func newMQTT(client broker, prefix, id string, lgr *zap.Logger) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		id:     id,
		logger: lgr.With(zap.String("component", "signaling-mqtt")),
		msgs:   make(chan signal.Msg, inboxSize),
	}
}

func (m *MQTT) topic(session string) string {
	return m.prefix + "/" + session
}

func (m *MQTT) Join(ctx context.Context, session string) error {
	m.mu.Lock()
	current, closed := m.session, m.closed
	m.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case current == session:
		return nil
	case current != "":
		return ErrAlreadyJoined
	}
	// The broker may deliver the retained offer before the subscription is acknowledged, so the
	// lock is not held while waiting.
	if err := wait(ctx, m.client.Subscribe(m.topic(session), qos, m.handle)); err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return nil
}

func (m *MQTT) Relay(ctx context.Context, msg signal.Msg) error {
	m.mu.Lock()
	session, closed := m.session, m.closed
	m.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case session == "":
		return ErrNotJoined
	}
	msg.Session = session
	msg.From = m.id
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	retained := msg.Type == signal.Offer
	if err := wait(ctx, m.client.Publish(m.topic(session), qos, retained, payload)); err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Type, err)
	}
	if retained {
		m.mu.Lock()
		m.retainedOffer = true
		m.mu.Unlock()
	}
	return nil
}

func (m *MQTT) Messages() <-chan signal.Msg {
	return m.msgs
}

// Close leaves the session, clearing a retained offer this channel published, and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	session, retained, closed := m.session, m.retainedOffer, m.closed
	m.mu.Unlock()
	if closed {
		return nil
	}
	if session != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if retained {
			// An empty retained payload removes the retained message from the topic.
			if err := wait(ctx, m.client.Publish(m.topic(session), qos, true, []byte{})); err != nil {
				m.logger.Warn("clearing retained offer", zap.Error(err))
			}
		}
		if err := wait(ctx, m.client.Unsubscribe(m.topic(session))); err != nil {
			m.logger.Warn("unsubscribing from session", zap.Error(err))
		}
	}
	m.shutdown()
	m.client.Disconnect(disconnectQuiet)
	return nil
}

// handle is invoked by the mqtt client for every message published to the session topic.
func (m *MQTT) handle(_ mqtt.Client, message mqtt.Message) {
	payload := message.Payload()
	if len(payload) == 0 {
		return
	}
	var msg signal.Msg
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}
	if msg.From == m.id {
		return
	}
	if !msg.Negotiation() {
		m.logger.Warn("dropping unexpected message", zap.String("type", string(msg.Type)))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.msgs <- msg:
	default:
		m.logger.Warn("inbox full, dropping message", zap.String("type", string(msg.Type)))
	}
}

func (m *MQTT) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.msgs)
}

// wait waits for the token to complete or the context to be done.
func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
