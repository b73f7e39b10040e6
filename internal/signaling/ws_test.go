package signaling_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/relay"
	"github.com/SpatiumPortae/lanbeam/internal/semver"
	"github.com/SpatiumPortae/lanbeam/internal/signaling"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWS(t *testing.T) {
	s, err := relay.NewServer(0, semver.Version{}, relay.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	addr := strings.TrimPrefix(server.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, err := signaling.Dial(ctx, signaling.Options{Kind: signaling.KindWS, Relay: addr})
	require.NoError(t, err)
	defer host.Close()
	joiner, err := signaling.Dial(ctx, signaling.Options{Kind: signaling.KindWS, Relay: addr})
	require.NoError(t, err)

	assert.ErrorIs(t, host.Relay(ctx, signal.Msg{Type: signal.Offer}), signaling.ErrNotJoined)

	require.NoError(t, host.Join(ctx, "quiet-otter"))
	require.NoError(t, host.Relay(ctx, signal.Msg{Type: signal.Offer, Payload: json.RawMessage(`"sdp"`)}))
	require.NoError(t, joiner.Join(ctx, "quiet-otter"))
	assert.ErrorIs(t, joiner.Join(ctx, "other"), signaling.ErrAlreadyJoined)

	msg := <-joiner.Messages()
	assert.Equal(t, signal.Offer, msg.Type)
	assert.Equal(t, `"sdp"`, string(msg.Payload))

	msg = <-host.Messages()
	assert.Equal(t, signal.PeerJoined, msg.Type)

	require.NoError(t, joiner.Close())
	msg = <-host.Messages()
	assert.Equal(t, signal.PeerLeft, msg.Type)

	_, open := <-joiner.Messages()
	assert.False(t, open)
}

func TestDialUnknownKind(t *testing.T) {
	_, err := signaling.Dial(context.Background(), signaling.Options{Kind: "carrier-pigeon"})
	assert.Error(t, err)
}
