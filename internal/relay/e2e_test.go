//nolint:errcheck
package relay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/conn"
	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"nhooyr.io/websocket"
)

type relayContainer struct {
	testcontainers.Container
	URI string
}

func TestE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test...")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	relayC, err := setupRelay(ctx)
	if err != nil {
		t.Fatalf("unable to setup relay: %s", err)
	}
	t.Cleanup(func() {
		if err := relayC.Terminate(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	dialRelay := func() conn.Signal {
		c, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", relayC.URI), nil)
		require.NoError(t, err)
		ws := &conn.WS{Conn: c}
		t.Cleanup(func() { ws.Close() })
		return conn.Signal{Conn: ws}
	}

	host := dialRelay()
	host.WriteMsg(ctx, signal.Msg{Type: signal.Join, Session: "e2e"})
	host.WriteMsg(ctx, signal.Msg{Type: signal.Offer, Payload: json.RawMessage(`"offer"`)})

	joiner := dialRelay()
	joiner.WriteMsg(ctx, signal.Msg{Type: signal.Join, Session: "e2e"})
	offer, err := joiner.ReadMsg(ctx, signal.Offer)
	require.NoError(t, err)
	assert.Equal(t, `"offer"`, string(offer.Payload))

	joiner.WriteMsg(ctx, signal.Msg{Type: signal.Answer, Payload: json.RawMessage(`"answer"`)})
	_, err = host.ReadMsg(ctx, signal.PeerJoined)
	require.NoError(t, err)
	answer, err := host.ReadMsg(ctx, signal.Answer)
	require.NoError(t, err)
	assert.Equal(t, `"answer"`, string(answer.Payload))
}

func setupRelay(ctx context.Context) (*relayContainer, error) {
	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    "../..",
			Dockerfile: "Dockerfile",
		},
		ExposedPorts: []string{"8080/tcp"},
		WaitingFor: wait.ForHTTP("/ping").WithPort(nat.Port("8080/tcp")).WithStatusCodeMatcher(
			func(status int) bool { return status == http.StatusOK }),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}
	ip, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mappedPort, err := container.MappedPort(ctx, "8080")
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("%s:%d", ip, mappedPort.Int())

	return &relayContainer{Container: container, URI: uri}, nil
}
