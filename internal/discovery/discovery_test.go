package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance, ip string, port int, txt ...string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: Domain},
		Port:          port,
		Text:          txt,
		AddrIPv4:      []net.IP{net.ParseIP(ip)},
	}
}

func withBrowse(t *testing.T, fn browseFunc) {
	t.Helper()
	prev := browse
	browse = fn
	t.Cleanup(func() { browse = prev })
}

func TestParseEntry(t *testing.T) {
	t.Run("ipv4 with version", func(t *testing.T) {
		relay, ok := parseEntry(entry("lanbeam-desk", "192.168.1.20", 8080, "version=v1.2.3"))
		require.True(t, ok)
		assert.Equal(t, "192.168.1.20:8080", relay.Addr())
		assert.Equal(t, "v1.2.3", relay.Version)
		assert.Equal(t, "lanbeam-desk", relay.Instance)
	})
	t.Run("no address", func(t *testing.T) {
		_, ok := parseEntry(&zeroconf.ServiceEntry{Port: 8080})
		assert.False(t, ok)
	})
	t.Run("nil", func(t *testing.T) {
		_, ok := parseEntry(nil)
		assert.False(t, ok)
	})
}

func TestBrowse(t *testing.T) {
	withBrowse(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		assert.Equal(t, ServiceType, service)
		go func() {
			entries <- entry("lanbeam-b", "10.0.0.2", 8080)
			entries <- entry("lanbeam-a", "10.0.0.1", 8080)
			entries <- entry("lanbeam-a", "10.0.0.1", 8080)
		}()
		return nil
	})
	relays, err := Browse(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, relays, 2)
	assert.Equal(t, "lanbeam-a", relays[0].Instance)
	assert.Equal(t, "lanbeam-b", relays[1].Instance)
}

func TestFirst(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		withBrowse(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			go func() { entries <- entry("lanbeam-a", "10.0.0.1", 9000) }()
			return nil
		})
		relay, err := First(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:9000", relay.Addr())
	})
	t.Run("timeout", func(t *testing.T) {
		withBrowse(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			return nil
		})
		_, err := First(context.Background(), 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrNoRelay)
	})
	t.Run("browse error", func(t *testing.T) {
		withBrowse(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			return errors.New("no multicast")
		})
		_, err := First(context.Background(), 50*time.Millisecond)
		assert.Error(t, err)
	})
}

func TestAdvertise(t *testing.T) {
	prev := register
	t.Cleanup(func() { register = prev })

	var gotTxt []string
	var gotPort int
	register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
		gotTxt, gotPort = text, port
		return nil, errors.New("registration disabled")
	}
	_, err := Advertise(8080, "v1.0.0")
	assert.Error(t, err)
	assert.Equal(t, 8080, gotPort)
	assert.Equal(t, []string{"version=v1.0.0"}, gotTxt)
}
