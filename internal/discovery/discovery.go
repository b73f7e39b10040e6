// Package discovery finds lanbeam relays on the local network using mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_lanbeam._tcp"
	Domain      = "local."

	DefaultBrowseTimeout = 2 * time.Second
)

var ErrNoRelay = errors.New("no relay found on the local network")

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

var (
	register registerFunc = zeroconf.Register
	browse   browseFunc   = func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return err
		}
		return resolver.Browse(ctx, service, domain, entries)
	}
)

// Relay is a relay announced on the local network.
type Relay struct {
	Instance string
	Host     string
	Port     int
	Version  string
}

// Addr returns the host:port address of the relay.
func (r Relay) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Advertise announces a relay listening on the provided port. The returned function stops the announcement.
func Advertise(port int, version string) (func(), error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "relay"
	}
	instance := fmt.Sprintf("lanbeam-%s", hostname)
	txt := []string{"version=" + version}
	server, err := register(instance, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("registering mDNS service: %w", err)
	}
	return server.Shutdown, nil
}

// Browse collects the relays announced within the timeout, sorted by instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("browsing for relays: %w", err)
	}

	seen := make(map[string]struct{})
	var relays []Relay
	for {
		select {
		case <-ctx.Done():
			sort.Slice(relays, func(i, j int) bool { return relays[i].Instance < relays[j].Instance })
			return relays, nil
		case entry, ok := <-entries:
			if !ok {
				sort.Slice(relays, func(i, j int) bool { return relays[i].Instance < relays[j].Instance })
				return relays, nil
			}
			relay, ok := parseEntry(entry)
			if !ok {
				continue
			}
			if _, dup := seen[relay.Addr()]; dup {
				continue
			}
			seen[relay.Addr()] = struct{}{}
			relays = append(relays, relay)
		}
	}
}

// First returns the first relay announced within the timeout.
func First(ctx context.Context, timeout time.Duration) (Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := browse(ctx, ServiceType, Domain, entries); err != nil {
		return Relay{}, fmt.Errorf("browsing for relays: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return Relay{}, ErrNoRelay
		case entry, ok := <-entries:
			if !ok {
				return Relay{}, ErrNoRelay
			}
			if relay, ok := parseEntry(entry); ok {
				return relay, nil
			}
		}
	}
}

func parseEntry(entry *zeroconf.ServiceEntry) (Relay, bool) {
	if entry == nil || entry.Port <= 0 {
		return Relay{}, false
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return Relay{}, false
	}
	relay := Relay{Instance: entry.Instance, Host: host, Port: entry.Port}
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "version="); ok {
			relay.Version = v
		}
	}
	return relay, true
}
