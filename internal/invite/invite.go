// Package invite builds and parses the links a host hands to a joining peer.
package invite

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/go-playground/validator/v10"
	"github.com/mdp/qrterminal/v3"
)

const (
	JoinParam = "join"
	idWords   = 3
)

var ErrInvalidInvite = errors.New("invalid invite")

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Invite is a session together with the relay that routes its signaling. Relay is empty for
// bare session ids.
type Invite struct {
	Relay   string
	Session string
}

// NewSessionID returns a fresh human readable session id, e.g. brave-quiet-otter.
func NewSessionID() string {
	return petname.Generate(idWords, "-")
}

// URL returns the join link, http://<relay>/?join=<session>.
func (i Invite) URL() string {
	u := url.URL{
		Scheme:   "http",
		Host:     i.Relay,
		Path:     "/",
		RawQuery: url.Values{JoinParam: {i.Session}}.Encode(),
	}
	return u.String()
}

// Parse accepts either a join link or a bare session id.
func Parse(s string) (Invite, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Invite{}, fmt.Errorf("%w: empty", ErrInvalidInvite)
	}
	if !strings.Contains(s, "://") {
		if !idPattern.MatchString(s) {
			return Invite{}, fmt.Errorf("%w: %q is not a session id", ErrInvalidInvite, s)
		}
		return Invite{Session: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Invite{}, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Invite{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInvite, u.Scheme)
	}
	if u.Host == "" {
		return Invite{}, fmt.Errorf("%w: missing relay address", ErrInvalidInvite)
	}
	if err := ValidateRelay(u.Host); err != nil {
		return Invite{}, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	session := u.Query().Get(JoinParam)
	if !idPattern.MatchString(session) {
		return Invite{}, fmt.Errorf("%w: missing or malformed %q parameter", ErrInvalidInvite, JoinParam)
	}
	return Invite{Relay: u.Host, Session: session}, nil
}

var validate = validator.New()

// ValidateRelay checks that addr is an IP or hostname, optionally with a port. Accepted formats:
// 127.0.0.1:8080, [::1]:8080, somedomain.com
func ValidateRelay(addr string) error {
	if validHost(addr) {
		return nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return fmt.Errorf("invalid relay address %q", addr)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid relay address %q: invalid port", addr)
	}
	// IPv4 or domain or localhost with a port.
	if err := validate.Var(addr, "hostname_port"); err == nil {
		return nil
	}
	// hostname_port does not cover IPv6 hosts.
	if !validHost(host) {
		return fmt.Errorf("invalid relay address %q", addr)
	}
	return nil
}

// validHost reports whether host is an IPv4 or IPv6 address, or a hostname.
func validHost(host string) bool {
	return validate.Var(host, "ip") == nil || validate.Var(host, "hostname") == nil
}

// WriteQR renders the join link as a QR code suitable for a terminal.
func (i Invite) WriteQR(w io.Writer) {
	qrterminal.GenerateWithConfig(i.URL(), qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         w,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		QuietZone:      1,
	})
}

// CopyToClipboard copies the join link. Fails on systems without a clipboard utility.
func (i Invite) CopyToClipboard() error {
	if clipboard.Unsupported {
		return errors.New("clipboard not supported on this system")
	}
	return clipboard.WriteAll(i.URL())
}
