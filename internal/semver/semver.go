// Package semver implements the version handshake between lanbeam clients and relays.
package semver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	pattern = regexp.MustCompile(`^v?(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

	ErrParse        = errors.New("could not parse provided string into semantic version")
	ErrIncompatible = errors.New("incompatible relay version")
)

type Comparison int

const (
	CompareEqual Comparison = iota
	CompareOldMajor
	CompareNewMajor
	CompareOldMinor
	CompareNewMinor
	CompareOldPatch
	CompareNewPatch
)

type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Parse parses the provided string, with or without a leading v, into a semver representation.
func Parse(s string) (Version, error) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, ErrParse
	}
	var (
		ver Version
		err error
	)
	if ver.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("parsing major: %w", err)
	}
	if ver.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("parsing minor: %w", err)
	}
	if ver.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, fmt.Errorf("parsing patch: %w", err)
	}
	return ver, nil
}

// String returns a string representation of the semver.
func (sv Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", sv.Major, sv.Minor, sv.Patch)
}

// Compare compares the semver against the provided oracle statement.
func (sv Version) Compare(oracle Version) Comparison {
	switch {
	case sv.Major < oracle.Major:
		return CompareOldMajor
	case sv.Major > oracle.Major:
		return CompareNewMajor
	case sv.Minor < oracle.Minor:
		return CompareOldMinor
	case sv.Minor > oracle.Minor:
		return CompareNewMinor
	case sv.Patch < oracle.Patch:
		return CompareOldPatch
	case sv.Patch > oracle.Patch:
		return CompareNewPatch
	default:
		return CompareEqual
	}
}

// Compatible reports whether a client at sv can negotiate through a relay at relay.
// The signaling wire only changes between major versions. A zero version is a development
// build and is compatible with everything.
func (sv Version) Compatible(relay Version) error {
	if sv == (Version{}) || relay == (Version{}) {
		return nil
	}
	switch sv.Compare(relay) {
	case CompareOldMajor:
		return fmt.Errorf("%w: relay is %s, upgrade lanbeam from %s", ErrIncompatible, relay, sv)
	case CompareNewMajor:
		return fmt.Errorf("%w: relay is %s, it does not support lanbeam %s", ErrIncompatible, relay, sv)
	default:
		return nil
	}
}

// GetRelayVersion fetches the version of the relay at addr.
func GetRelayVersion(ctx context.Context, addr string) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/version", addr), nil)
	if err != nil {
		return Version{}, fmt.Errorf("building version request: %w", err)
	}
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return Version{}, fmt.Errorf("fetching version from relay: %w", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return Version{}, fmt.Errorf("fetching version from relay: unexpected status %s", r.Status)
	}
	var version Version
	if err := json.NewDecoder(r.Body).Decode(&version); err != nil {
		return Version{}, fmt.Errorf("decoding version response from relay: %w", err)
	}
	return version, nil
}
