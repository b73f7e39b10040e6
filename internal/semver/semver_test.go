package semver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SpatiumPortae/lanbeam/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		t.Run("basic", func(t *testing.T) {
			s := "v0.0.1"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
		t.Run("no leading v", func(t *testing.T) {
			ver, err := semver.Parse("0.3.1")
			assert.Nil(t, err)
			assert.Equal(t, "v0.3.1", ver.String())
		})
		t.Run("double digits", func(t *testing.T) {
			s := "v10.24.30"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
	})
	t.Run("negative", func(t *testing.T) {
		t.Run("garbage", func(t *testing.T) {
			_, err := semver.Parse("latest")
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("missing patch", func(t *testing.T) {
			_, err := semver.Parse("v1.2")
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("major leading 0", func(t *testing.T) {
			s := "v01.0.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("minor leading 0", func(t *testing.T) {
			s := "v0.01.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("patch leading 0", func(t *testing.T) {
			s := "v0.1.01"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
	})
}

func TestCompare(t *testing.T) {
	sv, err := semver.Parse("v1.1.1")
	assert.Nil(t, err)
	t.Run("major", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v2.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldMajor, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v0.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewMajor, sv.Compare(oracle))
		})
	})
	t.Run("minor", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v1.2.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldMinor, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v1.0.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewMinor, sv.Compare(oracle))
		})
	})
	t.Run("patch", func(t *testing.T) {
		t.Run("oracle larger", func(t *testing.T) {
			oracle, err := semver.Parse("v1.1.2")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareOldPatch, sv.Compare(oracle))
		})
		t.Run("oracle less", func(t *testing.T) {
			oracle, err := semver.Parse("v1.1.0")
			assert.Nil(t, err)
			assert.Equal(t, semver.CompareNewPatch, sv.Compare(oracle))
		})
	})
	t.Run("equal", func(t *testing.T) {
		oracle, err := semver.Parse("v1.1.1")
		assert.Nil(t, err)
		assert.Equal(t, semver.CompareEqual, sv.Compare(oracle))
	})
}

func TestCompatible(t *testing.T) {
	client := semver.Version{Major: 1, Minor: 2, Patch: 0}
	t.Run("same major", func(t *testing.T) {
		assert.NoError(t, client.Compatible(semver.Version{Major: 1, Minor: 9, Patch: 3}))
	})
	t.Run("old client", func(t *testing.T) {
		assert.ErrorIs(t, client.Compatible(semver.Version{Major: 2}), semver.ErrIncompatible)
	})
	t.Run("old relay", func(t *testing.T) {
		assert.ErrorIs(t, client.Compatible(semver.Version{Major: 0, Minor: 4}), semver.ErrIncompatible)
	})
	t.Run("development build", func(t *testing.T) {
		assert.NoError(t, semver.Version{}.Compatible(semver.Version{Major: 3}))
	})
}

func TestGetRelayVersion(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/version", r.URL.Path)
			_ = json.NewEncoder(w).Encode(semver.Version{Major: 1, Minor: 4, Patch: 2})
		}))
		defer server.Close()
		ver, err := semver.GetRelayVersion(context.Background(), strings.TrimPrefix(server.URL, "http://"))
		require.NoError(t, err)
		assert.Equal(t, "v1.4.2", ver.String())
	})
	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()
		_, err := semver.GetRelayVersion(context.Background(), strings.TrimPrefix(server.URL, "http://"))
		assert.Error(t, err)
	})
}
