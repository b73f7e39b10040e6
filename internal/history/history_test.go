package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	protocol "github.com/SpatiumPortae/lanbeam/protocol/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), FileName), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openStore(t)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Minute)
	}

	s.Record(transfer.Result{
		Direction: transfer.Sent, Name: "a.txt", MimeType: "text/plain", Size: 10, Transferred: 10,
		Status: protocol.Completed, Peer: "laptop (linux)",
	})
	s.Record(transfer.Result{
		Direction: transfer.Received, Name: "b.bin", Size: 100, Transferred: 40,
		Status: protocol.Aborted, Err: errors.New("transfer interrupted"),
	})

	entries, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b.bin", entries[0].Name)
	assert.Equal(t, "received", entries[0].Direction)
	assert.Equal(t, "Aborted", entries[0].Status)
	assert.Equal(t, "transfer interrupted", entries[0].Error)
	assert.Equal(t, int64(40), entries[0].Transferred)
	assert.Equal(t, "a.txt", entries[1].Name)
	assert.Equal(t, "Completed", entries[1].Status)
	assert.Equal(t, "laptop (linux)", entries[1].Peer)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	limited, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b.bin", limited[0].Name)
}

func TestClear(t *testing.T) {
	s := openStore(t)
	s.Record(transfer.Result{Direction: transfer.Sent, Name: "a.txt", Status: protocol.Completed})
	require.NoError(t, s.Clear())
	entries, err := s.List(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, nil)
	require.NoError(t, err)
	s.Record(transfer.Result{Direction: transfer.Sent, Name: "a.txt", Status: protocol.Completed})
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
