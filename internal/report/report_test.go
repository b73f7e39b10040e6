package report_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	report.Nop
	statuses []string
	progress []float64
}

func (r *recorder) OnStatus(s string) { r.statuses = append(r.statuses, s) }
func (r *recorder) OnProgress(p float64) { r.progress = append(r.progress, p) }

type abortSink struct {
	bytes.Buffer
	aborted, closed bool
}

func (s *abortSink) Close() error { s.closed = true; return nil }
func (s *abortSink) Abort() error { s.aborted = true; return nil }

type closeSink struct {
	bytes.Buffer
	closed bool
}

func (s *closeSink) Close() error { s.closed = true; return nil }

func TestAbort(t *testing.T) {
	t.Run("aborter", func(t *testing.T) {
		s := &abortSink{}
		require.NoError(t, report.Abort(s))
		assert.True(t, s.aborted)
		assert.False(t, s.closed)
	})
	t.Run("plain sink is closed", func(t *testing.T) {
		s := &closeSink{}
		require.NoError(t, report.Abort(s))
		assert.True(t, s.closed)
	})
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := report.Multi{a, b}
	m.OnStatus("Connected")
	m.OnProgress(50)
	assert.Equal(t, []string{"Connected"}, a.statuses)
	assert.Equal(t, []string{"Connected"}, b.statuses)
	assert.Equal(t, []float64{50}, b.progress)

	sink, err := report.Multi{}.OnFileReady("a.txt", "text/plain", 3)
	require.NoError(t, err)
	_, err = sink.Write([]byte("abc"))
	assert.NoError(t, err)
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := &recorder{}
	m := report.Multi{rec, report.NewLog(zap.New(core))}
	m.OnStatus("Connected")
	m.OnPeerIdentified("laptop (linux)")
	m.OnProgress(30)

	assert.Equal(t, []string{"Connected"}, rec.statuses)
	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "Connected", entries[0].ContextMap()["status"])
	assert.Equal(t, "laptop (linux)", entries[1].ContextMap()["peer"])

	// Files are opened by the first reporter only.
	sink, err := report.Multi{report.NewLog(nil), rec}.OnFileReady("a.txt", "text/plain", 1)
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}

func TestRaw(t *testing.T) {
	out := &bytes.Buffer{}
	opened := ""
	r := report.NewRaw(out, func(name, mimeType string, size int64) (report.Sink, error) {
		opened = name
		return nil, errors.New("read-only")
	})
	r.OnStatus("Waiting for peer to scan QR code...")
	r.OnStatus("Waiting for peer to scan QR code...")
	r.OnPeerIdentified("laptop (linux)")
	r.OnProgress(42)
	r.OnProgress(250)
	r.OnStatus("File a.txt Received!")

	_, err := r.OnFileReady("a.txt", "text/plain", 1)
	assert.Error(t, err)
	assert.Equal(t, "a.txt", opened)

	assert.Equal(t, 1, strings.Count(out.String(), "Waiting for peer to scan QR code..."))
	assert.Contains(t, out.String(), "Connected to laptop (linux)")
	assert.Contains(t, out.String(), "File a.txt Received!")
}
