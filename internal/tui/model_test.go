package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/history"
	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/report"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestHostFlow(t *testing.T) {
	inv := invite.Invite{Relay: "relay.lan:8080", Session: "brave-quiet-otter"}
	m := New(Host, WithInvite(inv), WithOutgoing("a.txt", 1000))
	m = update(t, m, StatusMsg("Waiting for peer to scan QR code..."))
	assert.Equal(t, showWaiting, m.state)
	view := m.View()
	assert.Contains(t, view, inv.URL())
	assert.Contains(t, view, "lanbeam join brave-quiet-otter")
	assert.Contains(t, view, "Waiting for peer to scan QR code...")

	m = update(t, m, StatusMsg("Connected"), PeerMsg("phone (android)"))
	assert.Equal(t, showConnected, m.state)
	assert.Contains(t, m.View(), "phone (android)")
	assert.False(t, m.keys.CopyInvite.Enabled())

	m = update(t, m, StatusMsg("Sending a.txt..."), ProgressMsg(0), ProgressMsg(50))
	assert.Equal(t, showTransferring, m.state)
	assert.Equal(t, "a.txt", m.file.Name)
	assert.Equal(t, 50.0, m.progress.Percent())
	assert.Contains(t, m.View(), "a.txt")

	m = update(t, m, ProgressMsg(100), StatusMsg("Sent!"))
	assert.Equal(t, showConnected, m.state)
	assert.Equal(t, []string{"Sent!"}, m.completed)

	next, cmd := m.Update(DoneMsg{})
	m = next.(Model)
	assert.Equal(t, showFinished, m.state)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.NoError(t, m.Err())
}

func TestJoinReceive(t *testing.T) {
	m := New(Join)
	m = update(t, m,
		StatusMsg("Connecting..."),
		StatusMsg("Connected"),
		FileMsg{Name: "movie.mkv", Size: 4 << 20},
		StatusMsg("Receiving movie.mkv..."),
		ProgressMsg(25),
	)
	assert.Equal(t, showTransferring, m.state)
	assert.Equal(t, "movie.mkv", m.file.Name)

	m = update(t, m, ProgressMsg(0), StatusMsg("transfer interrupted"))
	assert.Equal(t, showConnected, m.state)
	assert.Contains(t, m.View(), "transfer interrupted")
}

func TestFailure(t *testing.T) {
	m := New(Join)
	m = update(t, m, StatusMsg("Failed: session full"), DoneMsg{Err: errors.New("session full")})
	assert.EqualError(t, m.Err(), "session full")
	assert.Contains(t, m.View(), "session full")
}

func TestQuitCancels(t *testing.T) {
	cancelled := false
	m := New(Host, WithCancel(func() { cancelled = true }))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.Equal(t, showFinished, m.state)
}

func TestOverwritePrompt(t *testing.T) {
	receiving := func(t *testing.T) (Model, chan bool) {
		m := New(Join)
		m = update(t, m, StatusMsg("Connected"), FileMsg{Name: "a.txt", Size: 3}, ProgressMsg(100))
		reply := make(chan bool, 1)
		m = update(t, m, OverwriteMsg{Path: "/downloads/a.txt", Reply: reply})
		require.Equal(t, showOverwritePrompt, m.state)
		assert.True(t, m.keys.OverwritePromptYes.Enabled())
		assert.Contains(t, m.View(), "a.txt")
		// Progress of the other direction does not hide the prompt.
		m = update(t, m, ProgressMsg(10))
		require.Equal(t, showOverwritePrompt, m.state)
		return m, reply
	}
	answer := func(t *testing.T, reply chan bool) bool {
		t.Helper()
		select {
		case overwrite := <-reply:
			return overwrite
		default:
			t.Fatal("prompt not answered")
			return false
		}
	}

	tests := []struct {
		name      string
		key       tea.KeyMsg
		overwrite bool
	}{
		{"yes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}, true},
		{"no", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")}, false},
		{"enter takes the default", tea.KeyMsg{Type: tea.KeyEnter}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, reply := receiving(t)
			m = update(t, m, tc.key)
			assert.Equal(t, tc.overwrite, answer(t, reply))
			assert.Equal(t, showTransferring, m.state)
			assert.False(t, m.keys.OverwritePromptYes.Enabled())

			m = update(t, m, StatusMsg("File a.txt Received!"))
			assert.Equal(t, showConnected, m.state)
		})
	}

	t.Run("quit declines", func(t *testing.T) {
		m, reply := receiving(t)
		m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
		assert.False(t, answer(t, reply))
		assert.Equal(t, showFinished, m.state)
	})
}

func TestCopyInvite(t *testing.T) {
	inv := invite.Invite{Relay: "relay.lan", Session: "abc"}
	var copied []invite.Invite
	m := New(Host, WithInvite(inv), WithCopy(func(i invite.Invite) error {
		copied = append(copied, i)
		return nil
	}))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Equal(t, []invite.Invite{inv}, copied)

	m = New(Host, WithInvite(inv), WithCopy(func(invite.Invite) error { return errors.New("no clipboard") }))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Contains(t, m.status, "failed to copy invite to clipboard")
}

func TestProgressEstimates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	p := NewProgress()
	p.now = func() time.Time { return now }
	p = p.Start(1_000_000)
	now = start.Add(time.Second)
	p, err := p.Update(ProgressMsg(25))
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), p.TransferSpeedEstimateBps)
	assert.Equal(t, 3*time.Second, p.EstimatedRemainingDuration.Round(time.Millisecond))
	assert.True(t, strings.HasPrefix(p.Estimates(), "250.0 kB/s"))
}

func TestReporter(t *testing.T) {
	var msgs []tea.Msg
	r := NewReporter(func(msg tea.Msg) { msgs = append(msgs, msg) }, nil)
	r.OnStatus("Connected")
	r.OnPeerIdentified("laptop")
	r.OnProgress(10)
	sink, err := r.OnFileReady("a.txt", "text/plain", 3)
	require.NoError(t, err)
	_, err = sink.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, report.Abort(sink))

	assert.Equal(t, []tea.Msg{
		StatusMsg("Connected"),
		PeerMsg("laptop"),
		ProgressMsg(10),
		FileMsg{Name: "a.txt", MimeType: "text/plain", Size: 3},
	}, msgs)
}

func TestReporterConfirmOverwrite(t *testing.T) {
	var asked []string
	r := NewReporter(func(msg tea.Msg) {
		if o, ok := msg.(OverwriteMsg); ok {
			asked = append(asked, o.Path)
			o.Reply <- true
		}
	}, nil)
	assert.True(t, r.ConfirmOverwrite("/downloads/a.txt"))
	assert.Equal(t, []string{"/downloads/a.txt"}, asked)

	// A stopped program declines instead of blocking.
	r = NewReporter(func(tea.Msg) {}, nil)
	r.Stop()
	r.Stop()
	assert.False(t, r.ConfirmOverwrite("/downloads/a.txt"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "999 B", ByteCountSI(999))
	assert.Equal(t, "1.5 MB", ByteCountSI(1_500_000))
	assert.Equal(t, "abcdefg...", TruncateName("abcdefghijklmnop", 10))
	assert.Equal(t, "short", TruncateName("short", 10))
}

func TestHistoryTable(t *testing.T) {
	assert.Contains(t, HistoryTable(nil, 80), "No transfers recorded yet.")

	out := HistoryTable([]history.Entry{
		{Direction: "sent", Name: "holiday-photos-from-the-summer-of-2023-part-two.tar.gz", Size: 2_000_000, Status: "Completed", CreatedAt: time.Now()},
		{Direction: "received", Name: "notes.txt", Size: 12, Status: "Aborted", CreatedAt: time.Now()},
	}, 80)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "Aborted")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, ".tar.gz")
}
