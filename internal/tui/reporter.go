package tui

import (
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/report"
	tea "github.com/charmbracelet/bubbletea"
)

// ------------------------------------------------------ Messages -----------------------------------------------------

type StatusMsg string

type ProgressMsg float64

type PeerMsg string

type FileMsg struct {
	Name     string
	MimeType string
	Size     int64
}

// InviteMsg replaces the invite shown while waiting for a peer.
type InviteMsg invite.Invite

// OverwriteMsg asks whether the existing file at Path is replaced by a received one. The answer is sent
// on Reply, which must be buffered.
type OverwriteMsg struct {
	Path  string
	Reply chan<- bool
}

// DoneMsg ends the program, Err is shown when set.
type DoneMsg struct {
	Err error
}

// ------------------------------------------------------ Reporter -----------------------------------------------------

// Reporter forwards session and transfer events to a running program.
type Reporter struct {
	send func(tea.Msg)
	open report.FileOpener
	done chan struct{}
	once sync.Once
}

// NewReporter returns a reporter delivering messages with send, typically (*tea.Program).Send.
// Announced files are opened with open.
func NewReporter(send func(tea.Msg), open report.FileOpener) *Reporter {
	return &Reporter{send: send, open: open, done: make(chan struct{})}
}

// ConfirmOverwrite prompts the user to replace the existing file at path and blocks until answered.
// Once the program is stopped every prompt is declined.
func (r *Reporter) ConfirmOverwrite(path string) bool {
	reply := make(chan bool, 1)
	r.send(OverwriteMsg{Path: path, Reply: reply})
	select {
	case overwrite := <-reply:
		return overwrite
	case <-r.done:
		return false
	}
}

// Stop declines pending and future overwrite prompts.
func (r *Reporter) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *Reporter) OnStatus(status string) {
	r.send(StatusMsg(status))
}

func (r *Reporter) OnProgress(percent float64) {
	r.send(ProgressMsg(percent))
}

func (r *Reporter) OnPeerIdentified(label string) {
	r.send(PeerMsg(label))
}

func (r *Reporter) OnFileReady(name, mimeType string, size int64) (report.Sink, error) {
	r.send(FileMsg{Name: name, MimeType: mimeType, Size: size})
	if r.open == nil {
		return report.Nop{}.OnFileReady(name, mimeType, size)
	}
	return r.open(name, mimeType, size)
}
