// Package report defines how transfer progress and session status are surfaced to the user.
package report

import (
	"io"
)

// Sink receives the bytes of an incoming file. Closing a sink commits the file.
type Sink interface {
	io.WriteCloser
}

// Aborter is implemented by sinks that can discard a partially written file.
type Aborter interface {
	Abort() error
}

// Abort discards the sink. Sinks without an Abort method are closed instead.
func Abort(s Sink) error {
	if a, ok := s.(Aborter); ok {
		return a.Abort()
	}
	return s.Close()
}

// Reporter is notified about status and progress changes. Implementations must be safe for
// concurrent use, the session and the transfer engine report from their own goroutines.
type Reporter interface {
	OnStatus(status string)
	// OnProgress reports the progress of the current transfer in percent, 0 to 100.
	OnProgress(percent float64)
	OnPeerIdentified(label string)
	// OnFileReady is called when the peer announces a file, the returned sink receives its bytes.
	OnFileReady(name, mimeType string, size int64) (Sink, error)
}

// FileOpener opens the sink for an announced file.
type FileOpener func(name, mimeType string, size int64) (Sink, error)

// ------------------------------------------------------- Nop ---------------------------------------------------------

// Nop ignores every event and discards received files.
type Nop struct{}

func (Nop) OnStatus(string) {}
func (Nop) OnProgress(float64) {}
func (Nop) OnPeerIdentified(string) {}
func (Nop) OnFileReady(string, string, int64) (Sink, error) {
	return nopSink{io.Discard}, nil
}

type nopSink struct{ io.Writer }

func (nopSink) Close() error { return nil }

// ------------------------------------------------------ Multi --------------------------------------------------------

// Multi fans events out to several reporters. Files are opened by the first reporter only.
type Multi []Reporter

func (m Multi) OnStatus(status string) {
	for _, r := range m {
		r.OnStatus(status)
	}
}

func (m Multi) OnProgress(percent float64) {
	for _, r := range m {
		r.OnProgress(percent)
	}
}

func (m Multi) OnPeerIdentified(label string) {
	for _, r := range m {
		r.OnPeerIdentified(label)
	}
}

func (m Multi) OnFileReady(name, mimeType string, size int64) (Sink, error) {
	if len(m) == 0 {
		return Nop{}.OnFileReady(name, mimeType, size)
	}
	return m[0].OnFileReady(name, mimeType, size)
}
