package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progressScale is the resolution of the progress bar, tenths of a percent.
const progressScale = 1000

// Raw writes plain status lines and a progress bar, for terminals where the rich tui is unwanted.
type Raw struct {
	mu   sync.Mutex
	w    io.Writer
	open FileOpener
	bar  *progressbar.ProgressBar
	last string
}

// NewRaw returns a raw reporter writing to w. Announced files are opened with open, if nil they are discarded.
func NewRaw(w io.Writer, open FileOpener) *Raw {
	return &Raw{w: w, open: open}
}

func (r *Raw) OnStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == r.last {
		return
	}
	r.last = status
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
		fmt.Fprintln(r.w)
	}
	fmt.Fprintln(r.w, status)
}

func (r *Raw) OnProgress(percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent <= 0 {
		if r.bar != nil {
			r.bar.Reset()
		}
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(progressScale,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(r.last),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)
	}
	_ = r.bar.Set(int(clamp(percent) * progressScale / 100))
}

func (r *Raw) OnPeerIdentified(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Connected to %s\n", label)
}

func (r *Raw) OnFileReady(name, mimeType string, size int64) (Sink, error) {
	if r.open == nil {
		return Nop{}.OnFileReady(name, mimeType, size)
	}
	return r.open(name, mimeType, size)
}

func clamp(percent float64) float64 {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
