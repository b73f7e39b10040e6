package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	PADDING                 = 2
	MAX_WIDTH               = 80
	MAX_NAME_WIDTH          = 40
	PRIMARY_COLOR           = "#B8BABA"
	SECONDARY_COLOR         = "#626262"
	ELEMENT_COLOR           = "#EE9F40"
	SECONDARY_ELEMENT_COLOR = "#EE9F70"
	ERROR_COLOR             = "#CC0000"
	WARNING_COLOR           = "#FF7900"
	CHECK_COLOR             = "#34B233"
)

const TEMP_UI_MESSAGE_DURATION = 2 * time.Second

var PadText = strings.Repeat(" ", PADDING)

var baseStyle = lipgloss.NewStyle()
var InfoStyle = baseStyle.Copy().Foreground(lipgloss.Color(PRIMARY_COLOR)).Render
var HelpStyle = baseStyle.Copy().Foreground(lipgloss.Color(SECONDARY_COLOR)).Render
var ItalicText = baseStyle.Copy().Italic(true).Render
var BoldText = baseStyle.Copy().Bold(true).Render
var ErrorText = baseStyle.Copy().Foreground(lipgloss.Color(ERROR_COLOR)).Render
var WarningText = baseStyle.Copy().Foreground(lipgloss.Color(WARNING_COLOR)).Render
var SuccessText = baseStyle.Copy().Foreground(lipgloss.Color(CHECK_COLOR)).Render

func newProgressBar() progress.Model {
	return progress.New(progress.WithGradient(SECONDARY_ELEMENT_COLOR, ELEMENT_COLOR))
}

var WaitingSpinner = spinner.Spinner{
	Frames: []string{"⠋ ", "⠙ ", "⠹ ", "⠸ ", "⠼ ", "⠴ ", "⠦ ", "⠧ ", "⠇ ", "⠏ "},
	FPS:    time.Second / 12,
}

var TransferSpinner = spinner.Spinner{
	Frames: []string{"»  ", "»» ", "»»»", "   "},
	FPS:    time.Millisecond * 400,
}

var ReceivingSpinner = spinner.Spinner{
	Frames: []string{"   ", "  «", " ««", "«««"},
	FPS:    time.Second / 2,
}

// ByteCountSI formats a byte count with SI units, e.g. 1.2 MB.
func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}

// TruncateName shortens a file name to the given display width, wide runes counted twice.
func TruncateName(name string, width int) string {
	return runewidth.Truncate(name, width, "...")
}

// LogSeparator returns a dim horizontal rule no wider than MAX_WIDTH.
func LogSeparator(width int) string {
	w := width - 2*PADDING
	if w > MAX_WIDTH || w <= 0 {
		w = MAX_WIDTH
	}
	return HelpStyle(strings.Repeat("─", w)) + "\n\n"
}
