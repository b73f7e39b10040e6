package tui

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

// Progress renders the progress of the current transfer together with speed and time estimates.
type Progress struct {
	PayloadSize                int64
	percent                    float64
	TransferStartTime          time.Time
	TransferSpeedEstimateBps   int64
	EstimatedRemainingDuration time.Duration

	Width       int
	progressBar progress.Model
	now         func() time.Time
}

func NewProgress() Progress {
	return Progress{progressBar: newProgressBar(), now: time.Now}
}

// Start resets the progress for a new payload.
func (m Progress) Start(size int64) Progress {
	m.PayloadSize = size
	m.percent = 0
	m.TransferStartTime = m.now()
	m.TransferSpeedEstimateBps = 0
	m.EstimatedRemainingDuration = 0
	return m
}

func (m Progress) Percent() float64 {
	return m.percent
}

func (m Progress) View() string {
	return m.progressBar.ViewAs(m.percent / 100)
}

func (m Progress) Update(msg tea.Msg) (Progress, error) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width - 2*PADDING - 4
		if m.Width > MAX_WIDTH {
			m.Width = MAX_WIDTH
		}
		m.progressBar.Width = m.Width
		return m, nil

	case ProgressMsg:
		m.percent = math.Max(0, math.Min(100, float64(msg)))
		if m.percent == 0 || m.PayloadSize == 0 {
			return m, nil
		}
		secondsSpent := m.now().Sub(m.TransferStartTime).Seconds()
		if secondsSpent <= 0 {
			return m, nil
		}
		bytesTransferred := m.percent / 100 * float64(m.PayloadSize)
		linearRemainingSeconds := (float64(m.PayloadSize) - bytesTransferred) * secondsSpent / bytesTransferred
		remainingDuration, err := time.ParseDuration(fmt.Sprintf("%fs", linearRemainingSeconds))
		if err != nil {
			return m, errors.Wrap(err, "failed to parse duration of estimated remaining transfer time")
		}
		m.EstimatedRemainingDuration = remainingDuration
		m.TransferSpeedEstimateBps = int64(bytesTransferred / secondsSpent)
		return m, nil

	default:
		return m, nil
	}
}

// Estimates returns the speed and remaining time line, empty until a rate is known.
func (m Progress) Estimates() string {
	if m.TransferSpeedEstimateBps == 0 {
		return ""
	}
	return fmt.Sprintf("%s/s, %s remaining",
		ByteCountSI(m.TransferSpeedEstimateBps),
		m.EstimatedRemainingDuration.Round(time.Second))
}
