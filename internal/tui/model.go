// Package tui renders a session and its transfers in the terminal.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/timer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/erikgeiser/promptkit"
	"github.com/erikgeiser/promptkit/confirmation"
	"github.com/pkg/errors"
)

// ------------------------------------------------------ tui State ----------------------------------------------------

type tuiState int

// flows from the top down.
const (
	showWaiting tuiState = iota
	showConnected
	showTransferring
	showOverwritePrompt
	showFinished
)

type Mode int

const (
	Host Mode = iota
	Join
)

type KeyMap struct {
	Quit                   key.Binding
	CopyInvite             key.Binding
	OverwritePromptYes     key.Binding
	OverwritePromptNo      key.Binding
	OverwritePromptConfirm key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.CopyInvite, k.OverwritePromptYes, k.OverwritePromptNo, k.OverwritePromptConfirm}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

const (
	copyKeyHelpText       = "copy invite"
	copyKeyActiveHelpText = "invite copied!"
)

var Keys = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("(q)", "quit"),
	),
	CopyInvite: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("(c)", copyKeyHelpText),
		key.WithDisabled(),
	),
	OverwritePromptYes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("(y)", "overwrite"),
		key.WithDisabled(),
	),
	OverwritePromptNo: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("(n)", "keep both"),
		key.WithDisabled(),
	),
	OverwritePromptConfirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("(enter)", "confirm"),
		key.WithDisabled(),
	),
}

// ------------------------------------------------------- Model -------------------------------------------------------

type Option func(m *Model)

// WithInvite shows the invite as QR code and link while waiting for a peer.
func WithInvite(inv invite.Invite) Option {
	return func(m *Model) {
		m.setInvite(inv)
	}
}

// WithOutgoing names the file that is sent once connected.
func WithOutgoing(name string, size int64) Option {
	return func(m *Model) {
		m.outgoing = name
		m.outgoingSize = size
	}
}

// WithCancel is called when the user quits before the session is done.
func WithCancel(cancel func()) Option {
	return func(m *Model) {
		m.cancel = cancel
	}
}

// WithCopy replaces the clipboard copy of the invite.
func WithCopy(fn func(invite.Invite) error) Option {
	return func(m *Model) {
		m.copyInvite = fn
	}
}

type Model struct {
	mode  Mode
	state tuiState

	status string
	peer   string
	file   FileMsg

	invite       *invite.Invite
	qr           string
	outgoing     string
	outgoingSize int64
	completed    []string
	err          error

	// overwriteReply receives the answer of the pending overwrite prompt.
	overwriteReply chan<- bool

	width            int
	spinner          spinner.Model
	progress         Progress
	overwritePrompt  confirmation.Model
	help             help.Model
	keys             KeyMap
	copyMessageTimer timer.Model
	cancel           func()
	copyInvite       func(invite.Invite) error
}

func New(mode Mode, opts ...Option) Model {
	m := Model{
		mode:             mode,
		progress:         NewProgress(),
		overwritePrompt:  *confirmation.NewModel(confirmation.New("", confirmation.Undecided)),
		help:             help.New(),
		keys:             Keys,
		copyMessageTimer: timer.New(TEMP_UI_MESSAGE_DURATION),
		copyInvite:       invite.Invite.CopyToClipboard,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Err returns the error the session ended with.
func (m Model) Err() error {
	return m.err
}

// ------------------------------------------------------- Update ------------------------------------------------------

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case StatusMsg:
		status := string(msg)
		if status == m.status {
			return m, nil
		}
		m.status = status
		if isCompletion(status) {
			m.completed = append(m.completed, status)
			if m.state != showOverwritePrompt {
				m.state = showConnected
				m.resetSpinner()
			}
			return m, tea.Println(PadText + SuccessText("✓ ") + InfoStyle(status))
		}
		if status == "Connected" && m.state == showWaiting {
			m.state = showConnected
			m.keys.CopyInvite.SetEnabled(false)
		}
		if m.state == showTransferring && !strings.HasPrefix(status, "Sending ") && !strings.HasPrefix(status, "Receiving ") {
			m.state = showConnected
			m.resetSpinner()
		}
		return m, nil

	case InviteMsg:
		m.setInvite(invite.Invite(msg))
		m.state = showWaiting
		m.peer = ""
		m.resetSpinner()
		return m, nil

	case PeerMsg:
		m.peer = string(msg)
		m.keys.CopyInvite.SetEnabled(false)
		if m.state == showWaiting {
			m.state = showConnected
		}
		return m, nil

	case FileMsg:
		m.file = msg
		m.state = showTransferring
		m.progress = m.progress.Start(msg.Size)
		m.resetSpinner()
		return m, m.spinner.Tick

	case OverwriteMsg:
		m.state = showOverwritePrompt
		m.overwriteReply = msg.Reply
		m.resetSpinner()
		m.setOverwriteKeys(true)
		return m, tea.Batch(m.spinner.Tick, m.newOverwritePrompt(filepath.Base(msg.Path)))

	case ProgressMsg:
		if m.state != showTransferring && m.state != showOverwritePrompt && float64(msg) > 0 {
			// Outgoing transfers are not announced with a FileMsg.
			m.file = FileMsg{Name: m.outgoing, Size: m.outgoingSize}
			m.state = showTransferring
			m.progress = m.progress.Start(m.outgoingSize)
			m.resetSpinner()
		}
		var err error
		if m.progress, err = m.progress.Update(msg); err != nil {
			return m, m.fail(err)
		}
		return m, nil

	case DoneMsg:
		m.state = showFinished
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, tea.Quit

	case timer.TickMsg:
		var cmd tea.Cmd
		m.copyMessageTimer, cmd = m.copyMessageTimer.Update(msg)
		if m.copyMessageTimer.Running() {
			m.keys.CopyInvite.SetHelp(m.keys.CopyInvite.Help().Key, copyKeyActiveHelpText)
		}
		return m, cmd

	case timer.TimeoutMsg:
		var cmd tea.Cmd
		m.copyMessageTimer, cmd = m.copyMessageTimer.Update(msg)
		m.keys.CopyInvite.SetHelp(m.keys.CopyInvite.Help().Key, copyKeyHelpText)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.answerOverwrite(false)
			if m.cancel != nil {
				m.cancel()
			}
			m.state = showFinished
			return m, tea.Quit
		case m.state == showOverwritePrompt:
			_, promptCmd := m.overwritePrompt.Update(msg)
			switch msg.String() {
			case "left", "right":
				return m, promptCmd
			}
			if key.Matches(msg, m.keys.OverwritePromptYes, m.keys.OverwritePromptNo, m.keys.OverwritePromptConfirm) {
				overwrite, _ := m.overwritePrompt.Value()
				m.answerOverwrite(overwrite)
				m.state = showTransferring
				m.resetSpinner()
			}
			return m, nil
		case key.Matches(msg, m.keys.CopyInvite):
			if m.invite == nil {
				return m, nil
			}
			if err := m.copyInvite(*m.invite); err != nil {
				m.status = ErrorText(errors.Wrap(err, "failed to copy invite to clipboard").Error())
				return m, nil
			}
			m.copyMessageTimer = timer.New(TEMP_UI_MESSAGE_DURATION)
			return m, m.copyMessageTimer.Init()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress, _ = m.progress.Update(msg)
		m.overwritePrompt.MaxWidth = msg.Width - 2*PADDING
		if m.state == showOverwritePrompt {
			_, promptCmd := m.overwritePrompt.Update(msg)
			return m, promptCmd
		}
		return m, nil

	default:
		var spinnerCmd, promptCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		if m.state == showOverwritePrompt {
			_, promptCmd = m.overwritePrompt.Update(msg)
		}
		return m, tea.Batch(spinnerCmd, promptCmd)
	}
}

// -------------------------------------------------------- View -------------------------------------------------------

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(PadText + LogSeparator(m.width))
	b.WriteString(PadText + HelpStyle(m.title()) + "\n\n")

	if m.peer != "" {
		b.WriteString(PadText + InfoStyle("Peer: ") + BoldText(m.peer) + "\n\n")
	}

	switch m.state {
	case showWaiting:
		b.WriteString(PadText + m.spinner.View() + " " + InfoStyle(m.statusText()) + "\n\n")
		if m.invite != nil {
			b.WriteString(m.qr)
			b.WriteString(PadText + InfoStyle("Or open ") + BoldText(m.invite.URL()) + "\n")
			b.WriteString(PadText + InfoStyle("or run: ") + ItalicText(fmt.Sprintf("lanbeam join %s", m.invite.Session)) + "\n\n")
		}

	case showConnected:
		b.WriteString(PadText + m.spinner.View() + " " + InfoStyle(m.statusText()) + "\n\n")

	case showTransferring:
		name := TruncateName(m.file.Name, MAX_NAME_WIDTH)
		b.WriteString(PadText + m.spinner.View() + " " + InfoStyle(m.statusText()) + "\n\n")
		b.WriteString(PadText + BoldText(name) + " " + HelpStyle(fmt.Sprintf("(%s)", ByteCountSI(m.file.Size))) + "\n")
		b.WriteString(PadText + m.progress.View() + "\n")
		if est := m.progress.Estimates(); est != "" {
			b.WriteString(PadText + HelpStyle(est) + "\n")
		}
		b.WriteString("\n")

	case showOverwritePrompt:
		b.WriteString(PadText + m.spinner.View() + " " + InfoStyle("Waiting for file overwrite confirmation") + "\n\n")
		b.WriteString(PadText + m.progress.View() + "\n\n")
		b.WriteString(PadText + m.overwritePrompt.View() + "\n\n")

	case showFinished:
		if m.err != nil {
			b.WriteString(PadText + ErrorText(m.err.Error()) + "\n\n")
		} else {
			b.WriteString(PadText + InfoStyle(m.statusText()) + "\n\n")
		}
		return b.String()
	}

	b.WriteString(PadText + m.help.View(m.keys) + "\n\n")
	return b.String()
}

// -------------------------------------------------- Helper Functions -------------------------------------------------

func (m Model) title() string {
	var session string
	if m.invite != nil {
		session = " " + m.invite.Session
	}
	if m.mode == Join {
		return "Joined session" + session
	}
	return "Hosting session" + session
}

func (m Model) statusText() string {
	if strings.HasPrefix(m.status, "Failed") {
		return ErrorText(m.status)
	}
	return m.status
}

func (m *Model) fail(err error) tea.Cmd {
	m.err = err
	m.state = showFinished
	return tea.Quit
}

func (m *Model) newOverwritePrompt(fileName string) tea.Cmd {
	prompt := confirmation.New(fmt.Sprintf("Overwrite file '%s'?", fileName), confirmation.Yes)
	m.overwritePrompt = *confirmation.NewModel(prompt)
	m.overwritePrompt.MaxWidth = m.width
	m.overwritePrompt.WrapMode = promptkit.HardWrap
	m.overwritePrompt.Template = confirmation.TemplateYN
	m.overwritePrompt.ResultTemplate = confirmation.ResultTemplateYN
	m.overwritePrompt.KeyMap.Abort = []string{}
	m.overwritePrompt.KeyMap.Toggle = []string{}
	return m.overwritePrompt.Init()
}

// answerOverwrite replies to the pending prompt. The reply channel is buffered, answering never blocks.
func (m *Model) answerOverwrite(overwrite bool) {
	if m.overwriteReply != nil {
		m.overwriteReply <- overwrite
		m.overwriteReply = nil
	}
	m.setOverwriteKeys(false)
}

func (m *Model) setOverwriteKeys(enabled bool) {
	m.keys.OverwritePromptYes.SetEnabled(enabled)
	m.keys.OverwritePromptNo.SetEnabled(enabled)
	m.keys.OverwritePromptConfirm.SetEnabled(enabled)
}

func (m *Model) setInvite(inv invite.Invite) {
	m.invite = &inv
	var qr strings.Builder
	inv.WriteQR(&qr)
	m.qr = qr.String()
	m.keys.CopyInvite.SetEnabled(true)
}

func (m *Model) resetSpinner() {
	m.spinner = spinner.New()
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ELEMENT_COLOR))
	m.spinner.Spinner = WaitingSpinner
	if m.state == showTransferring {
		m.spinner.Spinner = TransferSpinner
		if m.outgoing == "" {
			m.spinner.Spinner = ReceivingSpinner
		}
	}
}

// isCompletion reports whether the status marks a finished transfer.
func isCompletion(status string) bool {
	return status == "Sent!" || strings.HasSuffix(status, " Received!")
}
