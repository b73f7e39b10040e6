package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/SpatiumPortae/lanbeam/internal/file"
	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/SpatiumPortae/lanbeam/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// work is a session workflow. showInvite displays the invite again, e.g. when a host waits for a new peer.
type work func(ctx context.Context, r report.Reporter, showInvite func(invite.Invite)) error

type uiOptions struct {
	mode   tui.Mode
	invite *invite.Invite
	// outgoing names the payload, empty when only receiving.
	outgoing     string
	outgoingSize int64
	sink         file.SinkOptions
	logger       *zap.Logger
}

// runWithUI runs w while rendering its progress in the configured style. Status changes are logged as well.
func runWithUI(ctx context.Context, style string, out io.Writer, opts uiOptions, w work) error {
	logged := report.NewLog(opts.logger)
	if style == config.StyleRaw {
		r := report.Multi{report.NewRaw(out, file.Opener(opts.sink)), logged}
		show := func(inv invite.Invite) {
			fmt.Fprintln(out, "On the other device, scan the QR code or run:")
			fmt.Fprintf(out, "  lanbeam join %s\n", inv.URL())
			inv.WriteQR(out)
		}
		if opts.invite != nil {
			show(*opts.invite)
		}
		return w(ctx, r, show)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	modelOpts := []tui.Option{tui.WithCancel(cancel)}
	if opts.invite != nil {
		modelOpts = append(modelOpts, tui.WithInvite(*opts.invite))
	}
	if opts.outgoing != "" {
		modelOpts = append(modelOpts, tui.WithOutgoing(opts.outgoing, opts.outgoingSize))
	}
	program := tea.NewProgram(tui.New(opts.mode, modelOpts...), tea.WithOutput(out))

	// Existing files are only replaced after the user agreed in the prompt.
	var r *tui.Reporter
	sinkOpts := opts.sink
	if !sinkOpts.Overwrite {
		sinkOpts.Confirm = func(path string) bool {
			return r.ConfirmOverwrite(path)
		}
	}
	r = tui.NewReporter(program.Send, file.Opener(sinkOpts))
	defer r.Stop()
	show := func(inv invite.Invite) {
		program.Send(tui.InviteMsg(inv))
	}

	errC := make(chan error, 1)
	go func() {
		err := w(ctx, report.Multi{r, logged}, show)
		program.Send(tui.DoneMsg{Err: err})
		errC <- err
	}()
	final, err := program.Run()
	cancel()
	r.Stop()
	werr := <-errC
	if err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil && werr == nil {
		return m.Err()
	}
	// Quitting the tui cancels the workflow.
	if errors.Is(werr, context.Canceled) {
		return nil
	}
	return werr
}
