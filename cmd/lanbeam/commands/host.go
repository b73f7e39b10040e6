package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/SpatiumPortae/lanbeam/internal/file"
	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/report"
	"github.com/SpatiumPortae/lanbeam/internal/session"
	"github.com/SpatiumPortae/lanbeam/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// -------------------------------------------------------- Host -------------------------------------------------------

func Host(version string) *cobra.Command {
	hostCmd := &cobra.Command{
		Use:   "host [file...]",
		Short: "Host a session and send files to the peer that joins",
		Long: "The host command creates a session and shows its invite as a QR code. Files are sent to the peer " +
			"that joins, directories and multiple files are archived and compressed before sending. Without " +
			"files the host only receives.",
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindSessionFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			persist, _ := cmd.Flags().GetBool("persist")
			loopback, _ := cmd.Flags().GetBool("loopback")
			return handleHostCommand(cmd.Context(), cmd, version, args, persist, loopback)
		},
	}
	addSessionFlags(hostCmd)
	hostCmd.Flags().Bool("copy", false, "copy the invite link to the clipboard")
	hostCmd.Flags().Bool("persist", false, "keep hosting the session for new peers after a peer disconnects")
	return hostCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

func handleHostCommand(ctx context.Context, cmd *cobra.Command, version string, paths []string, persist, loopback bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	file.RemoveTemporaryFiles()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lgr, err := setupLogging("host", cfg.Verbose)
	if err != nil {
		return err
	}
	defer lgr.Sync() //nolint:errcheck

	var payload *file.Payload
	if len(paths) > 0 {
		if payload, err = file.Open(paths...); err != nil {
			return err
		}
		defer payload.Close()
	}

	inv := invite.Invite{Session: invite.NewSessionID()}
	switch cfg.Signaling {
	case config.SignalingMQTT:
		inv.Relay = brokerHost(cfg.MQTTBroker)
	default:
		if inv.Relay, err = resolveRelay(ctx, cfg, lgr); err != nil {
			return err
		}
		if err := checkRelayVersion(ctx, version, inv.Relay, lgr); err != nil {
			return err
		}
	}
	lgr = lgr.With(zap.String("session", inv.Session))
	if cfg.CopyInvite {
		if err := inv.CopyToClipboard(); err != nil {
			lgr.Warn("copying invite", zap.Error(err))
		}
	}

	recorder, closeHistory, err := openHistory(cfg, lgr)
	if err != nil {
		lgr.Warn("opening history", zap.Error(err))
	}
	defer closeHistory()

	opts := uiOptions{
		mode:   tui.Host,
		invite: &inv,
		sink:   file.SinkOptions{Dir: cfg.DownloadDir, Overwrite: cfg.Overwrite, Extract: true},
		logger: lgr,
	}
	if payload != nil {
		opts.outgoing, opts.outgoingSize = payload.Name, payload.Size
	}
	return runWithUI(ctx, cfg.TuiStyle, cmd.OutOrStdout(), opts, func(ctx context.Context, r report.Reporter, showInvite func(invite.Invite)) error {
		env := peerEnv{cfg: cfg, logger: lgr, reporter: r, recorder: recorder, includeLoopback: loopback}
		return host(ctx, inv, payload, env, persist, showInvite)
	})
}

// host runs sessions for the invite. With persist a new session with the same id is started whenever the
// previous peer leaves.
func host(ctx context.Context, inv invite.Invite, payload *file.Payload, env peerEnv, persist bool, showInvite func(invite.Invite)) error {
	role := session.RoleFor(session.EntryHost)
	for {
		connected, err := runSession(ctx, role, inv, payload, env)
		if !persist || ctx.Err() != nil {
			return err
		}
		if err != nil && !connected && !errors.Is(err, session.ErrPeerLeft) && !errors.Is(err, session.ErrTimeout) {
			return fmt.Errorf("hosting session: %w", err)
		}
		env.logger.Info("peer gone, waiting for a new one", zap.Bool("connected", connected), zap.Error(err))
		env.reporter.OnStatus("Peer Disconnected")
		showInvite(inv)
	}
}
