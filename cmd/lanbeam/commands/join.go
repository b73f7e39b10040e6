package commands

import (
	"context"
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

// -------------------------------------------------------- Join -------------------------------------------------------

func Join(version string) *cobra.Command {
	joinCmd := &cobra.Command{
		Use:   "join <invite> [file]",
		Short: "Join a session and receive files, or send one",
		Long: "The join command joins the session of an invite link (http://<relay>/?join=<session>) or a bare " +
			"session id. Files sent by the host are stored in the download directory.",
		Args: cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindSessionFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			loopback, _ := cmd.Flags().GetBool("loopback")
			return handleJoinCommand(cmd.Context(), cmd, version, args, loopback)
		},
	}
	addSessionFlags(joinCmd)
	return joinCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

func handleJoinCommand(ctx context.Context, cmd *cobra.Command, version string, args []string, loopback bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	inv, err := invite.Parse(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lgr, err := setupLogging("join", cfg.Verbose)
	if err != nil {
		return err
	}
	defer lgr.Sync() //nolint:errcheck
	lgr = lgr.With(zap.String("session", inv.Session))

	var payload *file.Payload
	if len(args) == 2 {
		if payload, err = file.Open(args[1]); err != nil {
			return err
		}
		defer payload.Close()
	}

	if cfg.Signaling != config.SignalingMQTT {
		// An explicit relay flag wins over the relay of the invite.
		if inv.Relay == "" || cmd.Flags().Changed("relay") {
			if inv.Relay, err = resolveRelay(ctx, cfg, lgr); err != nil {
				return err
			}
		}
		if err := checkRelayVersion(ctx, version, inv.Relay, lgr); err != nil {
			return err
		}
	}

	recorder, closeHistory, err := openHistory(cfg, lgr)
	if err != nil {
		lgr.Warn("opening history", zap.Error(err))
	}
	defer closeHistory()

	opts := uiOptions{
		mode:   tui.Join,
		sink:   file.SinkOptions{Dir: cfg.DownloadDir, Overwrite: cfg.Overwrite, Extract: true},
		logger: lgr,
	}
	if payload != nil {
		opts.outgoing, opts.outgoingSize = payload.Name, payload.Size
	}
	return runWithUI(ctx, cfg.TuiStyle, cmd.OutOrStdout(), opts, func(ctx context.Context, r report.Reporter, _ func(invite.Invite)) error {
		env := peerEnv{cfg: cfg, logger: lgr, reporter: r, recorder: recorder, includeLoopback: loopback}
		_, err := runSession(ctx, session.RoleFor(session.EntryJoinLink), inv, payload, env)
		return err
	})
}
