package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SpatiumPortae/lanbeam/internal/logger"
	"github.com/SpatiumPortae/lanbeam/internal/relay"
	"github.com/SpatiumPortae/lanbeam/internal/semver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Serve(version string) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signaling relay",
		Long:  "The serve command serves the signaling relay and advertises it on the local network.",
		Args:  cobra.MatchAll(cobra.ExactArgs(0), cobra.NoArgs),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("relay_port", cmd.Flags().Lookup("port")); err != nil {
				return fmt.Errorf("binding port flag: %w", err)
			}
			if err := viper.BindPFlag("advertise", cmd.Flags().Lookup("advertise")); err != nil {
				return fmt.Errorf("binding advertise flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("relay requires version to be set: %w", err)
			}
			lgr := logger.New()
			defer lgr.Sync() //nolint:errcheck

			server, err := relay.NewServer(viper.GetInt("relay_port"), ver,
				relay.WithLogger(lgr),
				relay.WithAdvertise(viper.GetBool("advertise")),
			)
			if err != nil {
				return fmt.Errorf("creating relay: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Start(ctx)
		},
	}
	serveCmd.Flags().IntP("port", "p", 0, "port to run the lanbeam relay on")
	serveCmd.Flags().Bool("advertise", true, "advertise the relay on the local network with mDNS")
	return serveCmd
}
