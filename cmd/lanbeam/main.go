package main

import (
	"fmt"
	"os"

	"github.com/SpatiumPortae/lanbeam/cmd/lanbeam/commands"
	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=vX.Y.Z".
var version = "v0.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lanbeam",
		Short: "lanbeam sends files directly between two devices on the same network.",
		Long: "lanbeam sends files directly between two devices over a WebRTC data channel. " +
			"One device hosts a session and shows a QR code, the other joins it.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
				return fmt.Errorf("binding verbose flag: %w", err)
			}
			return nil
		},
	}
	cobra.OnInitialize(func() {
		if err := config.Init(); err != nil {
			fmt.Fprintln(os.Stderr, "Error initializing config:", err)
			os.Exit(1)
		}
	})
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.lanbeam-[command].log` in the current directory")

	rootCmd.AddCommand(commands.Host(version))
	rootCmd.AddCommand(commands.Join(version))
	rootCmd.AddCommand(commands.Serve(version))
	rootCmd.AddCommand(commands.Config())
	rootCmd.AddCommand(commands.History())
	rootCmd.AddCommand(commands.Version(version))
	return rootCmd
}
