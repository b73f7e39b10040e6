package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/SpatiumPortae/lanbeam/internal/discovery"
	"github.com/SpatiumPortae/lanbeam/internal/history"
	"github.com/SpatiumPortae/lanbeam/internal/invite"
	"github.com/SpatiumPortae/lanbeam/internal/logger"
	"github.com/SpatiumPortae/lanbeam/internal/semver"
	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	relayFlagDesc = `Address of the relay. Discovered on the local network when empty. Accepted formats:
  - 127.0.0.1:8080
  - [::1]:8080
  - somedomain.com
	`
	tuiStyleFlagDesc  = "Style of the tui (rich|raw)"
	signalingFlagDesc = "Signaling backing (ws|mqtt)"
)

// bindSessionFlags binds the flags shared by host and join to their config keys.
func bindSessionFlags(cmd *cobra.Command) error {
	bindings := map[string]string{
		"relay":       "relay",
		"tui_style":   "tui-style",
		"signaling":   "signaling",
		"trickle":     "trickle",
		"copy_invite": "copy",
	}
	for key, flag := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding %s flag: %w", flag, err)
		}
	}
	return nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	cmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	cmd.Flags().String("signaling", "", signalingFlagDesc)
	cmd.Flags().Bool("trickle", false, "trickle candidates instead of bundling them into the session description")
	cmd.Flags().Bool("loopback", false, "gather loopback candidates, for peers on the same host")
}

// loadConfig resolves and validates the config after flags are bound.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogging returns a debug logger writing to `.lanbeam-<cmd>.log` when verbose, otherwise a nop logger.
func setupLogging(cmd string, verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	lgr, err := logger.NewFile(fmt.Sprintf(".lanbeam-%s.log", cmd))
	if err != nil {
		return nil, fmt.Errorf("could not log to the provided file: %w", err)
	}
	return lgr.With(zap.String("command", cmd)), nil
}

// resolveRelay returns the configured relay, or the first relay discovered on the local network.
func resolveRelay(ctx context.Context, cfg config.Config, lgr *zap.Logger) (string, error) {
	if cfg.Relay != "" {
		if err := invite.ValidateRelay(cfg.Relay); err != nil {
			return "", err
		}
		return cfg.Relay, nil
	}
	r, err := discovery.First(ctx, discovery.DefaultBrowseTimeout)
	if err != nil {
		return "", fmt.Errorf("no relay configured: %w", err)
	}
	lgr.Info("discovered relay", zap.String("instance", r.Instance), zap.String("address", r.Addr()))
	return r.Addr(), nil
}

// checkRelayVersion fails when the relay runs an incompatible version.
func checkRelayVersion(ctx context.Context, version, relay string, lgr *zap.Logger) error {
	ver, err := semver.Parse(version)
	if err != nil {
		return fmt.Errorf("parsing version: %w", err)
	}
	relayVer, err := semver.GetRelayVersion(ctx, relay)
	if err != nil {
		return fmt.Errorf("fetching version from relay: %w", err)
	}
	lgr.Debug("relay version", zap.Stringer("relay", relayVer), zap.Stringer("client", ver))
	return ver.Compatible(relayVer)
}

// brokerHost returns the host of the mqtt broker url, used as the relay part of mqtt invites.
func brokerHost(broker string) string {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		return broker
	}
	return u.Host
}

func deviceLabel(cfg config.Config) string {
	if cfg.DeviceName != "" {
		return cfg.DeviceName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s (%s)", host, runtime.GOOS)
}

func engineConfig(cfg config.Config) transfer.Config {
	return transfer.Config{
		ChunkSize:     cfg.ChunkSize,
		HighWaterMark: cfg.HighWaterMark,
		PollInterval:  cfg.PollInterval,
		ResetDelay:    cfg.ResetDelay,
		Device:        deviceLabel(cfg),
	}
}

// openHistory opens the local transfer history when enabled. The returned close func is never nil.
func openHistory(cfg config.Config, lgr *zap.Logger) (transfer.Recorder, func(), error) {
	if !cfg.History {
		return nil, func() {}, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, func() {}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("creating config directory: %w", err)
	}
	store, err := history.Open(filepath.Join(dir, history.FileName), lgr)
	if err != nil {
		return nil, func() {}, err
	}
	return store, func() { store.Close() }, nil
}
