package commands

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/alecthomas/chroma/quick"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
)

func Config() *cobra.Command {

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Output the path of the config file",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), viper.ConfigFileUsed())
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "View the configured options",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			contents, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("config file (%s) could not be read: %w", configPath, err)
			}
			if err := quick.Highlight(cmd.OutOrStdout(), string(contents), "yaml", "terminal256", "onedark"); err != nil {
				// Failed to highlight output, output un-highlighted config file contents.
				fmt.Fprintln(cmd.OutOrStdout(), string(contents))
			}
			if err := reloadConfig(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			// Strip arguments from editor variable -- allows exec.Command to lookup the editor executable correctly.
			editor, _, _ := strings.Cut(os.Getenv("EDITOR"), " ")
			if len(editor) == 0 {
				//lint:ignore ST1005 error string is command output
				return fmt.Errorf(
					"Could not find default editor (is the $EDITOR variable set?)\nOptionally you can open the file (%s) manually", configPath,
				)
			}

			editorCmd := exec.Command(editor, configPath)
			editorCmd.Stdin = os.Stdin
			editorCmd.Stdout = os.Stdout
			editorCmd.Stderr = os.Stderr
			if err := editorCmd.Run(); err != nil {
				return fmt.Errorf("failed to open file (%s) in editor (%s): %w", configPath, editor, err)
			}
			return reloadConfig()
		},
	}
	resetCmd := &cobra.Command{
		Use:   "reset [key...]",
		Short: "Reset to the default configuration",
		Long:  "Reset the whole configuration, or only the provided keys, to their default values.",
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return maps.Keys(config.GetDefault().Map()), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			reset := config.GetDefault()
			if len(args) > 0 {
				var err error
				if reset, err = resetKeys(args); err != nil {
					return err
				}
			}
			if err := os.WriteFile(configPath, reset.Yaml(), 0o644); err != nil {
				return fmt.Errorf("config file (%s) could not be written to: %w", configPath, err)
			}
			return reloadConfig()
		},
	}
	configCmd := &cobra.Command{
		Use:       "config",
		Short:     "View and configure options",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{pathCmd.Name(), viewCmd.Name(), editCmd.Name(), resetCmd.Name()},
		Run:       func(cmd *cobra.Command, args []string) {},
	}

	configCmd.AddCommand(pathCmd)
	configCmd.AddCommand(viewCmd)
	configCmd.AddCommand(editCmd)
	configCmd.AddCommand(resetCmd)

	return configCmd
}

// resetKeys returns the current configuration with the provided keys set to their defaults.
func resetKeys(keys []string) (config.Config, error) {
	defaults := config.GetDefault().Map()
	for _, key := range keys {
		def, ok := defaults[key]
		if !ok {
			return config.Config{}, fmt.Errorf("unknown config key %q", key)
		}
		viper.Set(key, def)
	}
	return config.Load()
}

// reloadConfig reads the config file again and validates it.
func reloadConfig() error {
	configPath := viper.ConfigFileUsed()
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("config file (%s) could not be read: %w", configPath, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config file (%s) is invalid: %w", configPath, err)
	}
	return nil
}
