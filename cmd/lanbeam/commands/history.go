package commands

import (
	"fmt"
	"path/filepath"

	"github.com/SpatiumPortae/lanbeam/internal/config"
	"github.com/SpatiumPortae/lanbeam/internal/history"
	"github.com/SpatiumPortae/lanbeam/internal/tui"
	"github.com/spf13/cobra"
)

func History() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			clearAll, _ := cmd.Flags().GetBool("clear")

			dir, err := config.Dir()
			if err != nil {
				return err
			}
			store, err := history.Open(filepath.Join(dir, history.FileName), nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if clearAll {
				if err := store.Clear(); err != nil {
					return fmt.Errorf("clearing history: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			}
			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.HistoryTable(entries, tui.MAX_WIDTH))
			return nil
		},
	}
	historyCmd.Flags().IntP("limit", "n", 20, "number of transfers to list, 0 lists all")
	historyCmd.Flags().Bool("clear", false, "remove all recorded transfers")
	return historyCmd
}
