package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/afinia/internal/state"
)

// rollbackCmd re-activates an earlier version of a user's parameters.
var rollbackCmd = &cobra.Command{
	Use:   "rollback <user> <version>",
	Short: "Make an earlier stored version active again",
	Long: `Point a user's active parameters at an earlier version. Only the sqlite
backend keeps versions; use 'afinia inspect <user> --history N' to list them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		store, err := state.Open(cmd.Context(), cfg.Store, logger.Named("store"))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		hs, ok := store.(state.HistoryStore)
		if !ok {
			return fmt.Errorf("store backend %q keeps no history", cfg.Store.Backend)
		}
		if err := hs.Rollback(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now at version %s\n", args[0], args[1])
		return nil
	},
}
