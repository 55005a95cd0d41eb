package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nightglove/cadence/internal/config"
	"github.com/nightglove/cadence/internal/observability"
)

// newResetFlagsCmd creates the `reset-flags` command. Sticky detection flags
// never clear themselves; this is the explicit operator action that does.
func newResetFlagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-flags",
		Short: "Clears the sticky detection flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			eng, _, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			if err := eng.ResetFlags(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flags cleared; risk is now %s\n", eng.CurrentRisk())
			return nil
		},
	}
}
