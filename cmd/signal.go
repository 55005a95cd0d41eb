package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nightglove/cadence/api/schemas"
	"github.com/nightglove/cadence/internal/config"
	"github.com/nightglove/cadence/internal/observability"
)

// newSignalCmd creates the `signal` command, letting an operator (or a
// collaborating process) inject a detection signal from the shell.
func newSignalCmd() *cobra.Command {
	var severity int

	cmd := &cobra.Command{
		Use:   "signal <kind>",
		Short: "Registers a detection signal with the engine",
		Long: fmt.Sprintf("Registers a detection signal. Known kinds: %v", func() []string {
			names := make([]string, 0, len(schemas.KnownSignalKinds))
			for _, k := range schemas.KnownSignalKinds {
				names = append(names, string(k))
			}
			return names
		}()),
		Args: cobra.ExactArgs(1),
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

			if err := eng.RegisterSignal(schemas.SignalKind(args[0]), severity); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signal registered; risk is now %s\n", eng.CurrentRisk())
			return nil
		},
	}
	cmd.Flags().IntVarP(&severity, "severity", "s", 1, "signal severity (>= 1)")
	return cmd
}
