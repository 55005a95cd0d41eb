package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nightglove/cadence/internal/config"
	"github.com/nightglove/cadence/internal/observability"
)

// newStatusCmd creates the `status` command: a one-shot snapshot of the
// persisted adaptation state.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the engine's current adaptation state",
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

			stats := eng.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "profile:            %s\n", stats.CurrentProfile)
			fmt.Fprintf(out, "risk:               %s\n", stats.CurrentRisk)
			fmt.Fprintf(out, "adaptations:        %d\n", stats.AdaptationCount)
			fmt.Fprintf(out, "sessions:           %d\n", stats.SessionCount)
			fmt.Fprintf(out, "suspicious events:  %d\n", stats.SuspiciousEvents)
			fmt.Fprintf(out, "recent detections:  %d\n", stats.RecentDetections)

			var flags []string
			for kind, set := range stats.ActiveFlags {
				if set {
					flags = append(flags, string(kind))
				}
			}
			sort.Strings(flags)
			fmt.Fprintf(out, "active flags:       %v\n", flags)
			fmt.Fprintf(out, "evolved profiles:   %d\n", len(stats.EvolvedProfiles))
			return nil
		},
	}
}
