package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nightglove/cadence/internal/config"
	"github.com/nightglove/cadence/internal/engine"
	"github.com/nightglove/cadence/internal/observability"
	"github.com/nightglove/cadence/internal/store"
)

// newRunCmd creates the `run` command: the long-lived adaptation monitor.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the adaptation monitor until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			eng, st, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("Engine state directory", zap.String("dir", st.Dir()))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			monitor := engine.NewMonitor(eng, cfg.Monitor.Interval, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return monitor.Run(gctx)
			})

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}
}

// buildEngine wires the file store and the engine from configuration.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, *store.FileStore, error) {
	st, err := store.NewFileStore(cfg.State.Dir, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		DefaultProfile:     cfg.Engine.DefaultProfile,
		AutoAdjust:         cfg.Engine.AutoAdjust,
		AdaptationInterval: cfg.Engine.AdaptationInterval,
		EvolutionInterval:  cfg.Engine.EvolutionInterval,
	}, st, logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, st, nil
}
