package main

import (
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"soundserver/internal/prefetch"
)

func newPrefetchCmd(v *viper.Viper) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Download every third-party sound into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			setupLogging(cfg.DevMode)

			cat, _, _, err := newCatalog(cfg, clock.NewClock())
			if err != nil {
				return err
			}
			run, err := prefetch.NewService(cat, prefetch.Config{Workers: workers}).Run(cmd.Context())
			if run != nil {
				log.Info("Prefetch finished",
					"status", run.Status,
					"remote", run.Remote,
					"fetched", run.Fetched,
					"failed", len(run.Failed),
					"took", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
				)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent downloads")
	return cmd
}
