package main

import (
	"github.com/dmehra2102/payment-reconciler/internal/config"
	pg "github.com/dmehra2102/payment-reconciler/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-reconciler/pkg/logging"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			if err := pg.Migrate(cmd.Context(), cfg.PG.URL); err != nil {
				log.Error("migrate failed", "err", err)
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
