package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmehra2102/payment-reconciler/internal/config"
	"github.com/spf13/cobra"
)

const serviceName = "payment-webhook"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "webhook-service",
		Short:         "Reconciles bank-transfer notifications against pending payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "optional YAML config file")

	load := func() (*config.Config, error) {
		return config.Load(cfgPath)
	}
	root.AddCommand(newServeCmd(load), newMigrateCmd(load))
	return root
}
