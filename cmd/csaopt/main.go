package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dev.csaopt.io/csaopt/internal/adapters/broker"
	"dev.csaopt.io/csaopt/internal/adapters/console"
	"dev.csaopt.io/csaopt/internal/adapters/instancemanager"
	"dev.csaopt.io/csaopt/internal/adapters/logger"
	"dev.csaopt.io/csaopt/internal/adapters/store"
	"dev.csaopt.io/csaopt/internal/config"
	"dev.csaopt.io/csaopt/internal/core/ports"
	"dev.csaopt.io/csaopt/internal/core/usecase"
	"dev.csaopt.io/csaopt/internal/modelloader"
)

const banner = `
   ___________ ___   ____        __
  / ____/ ___//   | / __ \____  / /_
 / /    \__ \/ /| |/ / / / __ \/ __/
/ /___ ___/ / ___ / /_/ / /_/ / /_
\____//____/_/  |_\____/ .___/\__/
                      /_/
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csaopt",
		Short:         "Distributed simulated annealing orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		confPaths  []string
		modelPaths []string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision instances, run the optimization and tear everything down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(confPaths...)
			if err != nil {
				return err
			}
			cfg.Model.Paths = append(cfg.Model.Paths, modelPaths...)
			if len(cfg.Model.Paths) == 0 {
				return fmt.Errorf("no model files given: use --model or the model.paths config key")
			}

			log, err := logger.NewZapLogger(logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			runStore, err := store.NewRunStore(cfg.Store.Type, cfg.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = runStore.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printer := console.New(os.Stdout)
			printer.Println(banner)

			runner := usecase.NewRunner(
				&usecase.Context{Printer: printer, Config: cfg, Logger: log},
				runStore,
				modelloader.Load,
				instancemanager.New,
				connectBroker,
			)
			return runner.Run(ctx)
		},
	}

	cmd.Flags().StringSliceVar(&confPaths, "conf", nil, "configuration file, repeatable; later files override earlier ones")
	cmd.Flags().StringSliceVar(&modelPaths, "model", nil, "model descriptor file, repeatable")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("conf")
	return cmd
}

func connectBroker(ctx context.Context, host string, port int, password string, queueIDs []string, log ports.Logger) (ports.Broker, error) {
	return broker.Connect(ctx, host, port, password, queueIDs, log)
}
