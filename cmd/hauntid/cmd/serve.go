package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"

	"github.com/haunti-network/haunti/api"
	"github.com/haunti-network/haunti/config"
	"github.com/haunti-network/haunti/orchestrator"
	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/engine"
	"github.com/haunti-network/haunti/zk/registry"

	stakekeeper "github.com/haunti-network/haunti/x/stake/keeper"
	taskkeeper "github.com/haunti-network/haunti/x/task/keeper"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := log.NewLogger(os.Stderr)

			server, err := buildServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx)
		},
	}
}

func buildServer(cfg config.Config, logger log.Logger) (*api.Server, error) {
	stakeParams, err := cfg.Stake.StakeParams()
	if err != nil {
		return nil, fmt.Errorf("stake params: %w", err)
	}
	taskParams, err := cfg.Task.TaskParams()
	if err != nil {
		return nil, fmt.Errorf("task params: %w", err)
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	mem := ledger.NewMemLedger()
	bank := ledger.NewBank(mem)

	reg := registry.New(cfg.Circuits)
	cache := registry.NewArtifactCache(reg, store, logger)
	eng := engine.New(reg, cache, logger, engine.WithProveTimeout(cfg.Engine.ProveTimeout))

	stakeK := stakekeeper.New(mem, bank, stakeParams, logger)
	taskK := taskkeeper.New(mem, bank, stakeK, eng, taskParams, logger)
	orch := orchestrator.New(taskK, stakeK, eng, mem, logger)

	return api.NewServer(cfg.API, orch, reg, bank, logger), nil
}

func buildStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemStore(), nil
	case "ipfs":
		return storage.NewIPFSStore(cfg.IPFSAddr), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
