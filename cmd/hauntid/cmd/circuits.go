package cmd

import (
	"fmt"
	"os"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"

	"github.com/haunti-network/haunti/config"
	"github.com/haunti-network/haunti/zk/registry"
)

func newCircuitsCmd() *cobra.Command {
	circuits := &cobra.Command{
		Use:   "circuits",
		Short: "Inspect and bootstrap proving circuits",
	}
	circuits.AddCommand(newCircuitsListCmd(), newCircuitsSetupCmd())
	return circuits
}

func newCircuitsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered circuits and their artifact status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			reg := registry.New(cfg.Circuits)
			for _, name := range reg.Names() {
				c, err := reg.Get(name)
				if err != nil {
					return err
				}
				ready := c.ProgramRef != "" && c.ProvingKeyRef != "" && c.VerifyingKeyRef != ""
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s ready=%-5v %s\n", c.Name, ready, c.Description)
			}
			return nil
		},
	}
}

func newCircuitsSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup <circuit>...",
		Short: "Compile circuits, run the trusted setup and store the artifacts",
		Long: `Compiles each named circuit, runs the Groth16 trusted setup and stores
the program, proving key and verifying key in the configured blob store.
With no arguments, all registered circuits are set up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := log.NewLogger(os.Stderr)

			store, err := buildStore(cfg.Storage)
			if err != nil {
				return err
			}
			reg := registry.New(cfg.Circuits)

			names := args
			if len(names) == 0 {
				names = reg.Names()
			}
			for _, name := range names {
				c, err := reg.Setup(cmd.Context(), name, store, logger)
				if err != nil {
					return fmt.Errorf("setup %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", c.Name)
				fmt.Fprintf(cmd.OutOrStdout(), "  program_ref:       %s (sha256 %s)\n", c.ProgramRef, c.ProgramDigest)
				fmt.Fprintf(cmd.OutOrStdout(), "  proving_key_ref:   %s (sha256 %s)\n", c.ProvingKeyRef, c.ProvingKeyDigest)
				fmt.Fprintf(cmd.OutOrStdout(), "  verifying_key_ref: %s (sha256 %s)\n", c.VerifyingKeyRef, c.VerifyingKeyDigest)
			}
			return nil
		},
	}
}
