// Package cmd wires the hauntid command tree.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd builds the hauntid root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hauntid",
		Short: "Verifiable AI compute coordination daemon",
		Long: `hauntid coordinates untrusted compute providers who prove training and
inference correctness with zero-knowledge proofs before being paid, backed by
staked collateral that is slashed on failed verification.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./haunti.yaml)")

	root.AddCommand(
		newServeCmd(),
		newCircuitsCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
