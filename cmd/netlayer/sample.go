package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/netlayer/internal/config"
)

func newSampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "sample {node|sim}",
		Short:     "Print a commented sample config",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{config.NodeSection, config.SimSection},
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Sample(cmd.OutOrStdout(), args[0])
		},
	}
}
