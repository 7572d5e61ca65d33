package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "emoroom",
		Short:         "Single-room WebSocket chat relay with an LLM agent",
		Long:          "emoroom hosts one chat room where authenticated participants talk to each other and to an LLM-backed agent that can call tools before it answers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: auto-discover)")

	root.AddCommand(
		newServeCmd(opts),
		newConnectCmd(),
		newHistoryCmd(opts),
		newResetCmd(opts),
		newToolsCmd(opts),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}
