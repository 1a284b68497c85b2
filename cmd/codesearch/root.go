package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "codesearch",
		Short:         "Index source repositories for hybrid semantic, lexical, and graph-aware code search",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (env vars override)")

	root.AddCommand(
		newInitCmd(&configPath),
		newIndexCmd(&configPath),
		newCatchUpCmd(&configPath),
		newDropCmd(&configPath),
		newServeCmd(&configPath),
		newSearchCmd(&configPath),
	)
	return root
}
