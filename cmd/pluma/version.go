package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/pluma/pkg/pluma"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pluma version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "pluma", pluma.Version)
	},
}
