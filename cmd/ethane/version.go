package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethane-platform/ethane/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version())
	},
}
