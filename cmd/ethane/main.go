package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethane-platform/ethane/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "ethane",
	Short:   "Ethane is a user-space link layer with ARP resolution",
	Version: version.Version(),
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(neighboursCmd)
	rootCmd.AddCommand(tapCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
