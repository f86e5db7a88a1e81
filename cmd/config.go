package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Interact with the service configuration",
}

func init() {
	rootCmd.AddCommand(configCmd)
}
