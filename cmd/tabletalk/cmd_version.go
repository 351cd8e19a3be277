package main

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tabletalk version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("tabletalk %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
