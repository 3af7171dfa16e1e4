package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riverbedai/riverbed"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of riverbed",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("riverbed version %s\n", strings.TrimSpace(riverbed.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
