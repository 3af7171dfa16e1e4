package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "riverbed",
	Short: "Riverbed is a graph execution controller for LM agent workflows",
	Long: `Riverbed runs declarative node graphs where a language model is a
typed worker, facts settle into an append-only memory store, and
finished runs feed a learning loop that proposes graph improvements.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("graph", "graph.yaml", "Path to the graph definition")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for durable run state (defaults to in-memory)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for shared state and locking")
	rootCmd.PersistentFlags().String("skills", "", "Path to a YAML file of external command skills")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}
