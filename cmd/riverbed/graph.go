package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	presentation "github.com/riverbedai/riverbed/internal/presentation/graph"
	"github.com/riverbedai/riverbed/pkg/adapters/file"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the graph as a Mermaid flowchart",
	Run: func(cmd *cobra.Command, args []string) {
		graphPath, _ := cmd.Flags().GetString("graph")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		g, err := file.NewGraphSource(graphPath).Load(ctx)
		if err != nil {
			fmt.Printf("Error loading graph: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(presentation.GenerateMermaid(g, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
