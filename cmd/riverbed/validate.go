package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riverbedai/riverbed/internal/validator"
	"github.com/riverbedai/riverbed/pkg/adapters/file"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the graph definition for consistency",
	Long:  `Loads the graph and reports malformed nodes, bad guards, dead ends and unreachable nodes.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Graph is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command) error {
	graphPath, _ := cmd.Flags().GetString("graph")
	if len(cmd.Flags().Args()) > 0 {
		graphPath = cmd.Flags().Args()[0]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	g, err := file.NewGraphSource(graphPath).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load graph: %w", err)
	}
	return validator.Validate(g)
}
