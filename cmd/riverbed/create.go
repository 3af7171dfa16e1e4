package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create [request]",
	Short: "Create a run without executing it",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		data := map[string]any{}
		if raw, _ := cmd.Flags().GetString("data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				fmt.Printf("Error: --data must be a JSON object: %v\n", err)
				os.Exit(1)
			}
		}

		runID, err := eng.Create(cmd.Context(), strings.Join(args, " "), data)
		if err != nil {
			fmt.Printf("Create failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(runID)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().String("data", "", "Initial run data as a JSON object")
}
