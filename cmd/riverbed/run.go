package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Create a run and execute it to a terminal outcome",
	Long:  `Creates a run for the given request and executes it. With --id, executes a previously created run instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		if id, _ := cmd.Flags().GetString("id"); id != "" {
			result, err := eng.Run(cmd.Context(), id)
			if err != nil {
				fmt.Printf("Run failed: %v\n", err)
				os.Exit(1)
			}
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
			return
		}

		if len(args) == 0 {
			fmt.Println("Error: a request (or --id) is required")
			os.Exit(1)
		}
		request := strings.Join(args, " ")
		data := map[string]any{}
		if raw, _ := cmd.Flags().GetString("data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				fmt.Printf("Error: --data must be a JSON object: %v\n", err)
				os.Exit(1)
			}
		}

		result, err := eng.Start(cmd.Context(), request, data)
		if err != nil {
			fmt.Printf("Run failed: %v\n", err)
			os.Exit(1)
		}

		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("data", "", "Initial run data as a JSON object")
	runCmd.Flags().String("id", "", "Execute an existing run instead of creating one")
}
