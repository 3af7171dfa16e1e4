package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show where a run is, or list all runs",
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			runs, err := eng.Runs(cmd.Context())
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			for _, id := range runs {
				fmt.Println(id)
			}
			return
		}

		status, err := eng.Status(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <run-id>",
	Short: "Print the audit trail of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		events, err := eng.Audit(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range events {
			_ = enc.Encode(ev)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)
}
