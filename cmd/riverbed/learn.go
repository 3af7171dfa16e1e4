package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var learnCmd = &cobra.Command{
	Use:     "learn",
	Aliases: []string{"evolve"},
	Short:   "Analyze recorded runs and produce a change proposal",
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		proposal, err := eng.Learn(cmd.Context())
		if err != nil {
			fmt.Printf("Learn failed: %v\n", err)
			os.Exit(1)
		}
		if proposal == nil {
			fmt.Printf("Not enough runs yet (%d pending)\n", eng.PendingRuns())
			return
		}

		out, _ := json.MarshalIndent(proposal, "", "  ")
		fmt.Println(string(out))
	},
}

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "List learning proposals and their status",
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		proposals, err := eng.Proposals(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range proposals {
			fmt.Printf("%s\t%s\tchanges=%d\tconfidence=%.2f\n", p.ID, p.Status, len(p.Changes), p.Confidence)
		}
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Apply a pending proposal, including its gated changes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		proposal, err := eng.Approve(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Approve failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %s; graph is now version %d\n", proposal.ID, eng.Graph().Version)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, _, err := buildEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing riverbed: %v\n", err)
			os.Exit(1)
		}

		if err := eng.Reject(cmd.Context(), args[0]); err != nil {
			fmt.Printf("Reject failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rejected.")
	},
}

func init() {
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}
