/*
Package riverbed is a graph execution controller for language-model agent
workflows. It treats the LM as a probabilistic worker inside a declarative
graph: nodes describe typed units of work (reasoning, tool calls, gates,
decisions, merges, memory writes), edges describe guarded transitions with
priorities and bounded retries, and the controller owns all control flow.

The architecture separates three planes:

  - Execution: the controller walks the graph step by step, committing
    state after every step so runs are durable and resumable.
  - Memory: facts settle into an append-only sediment store and are
    dredged back into prompts by relevance, never overwritten in place.
  - Learning: finished runs are analyzed in batches; the evolution engine
    proposes graph changes (priorities, weights, retry bounds, prompts),
    auto-applies the safe ones, and holds the rest for human approval.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/riverbedai/riverbed"
		"github.com/riverbedai/riverbed/pkg/adapters/file"
		"github.com/riverbedai/riverbed/pkg/adapters/openai"
	)

	func main() {
		ctx := context.Background()

		source := file.NewGraphSource("./graphs/triage.yaml")
		completer := openai.New("sk-...")

		eng, err := riverbed.New(ctx, source, completer)
		if err != nil {
			log.Fatal(err)
		}

		result, err := eng.Start(ctx, "summarize the incident report", nil)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("outcome=%s steps=%d", result.Outcome, result.TotalSteps)

		// After enough runs, distill what worked into the next graph version.
		if proposal, err := eng.Learn(ctx); err == nil && proposal != nil {
			log.Printf("proposal %s: %d changes", proposal.ID, len(proposal.Changes))
		}
	}

Persistence defaults to in-memory adapters; pkg/adapters/file and
pkg/adapters/redis provide durable alternatives wired in via options.
*/
package riverbed
