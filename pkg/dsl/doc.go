/*
Package dsl provides a Go DSL for programmatically constructing riverbed
graphs.

It allows developers to define execution graphs using a type-safe, fluent
builder pattern instead of external YAML files. This is particularly
useful for dynamic graph generation, unit testing, and leveraging IDE
autocompletion and type-checking.

Example usage:

	b := dsl.New("triage").Failure("failed")

	b.Init("intake").Prompt("Classify: {{request}}")
	b.Reason("answer").Prompt("Answer about {{data.topic}}")
	b.Terminal("done").Outcome(domain.OutcomeSuccess)
	b.Terminal("failed")

	b.Forward("e1", "intake", "answer")
	b.Forward("e2", "answer", "done")
	b.Retry("again", "answer", "answer").MaxRetries(2)

	g, err := b.Graph()
	// ... serve g via memory.NewGraphSource(g)
*/
package dsl
