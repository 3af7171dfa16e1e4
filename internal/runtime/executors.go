package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/riverbedai/riverbed/internal/sediment"
	"github.com/riverbedai/riverbed/pkg/domain"
)

// executeNode runs one node's typed behavior against the state. Executors
// mutate state only; routing is the controller's job.
func (e *Engine) executeNode(ctx context.Context, g *domain.Graph, state *domain.State, node *domain.Node) error {
	if node.Stage != "" {
		state.Stage = node.Stage
	}

	switch node.Type {
	case domain.NodeInit, domain.NodeReason:
		return e.execLM(ctx, state, node)
	case domain.NodeTool:
		return e.execTool(ctx, state, node)
	case domain.NodeMerge:
		return e.execMerge(state, node)
	case domain.NodeMemoryWrite:
		return e.execMemoryWrite(ctx, state, node)
	case domain.NodeGate:
		return e.execGate(state, node)
	case domain.NodeDecision:
		return e.execDecision(state, node)
	case domain.NodeTerminal:
		return nil
	default:
		return fmt.Errorf("node %q has unexecutable type %q", node.ID, node.Type)
	}
}

// execLM drives one language-model step: dredge memory, render the prompt,
// call the completer with bounded schema re-asks, then fold the structured
// output into state.
func (e *Engine) execLM(ctx context.Context, state *domain.State, node *domain.Node) error {
	contextData := state.Snapshot()
	if mem := e.dredge(node); len(mem) > 0 {
		contextData["memory"] = mem
	}
	prompt := renderTemplate(node.Prompt, contextData)

	var output map[string]any
	var err error
	attempts := 1 + node.MaxOutputRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err = e.completer.Complete(ctx, prompt, node.OutputSchema)
		state.Counters.LMCalls++
		if e.metrics != nil {
			e.metrics.LMCalls.Inc()
		}
		if err != nil {
			return fmt.Errorf("lm call failed at node %q: %w", node.ID, err)
		}
		if err = checkSchema(output, node.OutputSchema); err == nil {
			break
		}
		e.logger.Warn("lm output failed schema, re-asking",
			"node_id", node.ID, "attempt", attempt, "error", err)
	}
	if err != nil {
		return fmt.Errorf("node %q: %w", node.ID, err)
	}

	e.applyOutput(state, node, output)

	if node.Memory.Write {
		if facts, ok := output["facts"].([]any); ok && len(facts) > 0 {
			pending, _ := state.Get("pending_facts")
			list, _ := pending.([]any)
			state.Set("pending_facts", append(list, facts...))
		}
	}

	if node.Parallel.Spawn {
		if tasks, ok := output["tasks"].([]any); ok && len(tasks) > 0 {
			return e.spawnTasks(ctx, state, node, tasks)
		}
	}
	return nil
}

// execTool invokes one external skill synchronously.
func (e *Engine) execTool(ctx context.Context, state *domain.State, node *domain.Node) error {
	if e.skills == nil {
		return fmt.Errorf("node %q requires a skill runner", node.ID)
	}
	params := renderParams(node.SkillParams, state.Snapshot())

	callCtx := ctx
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	result, err := e.skills.Invoke(callCtx, node.SkillName, params)
	state.Counters.SkillsInvoked++
	if err != nil {
		return fmt.Errorf("skill %q failed at node %q: %w", node.SkillName, node.ID, err)
	}

	if len(node.StateWrites) > 0 {
		applyStateWrites(state, node.StateWrites, result)
	} else {
		state.Set("results."+node.ID, result)
	}
	return nil
}

// execMerge folds every completed branch into the shared bag under the
// node's target path, in spawn order. Fire-and-forget tasks that happen to
// be done by now are adopted first.
func (e *Engine) execMerge(state *domain.State, node *domain.Node) error {
	e.adoptBackground(state, node.ID)

	target := "merged"
	policy := domain.MergeOverwrite
	if node.Merge != nil {
		if node.Merge.TargetPath != "" {
			target = node.Merge.TargetPath
		}
		if node.Merge.Policy != "" {
			policy = node.Merge.Policy
		}
	}
	for _, task := range state.Parallel.Completed {
		state.MergeBranch(task.TaskID, target, policy)
	}
	return nil
}

// factSpec is the state-bag shape of one pending fact.
type factSpec struct {
	Text       string   `mapstructure:"text"`
	Confidence float64  `mapstructure:"confidence"`
	Kind       string   `mapstructure:"kind"`
	Subject    string   `mapstructure:"subject"`
	Predicate  string   `mapstructure:"predicate"`
	Object     string   `mapstructure:"object"`
	Tags       []string `mapstructure:"tags"`
}

// execMemoryWrite commits pending facts from the state bag to the
// sediment store.
func (e *Engine) execMemoryWrite(ctx context.Context, state *domain.State, node *domain.Node) error {
	if e.sediment == nil {
		return fmt.Errorf("node %q requires a sediment store", node.ID)
	}

	raw, ok := state.Get(node.Memory.Source)
	if !ok {
		return nil // nothing pending
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}

	policy := sediment.ConflictPolicyFlag
	if node.Memory.ConflictPolicy == "overwrite" {
		policy = sediment.ConflictPolicySupersede
	}

	written := 0
	for _, item := range list {
		var spec factSpec
		if err := mapstructure.Decode(item, &spec); err != nil {
			e.logger.Warn("skipping malformed pending fact", "node_id", node.ID, "error", err)
			continue
		}
		if spec.Text == "" {
			continue
		}
		if spec.Confidence == 0 {
			spec.Confidence = 0.5
		}
		fact := domain.Fact{
			Text:       spec.Text,
			Confidence: spec.Confidence,
			Kind:       spec.Kind,
			Tags:       spec.Tags,
			Provenance: domain.Provenance{RunID: state.RunID, NodeID: node.ID},
		}
		if spec.Subject != "" && spec.Predicate != "" {
			fact.Triplet = &domain.Triplet{Subject: spec.Subject, Predicate: spec.Predicate, Object: spec.Object}
		}
		if _, err := e.sediment.Write(ctx, fact, policy); err != nil {
			return fmt.Errorf("memory write failed at node %q: %w", node.ID, err)
		}
		written++
		state.Counters.MemoryWrites++
	}

	state.Set(node.Memory.Source, []any{})
	state.AddAudit(node.ID, domain.AuditMemoryWrite,
		fmt.Sprintf("committed %d facts", written), map[string]any{"written": written})
	return nil
}

// execGate evaluates the node's criteria against state. A gate never calls
// the language model; its verdict lands under data.gate for edge guards.
func (e *Engine) execGate(state *domain.State, node *domain.Node) error {
	snapshot := state.Snapshot()
	var failed []any
	for _, c := range node.Gate.Criteria {
		if !e.guards.Evaluate(c.Check, snapshot) {
			failed = append(failed, c.Name)
		}
	}
	passed := len(failed) == 0
	state.Set("gate", map[string]any{
		"node":   node.ID,
		"passed": passed,
		"failed": failed,
	})
	if !passed {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.(string)
		}
		state.Signals.RecordFailure(node.ID, "gate criteria failed", map[string]any{"criteria": names})
		e.logger.Debug("gate failed", "node_id", node.ID, "criteria", strings.Join(names, ", "))
	}
	return nil
}

// execDecision evaluates the ordered rule list against the configured
// variable and records the winning target for the router.
func (e *Engine) execDecision(state *domain.State, node *domain.Node) error {
	snapshot := state.Snapshot()
	value, _ := lookupPath(snapshot, node.Decision.Variable)
	snapshot["value"] = value

	target := ""
	for _, rule := range node.Decision.Rules {
		if rule.Condition == "default" {
			target = rule.Target
			break
		}
		if e.guards.Evaluate(rule.Condition, snapshot) {
			target = rule.Target
			break
		}
	}
	state.Set("decision."+node.ID, target)
	return nil
}

// dredge runs the node's memory queries and shapes the hits for prompt
// injection under the "memory" context key.
func (e *Engine) dredge(node *domain.Node) map[string]any {
	if e.sediment == nil || len(node.Memory.Dredge) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, q := range node.Memory.Dredge {
		facts := e.sediment.Dredge(domain.FactFilter{
			Text:       q.Text,
			Subjects:   q.Subjects,
			Predicates: q.Predicates,
			Tags:       q.Tags,
			Limit:      q.Limit,
		})
		items := make([]any, len(facts))
		for i, f := range facts {
			items[i] = f.Text
		}
		key := q.AsKey
		if key == "" {
			key = "facts"
		}
		out[key] = items
	}
	return out
}

// applyOutput folds LM output into the data bag, either via explicit
// state_writes or as a whole-output deep merge.
func (e *Engine) applyOutput(state *domain.State, node *domain.Node, output map[string]any) {
	if len(node.StateWrites) > 0 {
		applyStateWrites(state, node.StateWrites, output)
		return
	}
	state.ApplyPatch(output)
}

func applyStateWrites(state *domain.State, writes []domain.StateWrite, source map[string]any) {
	for _, w := range writes {
		if v, ok := lookupPath(source, w.From); ok {
			state.Set(w.Path, v)
		}
	}
}
