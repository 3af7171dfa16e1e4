package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/riverbedai/riverbed/pkg/domain"
)

const defaultMaxConcurrent = 4

// taskSpec is the LM-output shape of one spawnable task.
type taskSpec struct {
	ID          string         `mapstructure:"id"`
	Skill       string         `mapstructure:"skill"`
	Instruction string         `mapstructure:"instruction"`
	Params      map[string]any `mapstructure:"params"`

	// Timeout is per-task, in seconds. Zero falls back to the engine
	// default.
	Timeout float64 `mapstructure:"timeout"`
	// Wait defaults to true. A wait=false task is fire-and-forget: the
	// node moves on without it, a merge node folds it in if it happens
	// to be done, and the run end drops it.
	Wait *bool `mapstructure:"wait"`
	// OnFail is log_and_continue (default) or propagate.
	OnFail string `mapstructure:"on_fail"`
}

func (s taskSpec) blocking() bool   { return s.Wait == nil || *s.Wait }
func (s taskSpec) propagates() bool { return s.OnFail == "propagate" }

// taskResult pairs a spawned task with its outcome. Blocking results are
// committed in spawn order regardless of completion order, so the audit
// trail and merged state are deterministic given the same responses.
type taskResult struct {
	spec   taskSpec
	output map[string]any
	err    error
}

// pendingTask is a fire-and-forget task still running after its spawn node
// moved on. The goroutine closes done when the result fields are set.
type pendingTask struct {
	result taskResult
	done   chan struct{}
}

// spawnTasks runs the LM-declared task list through the skill runner with
// bounded concurrency. Each task sees an isolated branch snapshot; its
// result lands in the branches namespace for a merge node to fold in.
//
// The node blocks on wait=true tasks only. A blocking task failure fails
// the node when its on_fail is propagate or the node sets wait_for_all;
// otherwise it is recorded and execution continues. wait=false tasks keep
// running in the background until a merge node adopts them or the run ends.
func (e *Engine) spawnTasks(ctx context.Context, state *domain.State, node *domain.Node, rawTasks []any) error {
	if e.skills == nil {
		return fmt.Errorf("node %q spawns tasks but no skill runner is configured", node.ID)
	}

	specs := make([]taskSpec, 0, len(rawTasks))
	for _, raw := range rawTasks {
		var spec taskSpec
		if err := mapstructure.Decode(raw, &spec); err != nil || spec.Skill == "" {
			e.logger.Warn("skipping malformed task spec", "node_id", node.ID)
			continue
		}
		if spec.ID == "" {
			spec.ID = "task-" + uuid.NewString()[:8]
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil
	}

	maxConcurrent := node.Parallel.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	results := make([]taskResult, len(specs))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var background []*pendingTask

	for i, spec := range specs {
		state.Parallel.Active = append(state.Parallel.Active, domain.TaskRef{TaskID: spec.ID, Skill: spec.Skill})
		state.Counters.TasksSpawned++

		branch := state.BranchSnapshot(spec.ID)
		blocking := node.Parallel.WaitForAll || spec.blocking()

		runTask := func(spec taskSpec, branch map[string]any) taskResult {
			sem <- struct{}{}
			defer func() { <-sem }()

			timeout := e.taskTimeout
			if spec.Timeout > 0 {
				timeout = time.Duration(spec.Timeout * float64(time.Second))
			}
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			params := renderParams(spec.Params, branch)
			if spec.Instruction != "" {
				if params == nil {
					params = map[string]any{}
				}
				params["instruction"] = renderTemplate(spec.Instruction, branch)
			}
			output, err := e.skills.Invoke(callCtx, spec.Skill, params)
			return taskResult{spec: spec, output: output, err: err}
		}

		if blocking {
			wg.Add(1)
			go func(i int, spec taskSpec, branch map[string]any) {
				defer wg.Done()
				results[i] = runTask(spec, branch)
			}(i, spec, branch)
			continue
		}

		p := &pendingTask{done: make(chan struct{})}
		background = append(background, p)
		go func(p *pendingTask, spec taskSpec, branch map[string]any) {
			p.result = runTask(spec, branch)
			close(p.done)
		}(p, spec, branch)
	}
	wg.Wait()

	if len(background) > 0 {
		e.bgMu.Lock()
		if e.bg == nil {
			e.bg = make(map[string][]*pendingTask)
		}
		e.bg[state.RunID] = append(e.bg[state.RunID], background...)
		e.bgMu.Unlock()
	}

	// Commit blocking results in spawn order.
	var firstErr error
	for i, spec := range specs {
		if !(node.Parallel.WaitForAll || spec.blocking()) {
			continue
		}
		r := results[i]
		if err := e.commitTask(state, node.ID, r); err != nil && firstErr == nil {
			if node.Parallel.WaitForAll || r.spec.propagates() {
				firstErr = err
			}
		}
	}

	state.AddAudit(node.ID, domain.AuditSpawn,
		fmt.Sprintf("spawned %d tasks, %d completed, %d failed, %d in background",
			len(specs), state.Counters.TasksCompleted, state.Counters.TasksFailed, len(background)),
		map[string]any{"spawned": len(specs), "background": len(background)})

	return firstErr
}

// commitTask records one finished task: completed output into its branch
// namespace, failures into the run bookkeeping. Either way the task leaves
// the active set. The returned error is advisory; the caller decides
// whether the task's failure policy propagates it.
func (e *Engine) commitTask(state *domain.State, nodeID string, r taskResult) error {
	removeActive(state, r.spec.ID)
	ref := domain.TaskRef{TaskID: r.spec.ID, Skill: r.spec.Skill}
	if r.err != nil {
		ref.Error = r.err.Error()
		state.Parallel.Failed = append(state.Parallel.Failed, ref)
		state.Counters.TasksFailed++
		state.Signals.RecordFailure(nodeID, "task failed", map[string]any{
			"task_id": r.spec.ID, "skill": r.spec.Skill, "error": r.err.Error(),
		})
		return fmt.Errorf("task %q (%s) failed: %w", r.spec.ID, r.spec.Skill, r.err)
	}
	state.SetBranchResult(r.spec.ID, r.output)
	state.Parallel.Completed = append(state.Parallel.Completed, ref)
	state.Counters.TasksCompleted++
	return nil
}

func removeActive(state *domain.State, taskID string) {
	for i, ref := range state.Parallel.Active {
		if ref.TaskID == taskID {
			state.Parallel.Active = append(state.Parallel.Active[:i], state.Parallel.Active[i+1:]...)
			return
		}
	}
}

// adoptBackground folds every fire-and-forget task that happens to be
// finished into the run state. Unfinished ones stay pending; a later merge
// node may pick them up, the run end drops them.
func (e *Engine) adoptBackground(state *domain.State, nodeID string) {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	pending := e.bg[state.RunID]
	if len(pending) == 0 {
		return
	}
	var still []*pendingTask
	for _, p := range pending {
		select {
		case <-p.done:
			if err := e.commitTask(state, nodeID, p.result); err != nil {
				e.logger.Warn("background task failed", "run_id", state.RunID, "error", err)
			}
		default:
			still = append(still, p)
		}
	}
	e.bg[state.RunID] = still
}

// dropBackground abandons whatever fire-and-forget tasks are still running
// when the run ends. Their goroutines finish on their own; the results are
// discarded.
func (e *Engine) dropBackground(state *domain.State) {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if n := len(e.bg[state.RunID]); n > 0 {
		e.logger.Info("dropping unfinished background tasks", "run_id", state.RunID, "count", n)
	}
	delete(e.bg, state.RunID)
}
