package domain

import (
	"strings"
	"time"
)

// MergePolicy controls how a child branch namespace folds back into the
// parent data bag at a merge node.
type MergePolicy string

const (
	// MergeOverwrite replaces parent values with branch values.
	MergeOverwrite MergePolicy = "overwrite"
	// MergeAppend collects branch values into a list under the target path.
	MergeAppend MergePolicy = "append"
	// MergeConflictFlag keeps the parent value and records the collision
	// under "merge_conflicts" instead of resolving it.
	MergeConflictFlag MergePolicy = "conflict-flag"
)

// Counters hold loop-control and statistics counters for one run.
type Counters struct {
	TotalSteps     int            `json:"total_steps"`
	NodeVisits     map[string]int `json:"node_visits"`
	EdgeRetries    map[string]int `json:"edge_retries"`
	TotalRetries   int            `json:"total_retries"`
	LMCalls        int            `json:"lm_calls"`
	SkillsInvoked  int            `json:"skills_invoked"`
	MemoryWrites   int            `json:"memory_writes"`
	TasksSpawned   int            `json:"tasks_spawned"`
	TasksCompleted int            `json:"tasks_completed"`
	TasksFailed    int            `json:"tasks_failed"`
}

// VisitNode records a node visit and returns the new visit count.
func (c *Counters) VisitNode(nodeID string) int {
	c.TotalSteps++
	if c.NodeVisits == nil {
		c.NodeVisits = make(map[string]int)
	}
	c.NodeVisits[nodeID]++
	return c.NodeVisits[nodeID]
}

// AddRetry records a traversal of a retry edge and returns the new count.
func (c *Counters) AddRetry(edgeID string) int {
	if c.EdgeRetries == nil {
		c.EdgeRetries = make(map[string]int)
	}
	c.EdgeRetries[edgeID]++
	c.TotalRetries++
	return c.EdgeRetries[edgeID]
}

// Retries returns the retry count for an edge.
func (c *Counters) Retries(edgeID string) int {
	return c.EdgeRetries[edgeID]
}

// TaskRef tracks one parallel task id in the run bookkeeping.
type TaskRef struct {
	TaskID string `json:"task_id"`
	Skill  string `json:"skill,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ParallelBook tracks active, completed and failed parallel tasks.
type ParallelBook struct {
	Active    []TaskRef `json:"active,omitempty"`
	Completed []TaskRef `json:"completed,omitempty"`
	Failed    []TaskRef `json:"failed,omitempty"`
}

// Signal is one learning observation collected during execution.
type Signal struct {
	NodeID  string         `json:"node_id,omitempty"`
	EdgeID  string         `json:"edge_id,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Signals groups learning signals by category.
type Signals struct {
	Successes    []Signal `json:"successes,omitempty"`
	Failures     []Signal `json:"failures,omitempty"`
	Improvements []Signal `json:"improvements,omitempty"`
	Observations []Signal `json:"observations,omitempty"`
}

// State is the complete, externally-held run state. It is passed explicitly
// through the controller and every executor call; many runs execute
// concurrently without sharing state.
type State struct {
	RunID        string `json:"run_id"`
	GraphName    string `json:"graph_name,omitempty"`
	GraphVersion int    `json:"graph_version"`

	CurrentNode string `json:"current_node"`
	Stage       string `json:"stage,omitempty"`
	Request     string `json:"request,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Data is the nested working bag, addressed by dot paths.
	Data map[string]any `json:"data"`

	Counters Counters     `json:"counters"`
	Parallel ParallelBook `json:"parallel"`
	Signals  Signals      `json:"signals"`

	// Audit is the append-only trail, ordered by sequence number.
	Audit []AuditEvent `json:"audit"`
}

// NewState creates a clean run state positioned at the start node.
func NewState(runID, startNode string) *State {
	return &State{
		RunID:       runID,
		CurrentNode: startNode,
		StartedAt:   time.Now().UTC(),
		Data:        make(map[string]any),
	}
}

// Get reads a dot-path from the data bag, returning (nil, false) when any
// segment is absent. Absent paths are a defined default, never an error.
func (s *State) Get(path string) (any, bool) {
	var cur any = s.Data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString reads a dot-path and coerces it to a string.
func (s *State) GetString(path string) string {
	v, ok := s.Get(path)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Set writes a value at a dot-path, creating intermediate maps.
func (s *State) Set(path string, value any) {
	parts := strings.Split(path, ".")
	target := s.Data
	for _, part := range parts[:len(parts)-1] {
		next, ok := target[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[part] = next
		}
		target = next
	}
	target[parts[len(parts)-1]] = value
}

// ApplyPatch deep-merges a patch into the data bag. Nested maps merge key
// by key; everything else is replaced.
func (s *State) ApplyPatch(patch map[string]any) {
	s.Data = deepMerge(s.Data, patch)
}

// AddAudit appends an event with the next sequence number.
func (s *State) AddAudit(nodeID, action, summary string, signals map[string]any) {
	s.Audit = append(s.Audit, AuditEvent{
		Sequence: len(s.Audit) + 1,
		NodeID:   nodeID,
		Action:   action,
		Summary:  summary,
		Signals:  signals,
	})
}

// Snapshot returns a read-only deep copy of the state as a guard/template
// evaluation context. Mutating the snapshot never touches the run state.
func (s *State) Snapshot() map[string]any {
	return map[string]any{
		"run_id":       s.RunID,
		"current_node": s.CurrentNode,
		"stage":        s.Stage,
		"request":      s.Request,
		"data":         deepCopyMap(s.Data),
		"counters": map[string]any{
			"total_steps":     s.Counters.TotalSteps,
			"total_retries":   s.Counters.TotalRetries,
			"lm_calls":        s.Counters.LMCalls,
			"skills_invoked":  s.Counters.SkillsInvoked,
			"memory_writes":   s.Counters.MemoryWrites,
			"tasks_spawned":   s.Counters.TasksSpawned,
			"tasks_completed": s.Counters.TasksCompleted,
			"tasks_failed":    s.Counters.TasksFailed,
			"node_visits":     copyIntMap(s.Counters.NodeVisits),
			"edge_retries":    copyIntMap(s.Counters.EdgeRetries),
		},
	}
}

// Clone returns a deep copy of the state. Stores copy on save and load so
// callers never share mutable structure with persisted state.
func (s *State) Clone() *State {
	out := *s
	out.Data = deepCopyMap(s.Data)
	out.Counters.NodeVisits = copyIntMapInt(s.Counters.NodeVisits)
	out.Counters.EdgeRetries = copyIntMapInt(s.Counters.EdgeRetries)
	out.Parallel.Active = append([]TaskRef(nil), s.Parallel.Active...)
	out.Parallel.Completed = append([]TaskRef(nil), s.Parallel.Completed...)
	out.Parallel.Failed = append([]TaskRef(nil), s.Parallel.Failed...)
	out.Signals.Successes = append([]Signal(nil), s.Signals.Successes...)
	out.Signals.Failures = append([]Signal(nil), s.Signals.Failures...)
	out.Signals.Improvements = append([]Signal(nil), s.Signals.Improvements...)
	out.Signals.Observations = append([]Signal(nil), s.Signals.Observations...)
	out.Audit = append([]AuditEvent(nil), s.Audit...)
	return &out
}

// BranchSnapshot returns the isolated state slice handed to one parallel
// task: a deep copy of the data bag plus the task id. Branches never see
// sibling writes.
func (s *State) BranchSnapshot(taskID string) map[string]any {
	return map[string]any{
		"run_id":  s.RunID,
		"task_id": taskID,
		"data":    deepCopyMap(s.Data),
	}
}

// SetBranchResult stores a finished task's output under the isolated
// branches namespace. Only a merge node may fold it into shared state.
func (s *State) SetBranchResult(taskID string, result map[string]any) {
	s.Set("branches."+taskID, result)
}

// MergeBranch folds one branch namespace into the shared bag under the
// given target path, honoring the merge policy, then clears the branch.
func (s *State) MergeBranch(taskID, targetPath string, policy MergePolicy) {
	branch, ok := s.Get("branches." + taskID)
	if !ok {
		return
	}
	switch policy {
	case MergeAppend:
		existing, _ := s.Get(targetPath)
		list, _ := existing.([]any)
		s.Set(targetPath, append(list, branch))
	case MergeConflictFlag:
		if _, exists := s.Get(targetPath); exists {
			conflicts, _ := s.Get("merge_conflicts")
			list, _ := conflicts.([]any)
			s.Set("merge_conflicts", append(list, map[string]any{
				"task_id": taskID,
				"path":    targetPath,
			}))
		} else {
			s.Set(targetPath, branch)
		}
	default: // MergeOverwrite
		s.Set(targetPath, branch)
	}
	if branches, ok := s.Data["branches"].(map[string]any); ok {
		delete(branches, taskID)
	}
}

// RecordSuccess notes a successful transition for the learning loop.
func (s *Signals) RecordSuccess(nodeID, edgeID string) {
	s.Successes = append(s.Successes, Signal{NodeID: nodeID, EdgeID: edgeID})
}

// RecordFailure notes a failure for the learning loop.
func (s *Signals) RecordFailure(nodeID, reason string, details map[string]any) {
	s.Failures = append(s.Failures, Signal{NodeID: nodeID, Reason: reason, Details: details})
}

// RecordImprovement notes a potential improvement.
func (s *Signals) RecordImprovement(suggestion string, details map[string]any) {
	s.Improvements = append(s.Improvements, Signal{Reason: suggestion, Details: details})
}

// RecordObservation notes a general observation.
func (s *Signals) RecordObservation(observation string, details map[string]any) {
	s.Observations = append(s.Observations, Signal{Reason: observation, Details: details})
}

func deepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if pm, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(bm, pm)
				continue
			}
		}
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func copyIntMap(m map[string]int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMapInt(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
