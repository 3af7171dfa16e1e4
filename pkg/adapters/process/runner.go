// Package process implements a SkillRunner that executes local commands.
// It follows a strict registry pattern: only allow-listed commands run.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/riverbedai/riverbed/pkg/ports"
)

// RegisteredCommand defines an allowed skill execution.
type RegisteredCommand struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Runner implements ports.SkillRunner over local processes.
type Runner struct {
	registry map[string]RegisteredCommand
	baseDir  string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithSkills populates the allow-list from a loaded config.
func WithSkills(skills map[string]SkillConfig) RunnerOption {
	return func(r *Runner) {
		for name, s := range skills {
			r.registry[name] = RegisteredCommand{
				Command: s.Command,
				Args:    s.Args,
				Env:     s.Environment,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredCommand),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.SkillRunner = (*Runner)(nil)

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredCommand{
		Command: command,
		Args:    args,
	}
}

// Invoke executes a registered skill. Parameters are passed as environment
// variables, never as command flags, so hostile values cannot inject flags
// or shell syntax. Stdout is decoded as a JSON object when it is one,
// otherwise wrapped under "output".
func (r *Runner) Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	proc, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("process skill not registered: %s", name)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir

	env := []string{}
	for k, v := range proc.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range params {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if data, err := json.Marshal(v); err == nil {
				val = string(data)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("RIVERBED_PARAM_%s=%s", strings.ToUpper(k), val))
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("skill %s failed: %w. Stderr: %s", name, err, stderr.String())
	}

	trimmed := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var out map[string]any
		if jsonErr := json.Unmarshal([]byte(trimmed), &out); jsonErr == nil {
			return out, nil
		}
	}

	return map[string]any{"output": trimmed}, nil
}
