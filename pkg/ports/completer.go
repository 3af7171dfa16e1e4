package ports

import (
	"context"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// Completer is the single external language-model worker interface. The
// engine treats the model as a probabilistic subroutine: it receives a
// rendered prompt and an output contract, and returns structured output.
// Schema enforcement and retries are the caller's responsibility.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema *domain.OutputSchema) (map[string]any, error)
}

// SkillRunner is the single external tool/skill execution interface.
// Invocations are synchronous from the controller's perspective regardless
// of the skill's own internal asynchrony.
type SkillRunner interface {
	Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}
