package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrProposalNotFound is returned when a proposal ID is unknown.
var ErrProposalNotFound = errors.New("proposal not found")

// ErrGraphNotFound is returned when no graph definition is available.
var ErrGraphNotFound = errors.New("graph not found")

// ErrRetryBudgetExceeded is returned when an edge or the global retry
// budget is exhausted; the controller converts it into a forced transition
// to the failure terminal.
var ErrRetryBudgetExceeded = errors.New("retry budget exceeded")

// ErrOutputSchema marks LM output that failed its node's schema after all
// node-level retries.
var ErrOutputSchema = errors.New("output failed schema validation")

// ValidationError aggregates load-time graph problems. Malformed nodes,
// edges or guards are fatal before any run starts.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph validation failed: %s", strings.Join(e.Problems, "; "))
}
