package domain

import "time"

// Fact kinds.
const (
	FactKindFact        = "fact"
	FactKindDecision    = "decision"
	FactKindObservation = "observation"
	FactKindLesson      = "lesson"
)

// Triplet is an optional structured (subject, predicate, object) form of a
// fact, used for conflict detection.
type Triplet struct {
	Subject   string `json:"subject" yaml:"subject"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Object    string `json:"object" yaml:"object"`
}

// Provenance records where a fact came from.
type Provenance struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	NodeID    string    `json:"node_id" yaml:"node_id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Fact is one entry in the sediment store. Facts are immutable once
// written; corrections create new facts with superseding provenance.
type Fact struct {
	ID         string     `json:"id" yaml:"id"`
	Text       string     `json:"text" yaml:"text"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	Kind       string     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Triplet    *Triplet   `json:"triplet,omitempty" yaml:"triplet,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`

	// Supersedes names the fact this one corrects, if any.
	Supersedes string `json:"supersedes,omitempty" yaml:"supersedes,omitempty"`
	// Conflicted marks a fact flagged for human review at write time.
	Conflicted bool `json:"conflicted,omitempty" yaml:"conflicted,omitempty"`
}

// FactFilter selects and ranks facts on query.
type FactFilter struct {
	Text          string
	Subjects      []string
	Predicates    []string
	Kinds         []string
	Tags          []string
	MinConfidence float64
	Limit         int
}
