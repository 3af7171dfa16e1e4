/*
Package domain contains the core domain models for the Riverbed engine.

It defines the fundamental entities of the execution graph, such as Nodes,
Edges, Facts and Proposals. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Node: a typed unit of work (init, reason, tool, merge, memory-write,
    gate, decision, terminal).
  - Edge: the only routing mechanism; carries a guard expression, a priority
    and, for retry edges, a bounded retry budget.
  - Graph: nodes + edges + start/terminal ids + the weighted relationship
    list consumed by the learning loop.
  - Fact: an append-only memory entry with confidence and provenance.
  - Proposal: a structured, auditable suggestion to mutate the graph
    definition between runs.
*/
package domain
