/*
Package ports defines the driven ports (interfaces) for the Riverbed engine.

These interfaces decouple the core logic from external implementations,
allowing the engine to work with various storage backends, LM providers and
skill hosts.

# Key Interfaces

  - Completer: the external language-model worker interface.
  - SkillRunner: the external tool/skill execution interface.
  - RunStore / RunArchive: live run state persistence and write-once artifacts.
  - FactLog: append-only persistence behind the sediment store.
  - GraphSource: loading and publishing graph definition versions.
  - Locker: distributed concurrency control for run access.
*/
package ports
