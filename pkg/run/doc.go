/*
Package run implements run lifecycle management and persistence
orchestration.

It provides high-level abstractions for handling concurrent access to run
state across multiple replicas, integrating in-process locking with
distributed locking and long-term storage adapters.
*/
package run
