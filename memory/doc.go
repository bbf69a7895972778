// Package memory keeps a vector index of past phase digests so later
// strategy phases can see what the agent already tried.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, embedded and in-process)
//   - Embedder: text-to-vector conversion (feature-hashing, offline)
//   - Manager: decides which phases are worth keeping and formats
//     retrieved phases for prompt injection
//
// Integration:
//   - RECORD: after a phase is published its digest is stored
//   - RETRIEVE: before a Strategy phase, related past phases are appended
//     to the prompt
//
// Memories are namespaced by owner (the agent's wallet address).
package memory
