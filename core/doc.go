// Package core provides the foundational domain types used by MemMesh. It
// defines the core abstractions for:
//
//   - MemoryItem (the unit of remembered content, with tier and connections)
//   - Tier (short-term / long-term / archived lifecycle states)
//   - ConsolidationResult (outcome record of one consolidation cycle)
//   - Shared sentinel errors for input validation and lookups
//
// The package intentionally keeps implementation concerns (storage, scoring,
// scheduling, pub/sub) out of scope. Concrete behavior lives in the memory,
// fitness, consolidation, bus and backup packages; all of them exchange the
// types defined here.
package core
