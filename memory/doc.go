// Package memory contains the tiered memory store. The store owns every
// MemoryItem exclusively: admission, touching, linking, promotion and archival
// all pass through its operations so the tier-transition and monotonicity
// invariants are enforced at a single choke point.
//
// Concurrency: one exclusive mutex guards all mutation. Evaluation passes copy
// the candidate items under the lock and score them outside it, so producers
// calling Admit/Touch stay bounded while a consolidation cycle is scoring.
package memory
