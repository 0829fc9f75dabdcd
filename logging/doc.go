// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. Every MemMesh component accepts a Logger and substitutes
// NoOpLogger when given nil, so logging never becomes a wiring obligation.
package logging
