// Package engine wires the memory store, fitness scoring, consolidation
// scheduler, knowledge bus, backup coordinator and feedback controller into
// one runnable memory engine. Construction uses functional options with
// in-memory defaults safe for development and testing; production setups
// supply a durable snapshot store, a structured logger and a completion
// client for importance assessment.
package engine
