// Package model defines the LLM completion boundary the memory engine
// consumes. The engine only depends on the Completer contract (a prompt in,
// a text completion out, failures surfaced as a distinguishable
// *CompletionError), never on provider internals. Vendor adapters live in the
// anthropic and openai sub-packages.
package model
