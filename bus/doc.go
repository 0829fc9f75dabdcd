// Package bus implements the topic-based knowledge sharing bus. Accepted
// memories are enriched with publish-time metadata (confidence, relationship
// hints) and delivered synchronously to every subscriber of the topic, in
// subscription order.
//
// The bus is an in-process, best-effort broadcast, not a durable queue:
// subscribers registered after a publish never see that publish, and one
// handler failing never prevents delivery to the remaining handlers.
package bus
