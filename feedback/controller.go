// Package feedback implements the slow outer adaptation loop: agents report
// how well the memory system served them, and aggregated reports periodically
// reshape the fitness weights. The loop is advisory: it never blocks
// admission, touching or consolidation, and it adjusts weights by one atomic
// wholesale replacement at a time.
package feedback

import (
	"sync"
	"time"

	"github.com/hupe1980/memmesh/bus"
	"github.com/hupe1980/memmesh/fitness"
	"github.com/hupe1980/memmesh/logging"
)

// Signal names feedback records carry. Each signal nudges the weight vector
// toward the scoring dimension that would have prevented the reported
// problem.
const (
	// SignalPrematurePrune reports that a high-importance memory was pruned
	// before the agent was done with it. Shifts weight toward importance.
	SignalPrematurePrune = "premature-prune"
	// SignalStaleRecall reports that recalled memories were outdated.
	// Shifts weight toward recency.
	SignalStaleRecall = "stale-recall"
	// SignalChurn reports that frequently used memories kept being evicted.
	// Shifts weight toward frequency.
	SignalChurn = "churn"
)

// SubscriberID identifies the controller on the knowledge bus.
const SubscriberID = "feedback-controller"

// Record is one immutable feedback event from a source agent about how the
// memory system treated a target agent's memories.
type Record struct {
	SourceAgent string    `json:"source_agent"`
	TargetAgent string    `json:"target_agent"`
	Signal      string    `json:"signal"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Config tunes the adaptation loop.
type Config struct {
	// RecomputeEvery triggers a weight recomputation after this many new
	// records.
	RecomputeEvery int `yaml:"recompute_every"`

	// LearningRate controls how far one recomputation moves the current
	// weights toward the feedback-implied target, in (0,1].
	LearningRate float64 `yaml:"learning_rate"`
}

// DefaultConfig recomputes every ten records with a conservative step.
func DefaultConfig() Config {
	return Config{RecomputeEvery: 10, LearningRate: 0.1}
}

// Controller accumulates feedback records and adjusts the fitness engine's
// weights. Safe for concurrent use.
type Controller struct {
	cfg    Config
	engine *fitness.Engine
	logger logging.Logger

	mu           sync.Mutex
	records      []Record
	sinceRefresh int
}

// NewController constructs a controller adapting the given fitness engine.
func NewController(cfg Config, engine *fitness.Engine, logger logging.Logger) *Controller {
	if cfg.RecomputeEvery <= 0 {
		cfg.RecomputeEvery = DefaultConfig().RecomputeEvery
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	return &Controller{
		cfg:    cfg,
		engine: engine,
		logger: logging.OrNoOp(logger),
	}
}

// Record appends an immutable feedback record and, when enough records have
// accumulated since the last refresh, recomputes the weights and replaces
// them atomically on the fitness engine.
func (c *Controller) Record(sourceAgent, targetAgent, signal string) {
	c.mu.Lock()
	c.records = append(c.records, Record{
		SourceAgent: sourceAgent,
		TargetAgent: targetAgent,
		Signal:      signal,
		RecordedAt:  time.Now().UTC(),
	})
	c.sinceRefresh++
	refresh := c.sinceRefresh >= c.cfg.RecomputeEvery
	if refresh {
		c.sinceRefresh = 0
	}
	var next fitness.Weights
	if refresh {
		next = c.targetWeightsLocked()
	}
	c.mu.Unlock()

	if refresh {
		c.apply(next)
	}
}

// Records returns a copy of all accumulated feedback records.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// ID implements bus.Subscriber.
func (c *Controller) ID() string { return SubscriberID }

// Handle implements bus.Subscriber, turning feedback topic deliveries into
// records. Payloads carry source/target/signal in the Feedback map.
func (c *Controller) Handle(k bus.Knowledge) error {
	if k.Feedback == nil {
		return nil
	}
	c.Record(k.Feedback["source"], k.Feedback["target"], k.Feedback["signal"])
	return nil
}

// targetWeightsLocked derives the feedback-implied weight vector from signal
// frequencies. Caller must hold c.mu.
func (c *Controller) targetWeightsLocked() fitness.Weights {
	counts := map[string]float64{}
	for _, r := range c.records {
		counts[r.Signal]++
	}
	base := fitness.DefaultWeights()
	target := fitness.Weights{
		Recency:    base.Recency + counts[SignalStaleRecall],
		Frequency:  base.Frequency + counts[SignalChurn],
		Importance: base.Importance + counts[SignalPrematurePrune],
	}
	return target.Normalized()
}

// apply moves the engine's current weights a LearningRate-sized step toward
// target and swaps them in as one replacement.
func (c *Controller) apply(target fitness.Weights) {
	current := c.engine.Weights()
	lr := c.cfg.LearningRate
	next := fitness.Weights{
		Recency:    current.Recency + lr*(target.Recency-current.Recency),
		Frequency:  current.Frequency + lr*(target.Frequency-current.Frequency),
		Importance: current.Importance + lr*(target.Importance-current.Importance),
	}
	c.engine.SetWeights(next)
	c.logger.Debug("fitness weights adjusted from feedback",
		"recency", next.Recency, "frequency", next.Frequency, "importance", next.Importance)
}
