// Package consolidation implements the periodic cycle that promotes
// short-term memories into long-term memory and prunes both tiers based on
// fitness. One cycle is a pure function of the store's current population and
// the scoring weights; the scheduler merely runs it on a fixed interval and
// publishes the outcome.
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/memmesh/bus"
	"github.com/hupe1980/memmesh/core"
	"github.com/hupe1980/memmesh/internal/task"
	"github.com/hupe1980/memmesh/logging"
	"github.com/hupe1980/memmesh/memory"
)

// Config tunes the consolidation policy.
type Config struct {
	// Interval between cycles.
	Interval time.Duration `yaml:"interval"`

	// LTMThreshold is the minimum fitness score a short-term item needs to
	// be promoted into long-term memory.
	LTMThreshold float64 `yaml:"ltm_threshold"`

	// PruneThreshold is the score below which long-term items are archived.
	// It must be strictly less than LTMThreshold: the gap prevents an item
	// from oscillating between promotion-eligible and prune-eligible.
	PruneThreshold float64 `yaml:"prune_threshold"`

	// PromotionCap bounds promotions per cycle; 0 means unlimited. Because
	// candidates are processed in descending score order, a cap favors the
	// strongest candidates.
	PromotionCap int `yaml:"promotion_cap"`
}

// DefaultConfig mirrors the conventional five-minute consolidation interval
// with a 0.6 promotion / 0.4 pruning margin.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		LTMThreshold:   0.6,
		PruneThreshold: 0.4,
	}
}

// Validate rejects configurations that violate the threshold invariant.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("consolidation: interval must be positive, got %s: %w", c.Interval, core.ErrInvalidInput)
	}
	if c.LTMThreshold < 0 || c.LTMThreshold > 1 {
		return fmt.Errorf("consolidation: ltm threshold %f outside [0,1]: %w", c.LTMThreshold, core.ErrInvalidInput)
	}
	if c.PruneThreshold < 0 || c.PruneThreshold > 1 {
		return fmt.Errorf("consolidation: prune threshold %f outside [0,1]: %w", c.PruneThreshold, core.ErrInvalidInput)
	}
	if c.PruneThreshold >= c.LTMThreshold {
		return fmt.Errorf("consolidation: prune threshold %f must be strictly below ltm threshold %f: %w", c.PruneThreshold, c.LTMThreshold, core.ErrInvalidInput)
	}
	if c.PromotionCap < 0 {
		return fmt.Errorf("consolidation: promotion cap must be non-negative, got %d: %w", c.PromotionCap, core.ErrInvalidInput)
	}
	return nil
}

// Scheduler runs consolidation cycles against a memory store and publishes
// each cycle's result on the knowledge bus.
type Scheduler struct {
	cfg    Config
	store  *memory.Store
	bus    *bus.Bus
	logger logging.Logger
	now    func() time.Time
	loop   *task.Recurring
}

// Option mutates scheduler construction settings.
type Option func(*Scheduler)

// WithLogger sets the structured logger (defaults to NoOp).
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNoOp(l) }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler validates cfg and constructs a stopped scheduler.
func NewScheduler(cfg Config, store *memory.Store, b *bus.Bus, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		store:  store,
		bus:    b,
		logger: logging.NoOpLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loop = task.NewRecurring("consolidation", cfg.Interval, func(ctx context.Context) error {
		_, err := s.RunCycle(ctx)
		return err
	}, s.logger)
	return s, nil
}

// Start launches the periodic cycle.
func (s *Scheduler) Start(ctx context.Context) { s.loop.Start(ctx) }

// Stop halts the periodic cycle, letting an in-flight cycle finish its
// current item-level step.
func (s *Scheduler) Stop() { s.loop.Stop() }

// RunCycle executes one consolidation pass:
//
//  1. Score the short-term tier and promote everything at or above the
//     promotion threshold, strongest first, honoring the promotion cap.
//  2. Archive the single lowest-scoring short-term item while the tier still
//     exceeds capacity (the capacity ceiling holds every cycle, not only at
//     admission).
//  3. Score the long-term tier and archive everything below the prune
//     threshold.
//  4. Publish one ConsolidationResult on the consolidation topic.
//
// An item disappearing mid-cycle (a race with concurrent archival) is logged
// and skipped; any other store failure aborts the remaining work for this
// cycle; the next interval is the retry. Per-item moves are atomic, so an
// aborted cycle never leaves an item half-transitioned.
func (s *Scheduler) RunCycle(ctx context.Context) (core.ConsolidationResult, error) {
	now := s.now()
	result := core.ConsolidationResult{CycleAt: now}

	// promotion pass, descending score order
	for _, candidate := range s.store.EvaluateSTM(now) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if candidate.Score < s.cfg.LTMThreshold {
			break
		}
		if s.cfg.PromotionCap > 0 && result.Promoted >= s.cfg.PromotionCap {
			break
		}
		promoted, err := s.store.Promote(candidate.ID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				s.logger.Debug("promotion candidate vanished mid-cycle", "id", candidate.ID)
				continue
			}
			return result, fmt.Errorf("promote %q: %w", candidate.ID, err)
		}
		if !promoted {
			continue
		}
		result.Promoted++
		result.PromotedIDs = append(result.PromotedIDs, candidate.ID)
		if item, err := s.store.Get(candidate.ID); err == nil {
			s.bus.PublishItem(bus.TopicPromotions, item, candidate.Score)
		}
	}

	// capacity pass: archive the weakest short-term survivors one at a time
	for _, id := range s.store.STMOverflow(now) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := s.archive(id, &result); err != nil {
			return result, err
		}
	}

	// pruning pass over long-term memory
	ranked := s.store.EvaluateLTM(now)
	for i := len(ranked) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if ranked[i].Score >= s.cfg.PruneThreshold {
			break
		}
		if err := s.archive(ranked[i].ID, &result); err != nil {
			return result, err
		}
	}

	s.bus.PublishResult(result)
	s.logger.Info("consolidation cycle completed",
		"promoted", result.Promoted,
		"archived", result.Archived,
	)
	return result, nil
}

func (s *Scheduler) archive(id string, result *core.ConsolidationResult) error {
	if err := s.store.Archive(id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Debug("archive candidate vanished mid-cycle", "id", id)
			return nil
		}
		return fmt.Errorf("archive %q: %w", id, err)
	}
	result.Archived++
	result.ArchivedIDs = append(result.ArchivedIDs, id)
	return nil
}
