package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/memmesh/core"
	"github.com/hupe1980/memmesh/fitness"
	"github.com/hupe1980/memmesh/logging"
)

// Config tunes the store's capacity policy.
type Config struct {
	// STMCapacity is the hard ceiling on short-term items. Admission at
	// capacity archives the lowest-fitness short-term item first, so Admit
	// never fails for capacity reasons.
	STMCapacity int `yaml:"stm_capacity"`
}

// DefaultConfig mirrors the conventional short-term span of roughly ten
// recent interactions.
func DefaultConfig() Config {
	return Config{STMCapacity: 10}
}

// Store is the process-local tiered memory store. It is safe for concurrent
// access; returned items are clones so callers can never mutate internal
// state.
type Store struct {
	mu      sync.Mutex
	items   map[string]*core.MemoryItem
	cfg     Config
	fitness *fitness.Engine
	logger  logging.Logger
	now     func() time.Time
}

// Option mutates store construction settings.
type Option func(*Store)

// WithLogger sets the structured logger (defaults to NoOp).
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNoOp(l) }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore constructs an empty store scoring with the given fitness engine.
func NewStore(cfg Config, engine *fitness.Engine, opts ...Option) *Store {
	if cfg.STMCapacity <= 0 {
		cfg.STMCapacity = DefaultConfig().STMCapacity
	}
	s := &Store{
		items:   make(map[string]*core.MemoryItem),
		cfg:     cfg,
		fitness: engine,
		logger:  logging.NoOpLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit creates a new short-term item and returns its id. Empty content is
// rejected with core.ErrInvalidInput; importance is clamped into [0,1]. When
// the short-term tier is at capacity the lowest-fitness short-term item is
// archived first, under the same lock, so two concurrent admits can neither
// pick the same victim nor both bypass the capacity check.
func (s *Store) Admit(content string, embedding []byte, importance float64) (string, error) {
	if content == "" {
		return "", fmt.Errorf("admit: empty content: %w", core.ErrInvalidInput)
	}
	if importance < 0 {
		importance = 0
	} else if importance > 1 {
		importance = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.stmCountLocked() >= s.cfg.STMCapacity {
		if victim := s.lowestSTMLocked(now); victim != "" {
			s.archiveLocked(victim)
			s.logger.Debug("evicted short-term item at capacity", "id", victim)
		}
	}

	item := core.NewMemoryItem(content, embedding, importance, now)
	s.items[item.ID] = item
	s.logger.Debug("admitted memory item", "id", item.ID, "importance", importance)
	return item.ID, nil
}

// Touch records a use of the item: AccessCount increments, LastAccessedAt
// advances, and a clone of the updated item is returned. Unknown and archived
// ids fail with core.ErrNotFound.
func (s *Store) Touch(id string) (core.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.Tier == core.TierArchived {
		return core.MemoryItem{}, fmt.Errorf("touch %q: %w", id, core.ErrNotFound)
	}
	item.AccessCount++
	if now := s.now(); now.After(item.LastAccessedAt) {
		item.LastAccessedAt = now
	}
	return item.Clone(), nil
}

// Get returns a clone of the item regardless of tier (archived items stay
// readable for audit). Unknown ids fail with core.ErrNotFound.
func (s *Store) Get(id string) (core.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return core.MemoryItem{}, fmt.Errorf("get %q: %w", id, core.ErrNotFound)
	}
	return item.Clone(), nil
}

// Link records a symmetric connection between two live items. Linking an item
// to itself is rejected as invalid input; either endpoint being unknown or
// archived fails with core.ErrNotFound.
func (s *Store) Link(a, b string) error {
	if a == b {
		return fmt.Errorf("link: cannot connect %q to itself: %w", a, core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ia, ok := s.items[a]
	if !ok || ia.Tier == core.TierArchived {
		return fmt.Errorf("link %q: %w", a, core.ErrNotFound)
	}
	ib, ok := s.items[b]
	if !ok || ib.Tier == core.TierArchived {
		return fmt.Errorf("link %q: %w", b, core.ErrNotFound)
	}
	ia.Connections[b] = struct{}{}
	ib.Connections[a] = struct{}{}
	return nil
}

// EvaluateSTM scores every short-term item at the given instant and returns
// the results descending by score, ties broken by older CreatedAt. The items
// are copied under the lock and scored outside it.
func (s *Store) EvaluateSTM(now time.Time) []core.ScoredItem {
	return s.evaluate(core.TierSTM, now)
}

// EvaluateLTM is the symmetric scoring pass over long-term items.
func (s *Store) EvaluateLTM(now time.Time) []core.ScoredItem {
	return s.evaluate(core.TierLTM, now)
}

func (s *Store) evaluate(tier core.Tier, now time.Time) []core.ScoredItem {
	s.mu.Lock()
	candidates := make([]core.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		if item.Tier == tier {
			candidates = append(candidates, item.Clone())
		}
	}
	s.mu.Unlock()

	type scored struct {
		id        string
		score     float64
		createdAt time.Time
	}
	results := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		results = append(results, scored{id: item.ID, score: s.fitness.Score(item, now), createdAt: item.CreatedAt})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].createdAt.Before(results[j].createdAt)
	})

	out := make([]core.ScoredItem, len(results))
	for i, r := range results {
		out[i] = core.ScoredItem{ID: r.id, Score: r.score}
	}
	return out
}

// Promote moves a short-term item into the long-term tier. Promoting an item
// that is already long-term or archived is a no-op reported as (false, nil):
// consolidation may race with concurrent archival, and losing that race is
// not an error. Unknown ids fail with core.ErrNotFound.
func (s *Store) Promote(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false, fmt.Errorf("promote %q: %w", id, core.ErrNotFound)
	}
	if !item.Tier.CanTransitionTo(core.TierLTM) {
		return false, nil
	}
	item.Tier = core.TierLTM
	s.logger.Debug("promoted memory item", "id", id)
	return true, nil
}

// Archive moves a non-archived item into the terminal archived tier and
// severs its connections in both directions, so no live item is left holding
// a reference to a tombstone. Archiving an already-archived item is a no-op.
func (s *Store) Archive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("archive %q: %w", id, core.ErrNotFound)
	}
	if item.Tier == core.TierArchived {
		return nil
	}
	s.archiveLocked(id)
	return nil
}

// archiveLocked performs the tier move and connection severing; caller must
// hold the write lock and have verified the item exists and is not archived.
func (s *Store) archiveLocked(id string) {
	item := s.items[id]
	for other := range item.Connections {
		if linked, ok := s.items[other]; ok {
			delete(linked.Connections, id)
		}
	}
	item.Connections = map[string]struct{}{}
	item.Tier = core.TierArchived
	s.logger.Debug("archived memory item", "id", id)
}

// Stats returns per-tier item counts.
func (s *Store) Stats() core.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats core.Stats
	for _, item := range s.items {
		switch item.Tier {
		case core.TierSTM:
			stats.STM++
		case core.TierLTM:
			stats.LTM++
		case core.TierArchived:
			stats.Archived++
		}
	}
	return stats
}

// STMCapacity exposes the configured short-term ceiling.
func (s *Store) STMCapacity() int { return s.cfg.STMCapacity }

// STMOverflow returns ids of the lowest-scoring short-term items that exceed
// the configured capacity, worst first. Consolidation uses this to enforce
// the ceiling every cycle, not only at admission.
func (s *Store) STMOverflow(now time.Time) []string {
	ranked := s.EvaluateSTM(now)
	if len(ranked) <= s.cfg.STMCapacity {
		return nil
	}
	over := make([]string, 0, len(ranked)-s.cfg.STMCapacity)
	for i := len(ranked) - 1; i >= s.cfg.STMCapacity; i-- {
		over = append(over, ranked[i].ID)
	}
	return over
}

// Export returns a deep copy of every item across all tiers. Used by the
// backup coordinator to build snapshots.
func (s *Store) Export() []core.MemoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps the entire item set for the given one. Used only by recovery,
// after the snapshot contents have been verified; the caller owns making the
// swap all-or-nothing.
func (s *Store) Replace(items []core.MemoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*core.MemoryItem, len(items))
	for _, item := range items {
		clone := item.Clone()
		if clone.Connections == nil {
			clone.Connections = map[string]struct{}{}
		}
		next[clone.ID] = &clone
	}
	s.items = next
}

// stmCountLocked counts short-term items; caller must hold the lock.
func (s *Store) stmCountLocked() int {
	n := 0
	for _, item := range s.items {
		if item.Tier == core.TierSTM {
			n++
		}
	}
	return n
}

// lowestSTMLocked returns the id of the lowest-fitness short-term item (ties
// resolved toward the newer item, so the oldest equal-scoring item survives).
// Caller must hold the lock. Returns "" when the short-term tier is empty.
func (s *Store) lowestSTMLocked(now time.Time) string {
	var (
		victim    string
		bestScore float64
		bestAt    time.Time
		found     bool
	)
	for id, item := range s.items {
		if item.Tier != core.TierSTM {
			continue
		}
		score := s.fitness.Score(*item, now)
		if !found || score < bestScore || (score == bestScore && item.CreatedAt.After(bestAt)) {
			victim, bestScore, bestAt, found = id, score, item.CreatedAt, true
		}
	}
	return victim
}
