package core

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier identifies which memory tier an item currently belongs to. An item is
// in exactly one tier at a time and only ever moves forward:
// STM -> LTM, STM -> Archived or LTM -> Archived.
type Tier int

const (
	// TierSTM is the capacity-bounded short-term tier items are admitted into.
	TierSTM Tier = iota
	// TierLTM is the long-term tier items are promoted into by consolidation.
	TierLTM
	// TierArchived is the terminal tombstone tier. Archived items are kept
	// for audit but excluded from scoring and from the STM capacity count.
	TierArchived
)

// String returns the tier's wire/log representation.
func (t Tier) String() string {
	switch t {
	case TierSTM:
		return "stm"
	case TierLTM:
		return "ltm"
	case TierArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving from t to target is a legal forward
// transition. Archived is terminal and no tier is ever re-entered.
func (t Tier) CanTransitionTo(target Tier) bool {
	switch {
	case t == TierSTM && target == TierLTM:
		return true
	case t == TierSTM && target == TierArchived:
		return true
	case t == TierLTM && target == TierArchived:
		return true
	default:
		return false
	}
}

// MemoryItem is a unit of remembered content. Items are owned exclusively by
// the memory store; every field mutation passes through store operations so
// the tier and monotonicity invariants are enforced at a single choke point.
//
// Connections is a symmetric cross-reference set (not ownership): if a holds
// b's id then b holds a's id, and archiving either removes both directions.
type MemoryItem struct {
	ID              string              `json:"id"`
	Content         string              `json:"content"`
	Embedding       []byte              `json:"embedding,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	LastAccessedAt  time.Time           `json:"last_accessed_at"`
	AccessCount     int                 `json:"access_count"`
	ImportanceScore float64             `json:"importance_score"`
	Connections     map[string]struct{} `json:"connections,omitempty"`
	Tier            Tier                `json:"tier"`
}

// NewMemoryItem creates a fresh short-term item. The first admission counts as
// an access, so AccessCount starts at 1 and LastAccessedAt equals CreatedAt.
func NewMemoryItem(content string, embedding []byte, importance float64, now time.Time) *MemoryItem {
	return &MemoryItem{
		ID:              NewID(),
		Content:         content,
		Embedding:       append([]byte(nil), embedding...),
		CreatedAt:       now,
		LastAccessedAt:  now,
		AccessCount:     1,
		ImportanceScore: importance,
		Connections:     map[string]struct{}{},
		Tier:            TierSTM,
	}
}

// Clone returns a deep copy safe to hand to callers without exposing the
// store's internal pointers.
func (m *MemoryItem) Clone() MemoryItem {
	clone := *m
	clone.Embedding = append([]byte(nil), m.Embedding...)
	clone.Connections = make(map[string]struct{}, len(m.Connections))
	for id := range m.Connections {
		clone.Connections[id] = struct{}{}
	}
	return clone
}

// ConnectionIDs returns the connection set as a sorted-insensitive slice copy.
// Order is unspecified; callers needing determinism should sort.
func (m *MemoryItem) ConnectionIDs() []string {
	ids := make([]string, 0, len(m.Connections))
	for id := range m.Connections {
		ids = append(ids, id)
	}
	return ids
}

// NewID generates a lexicographically sortable unique identifier for memory
// items. Sortability keeps exported snapshots and logs roughly in admission
// order, which aids debugging.
func NewID() string { return ulid.Make().String() }
