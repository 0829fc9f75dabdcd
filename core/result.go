package core

import "time"

// ScoredItem pairs an item id with its fitness score for one evaluation pass.
// Evaluation results are ordered descending by score with ties broken by the
// older CreatedAt, favoring stability over newcomer churn.
type ScoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// ConsolidationResult records the outcome of a single consolidation cycle. It
// is published on the "consolidation" bus topic after every completed cycle.
type ConsolidationResult struct {
	CycleAt     time.Time `json:"cycle_at"`
	Promoted    int       `json:"promoted"`
	Archived    int       `json:"archived"`
	PromotedIDs []string  `json:"promoted_ids,omitempty"`
	ArchivedIDs []string  `json:"archived_ids,omitempty"`
}

// Stats summarizes per-tier item counts.
type Stats struct {
	STM      int `json:"stm"`
	LTM      int `json:"ltm"`
	Archived int `json:"archived"`
}

// Total returns the number of items across all tiers.
func (s Stats) Total() int { return s.STM + s.LTM + s.Archived }
