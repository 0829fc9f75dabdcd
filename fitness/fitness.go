// Package fitness implements the scoring function that governs promotion and
// pruning decisions. A score is a weighted combination of three normalized
// signals (recency, frequency, importance), each in [0,1]:
//
//	score = w_r*exp(-age/decay) + w_f*(count/(count+sat)) + w_i*importance
//
// Weights are mutable external state: the feedback controller replaces them
// wholesale while many concurrent scorers read them. The engine holds them in
// an atomic pointer to an immutable record, so readers always observe either
// the old or the new complete vector, never a partial update.
package fitness

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/memmesh/core"
)

// Weights is the immutable weight vector combining the three fitness signals.
// Values are non-negative; Engine re-normalizes vectors that do not sum to 1
// rather than failing, so the feedback loop can supply raw aggregates.
type Weights struct {
	Recency    float64 `json:"recency" yaml:"recency"`
	Frequency  float64 `json:"frequency" yaml:"frequency"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// DefaultWeights gives each signal equal influence, matching the behavior of
// an unweighted average until feedback shifts the balance.
func DefaultWeights() Weights {
	return Weights{Recency: 1.0 / 3, Frequency: 1.0 / 3, Importance: 1.0 / 3}
}

// Normalized returns a copy whose components are clamped to be non-negative
// and scaled to sum to 1. A degenerate all-zero vector falls back to
// DefaultWeights.
func (w Weights) Normalized() Weights {
	w.Recency = math.Max(0, w.Recency)
	w.Frequency = math.Max(0, w.Frequency)
	w.Importance = math.Max(0, w.Importance)
	sum := w.Recency + w.Frequency + w.Importance
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Recency:    w.Recency / sum,
		Frequency:  w.Frequency / sum,
		Importance: w.Importance / sum,
	}
}

// Config holds the time constants of the scoring function.
type Config struct {
	// DecayConstant controls how fast the recency signal decays toward 0 as
	// an item goes untouched. Roughly the age at which recency drops to 1/e.
	DecayConstant time.Duration `yaml:"decay_constant"`

	// SaturationConstant is the access count at which the frequency signal
	// reaches 0.5. Diminishing returns keep frequently-touched items from
	// dominating the score without bound.
	SaturationConstant float64 `yaml:"saturation_constant"`
}

// DefaultConfig returns decay/saturation constants suitable for interactive
// agent sessions: recency half-life on the order of an hour, frequency
// saturating around five accesses.
func DefaultConfig() Config {
	return Config{
		DecayConstant:      time.Hour,
		SaturationConstant: 5,
	}
}

// Engine computes fitness scores for memory items. It is safe for concurrent
// use: scoring reads the weight vector through an atomic pointer and has no
// other mutable state.
type Engine struct {
	cfg     Config
	weights atomic.Pointer[Weights]
}

// NewEngine creates a scoring engine with the given constants and
// DefaultWeights.
func NewEngine(cfg Config) *Engine {
	if cfg.DecayConstant <= 0 {
		cfg.DecayConstant = DefaultConfig().DecayConstant
	}
	if cfg.SaturationConstant <= 0 {
		cfg.SaturationConstant = DefaultConfig().SaturationConstant
	}
	e := &Engine{cfg: cfg}
	w := DefaultWeights()
	e.weights.Store(&w)
	return e
}

// Weights returns the current weight vector.
func (e *Engine) Weights() Weights {
	return *e.weights.Load()
}

// SetWeights replaces the weight vector wholesale after normalizing it.
// Concurrent scorers see either the previous or the new vector.
func (e *Engine) SetWeights(w Weights) {
	n := w.Normalized()
	e.weights.Store(&n)
}

// Score computes the composite fitness of item at the given instant. The
// result is always within [0,1] for any valid item.
func (e *Engine) Score(item core.MemoryItem, now time.Time) float64 {
	w := e.weights.Load()

	age := now.Sub(item.LastAccessedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-float64(age) / float64(e.cfg.DecayConstant))

	count := float64(item.AccessCount)
	if count < 0 {
		count = 0
	}
	frequency := count / (count + e.cfg.SaturationConstant)

	importance := math.Min(1, math.Max(0, item.ImportanceScore))

	score := w.Recency*recency + w.Frequency*frequency + w.Importance*importance
	return math.Min(1, math.Max(0, score))
}
