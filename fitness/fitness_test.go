package fitness

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/memmesh/core"
)

func testItem(importance float64, accessCount int, lastAccess time.Time) core.MemoryItem {
	return core.MemoryItem{
		ID:              core.NewID(),
		Content:         "test",
		CreatedAt:       lastAccess,
		LastAccessedAt:  lastAccess,
		AccessCount:     accessCount,
		ImportanceScore: importance,
		Tier:            core.TierSTM,
	}
}

func TestEngine_ScoreBounds(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := time.Now()
	cases := []core.MemoryItem{
		testItem(0, 0, now.Add(-100*time.Hour)),
		testItem(1, 1000000, now),
		testItem(0.5, 3, now.Add(-30*time.Minute)),
		testItem(1, 1, now.Add(time.Minute)), // future access clock skew
	}
	for _, item := range cases {
		s := e.Score(item, now)
		if s < 0 || s > 1 {
			t.Fatalf("score %f out of [0,1] for item %+v", s, item)
		}
	}
}

func TestEngine_RecencyDecays(t *testing.T) {
	e := NewEngine(Config{DecayConstant: time.Hour, SaturationConstant: 5})
	e.SetWeights(Weights{Recency: 1}) // isolate recency
	now := time.Now()

	fresh := e.Score(testItem(0.5, 1, now), now)
	stale := e.Score(testItem(0.5, 1, now.Add(-2*time.Hour)), now)
	if stale >= fresh {
		t.Fatalf("expected stale score %f < fresh score %f", stale, fresh)
	}
	if stale <= 0 {
		t.Fatalf("recency must stay positive, got %f", stale)
	}
}

func TestEngine_FrequencySaturates(t *testing.T) {
	e := NewEngine(Config{DecayConstant: time.Hour, SaturationConstant: 5})
	e.SetWeights(Weights{Frequency: 1})
	now := time.Now()

	low := e.Score(testItem(0.5, 1, now), now)
	mid := e.Score(testItem(0.5, 5, now), now)
	high := e.Score(testItem(0.5, 100000, now), now)
	if !(low < mid && mid < high) {
		t.Fatalf("frequency must be monotone: %f %f %f", low, mid, high)
	}
	if math.Abs(mid-0.5) > 1e-9 {
		t.Fatalf("saturation constant accesses should score 0.5, got %f", mid)
	}
	if high > 1 {
		t.Fatalf("frequency must stay bounded, got %f", high)
	}
}

func TestWeights_Normalized(t *testing.T) {
	w := Weights{Recency: 2, Frequency: 1, Importance: 1}.Normalized()
	sum := w.Recency + w.Frequency + w.Importance
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("normalized weights must sum to 1, got %f", sum)
	}
	if w.Recency != 0.5 {
		t.Fatalf("expected recency 0.5, got %f", w.Recency)
	}

	// negative components are clamped before scaling
	w = Weights{Recency: -1, Frequency: 1, Importance: 1}.Normalized()
	if w.Recency != 0 || w.Frequency != 0.5 {
		t.Fatalf("unexpected clamped normalization: %+v", w)
	}

	// degenerate vector falls back to defaults instead of dividing by zero
	w = Weights{}.Normalized()
	if w != DefaultWeights() {
		t.Fatalf("zero vector should normalize to defaults, got %+v", w)
	}
}

func TestEngine_SetWeightsNormalizes(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.SetWeights(Weights{Recency: 3, Frequency: 3, Importance: 3})
	w := e.Weights()
	sum := w.Recency + w.Frequency + w.Importance
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("stored weights must sum to 1, got %f", sum)
	}
}

func TestEngine_ConcurrentWeightSwap(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := time.Now()
	item := testItem(0.7, 3, now)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			e.SetWeights(Weights{Recency: float64(i%3 + 1), Frequency: 1, Importance: 1})
		}
	}()

	for i := 0; i < 1000; i++ {
		s := e.Score(item, now)
		if s < 0 || s > 1 {
			t.Errorf("score out of bounds under concurrent swap: %f", s)
			break
		}
		w := e.Weights()
		sum := w.Recency + w.Frequency + w.Importance
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("observed partially-updated weights: %+v", w)
			break
		}
	}
	close(stop)
	wg.Wait()
}
