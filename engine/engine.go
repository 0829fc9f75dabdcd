package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/memmesh/backup"
	"github.com/hupe1980/memmesh/bus"
	"github.com/hupe1980/memmesh/consolidation"
	"github.com/hupe1980/memmesh/core"
	"github.com/hupe1980/memmesh/feedback"
	"github.com/hupe1980/memmesh/fitness"
	"github.com/hupe1980/memmesh/logging"
	"github.com/hupe1980/memmesh/memory"
	"github.com/hupe1980/memmesh/model"
)

// Config aggregates the per-component configuration of one engine instance.
// There is no process-wide configuration state: everything is passed here at
// construction.
type Config struct {
	Memory        memory.Config        `yaml:"memory"`
	Fitness       fitness.Config       `yaml:"fitness"`
	Consolidation consolidation.Config `yaml:"consolidation"`
	Backup        backup.Config        `yaml:"backup"`
	Feedback      feedback.Config      `yaml:"feedback"`

	// ImportanceRole frames the completion used to rate an input's
	// importance when a Completer is configured.
	ImportanceRole string `yaml:"importance_role"`
	// ImportanceTemperature and ImportanceMaxTokens tune that completion.
	ImportanceTemperature float64 `yaml:"importance_temperature"`
	ImportanceMaxTokens   int64   `yaml:"importance_max_tokens"`
}

// DefaultConfig combines every component's defaults.
func DefaultConfig() Config {
	return Config{
		Memory:                memory.DefaultConfig(),
		Fitness:               fitness.DefaultConfig(),
		Consolidation:         consolidation.DefaultConfig(),
		Backup:                backup.DefaultConfig(),
		Feedback:              feedback.DefaultConfig(),
		ImportanceRole:        "You are a memory management specialist. Rate the long-term importance of the given content for a multi-agent system. Respond with a single number between 0 and 1.",
		ImportanceTemperature: 0.3,
		ImportanceMaxTokens:   16,
	}
}

// defaultImportance is admitted when no Completer is configured or the
// completion text cannot be parsed as a score.
const defaultImportance = 0.5

// Options configures an Engine instance using the functional options
// pattern. All services have in-memory defaults.
type Options struct {
	// Config contains per-component parameters. Defaults to DefaultConfig.
	Config Config

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger

	// Completer rates admission importance when set. Optional; without one
	// every ProcessInput admission uses the default importance.
	Completer model.Completer

	// SnapshotStore receives backup blobs. Defaults to the in-memory store.
	SnapshotStore backup.SnapshotStore
}

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithCompleter sets the completion client used for importance assessment.
func WithCompleter(c model.Completer) func(o *Options) {
	return func(o *Options) { o.Completer = c }
}

// WithSnapshotStore sets the durable snapshot backend.
func WithSnapshotStore(s backup.SnapshotStore) func(o *Options) {
	return func(o *Options) { o.SnapshotStore = s }
}

// Engine is the assembled tiered memory engine. Producers admit and touch
// memories concurrently while the consolidation and backup loops run on
// their own timers; the knowledge bus propagates accepted memories and cycle
// results to subscribers.
type Engine struct {
	cfg       Config
	store     *memory.Store
	fitness   *fitness.Engine
	bus       *bus.Bus
	scheduler *consolidation.Scheduler
	backup    *backup.Coordinator
	feedback  *feedback.Controller
	completer model.Completer
	logger    logging.Logger

	mu      sync.Mutex
	started bool
}

// New assembles an engine. The only construction failure mode is an invalid
// configuration (threshold invariant, malformed intervals).
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config:        DefaultConfig(),
		Logger:        logging.NoOpLogger{},
		SnapshotStore: backup.NewInMemorySnapshotStore(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	fit := fitness.NewEngine(opts.Config.Fitness)
	store := memory.NewStore(opts.Config.Memory, fit, memory.WithLogger(logger))
	b := bus.New(logger)

	scheduler, err := consolidation.NewScheduler(opts.Config.Consolidation, store, b, consolidation.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	coordinator, err := backup.NewCoordinator(opts.Config.Backup, store, b, opts.SnapshotStore, backup.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	fb := feedback.NewController(opts.Config.Feedback, fit, logger)
	b.Subscribe(bus.TopicFeedback, fb)

	return &Engine{
		cfg:       opts.Config,
		store:     store,
		fitness:   fit,
		bus:       b,
		scheduler: scheduler,
		backup:    coordinator,
		feedback:  fb,
		completer: opts.Completer,
		logger:    logger,
	}, nil
}

// Start launches the consolidation and backup loops. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.scheduler.Start(ctx)
	e.backup.Start(ctx)
	e.started = true
	e.logger.Info("memory engine started")
}

// Stop halts both background loops, letting in-flight cycles finish their
// current atomic step. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.scheduler.Stop()
	e.backup.Stop()
	e.started = false
	e.logger.Info("memory engine stopped")
}

// ProcessInput admits new content into short-term memory. When a Completer
// is configured it is asked to rate the content's importance first; a failed
// completion propagates as *model.CompletionError to the calling agent layer
// (never retried here), while an unparseable rating falls back to the
// default importance.
func (e *Engine) ProcessInput(ctx context.Context, content string) (string, error) {
	importance := defaultImportance
	if e.completer != nil {
		text, err := e.completer.Complete(ctx, model.Request{
			Prompt:      content,
			Role:        e.cfg.ImportanceRole,
			Temperature: e.cfg.ImportanceTemperature,
			MaxTokens:   e.cfg.ImportanceMaxTokens,
		})
		if err != nil {
			return "", err
		}
		if parsed, ok := parseImportance(text); ok {
			importance = parsed
		} else {
			e.logger.Warn("importance rating unparseable, using default", "response", text)
		}
	}
	return e.store.Admit(content, nil, importance)
}

// Admit stores content with an explicitly supplied importance, bypassing the
// completion client.
func (e *Engine) Admit(content string, embedding []byte, importance float64) (string, error) {
	return e.store.Admit(content, embedding, importance)
}

// Touch records a use of the item and returns its current state.
func (e *Engine) Touch(id string) (core.MemoryItem, error) { return e.store.Touch(id) }

// Get returns the item in any tier.
func (e *Engine) Get(id string) (core.MemoryItem, error) { return e.store.Get(id) }

// Link records a symmetric connection between two live items.
func (e *Engine) Link(a, b string) error { return e.store.Link(a, b) }

// Stats returns per-tier item counts.
func (e *Engine) Stats() core.Stats { return e.store.Stats() }

// Consolidate runs one consolidation cycle immediately, outside the
// periodic schedule.
func (e *Engine) Consolidate(ctx context.Context) (core.ConsolidationResult, error) {
	return e.scheduler.RunCycle(ctx)
}

// Snapshot captures a backup immediately, outside the periodic schedule.
func (e *Engine) Snapshot(ctx context.Context) (backup.Snapshot, error) {
	return e.backup.Snapshot(ctx)
}

// Recover restores engine state from the stored snapshot.
func (e *Engine) Recover(ctx context.Context, sequence uint64) (backup.RecoveryReport, error) {
	return e.backup.Recover(ctx, sequence)
}

// LatestSnapshot returns the highest stored snapshot sequence.
func (e *Engine) LatestSnapshot() (uint64, error) { return e.backup.Latest() }

// Bus exposes the knowledge sharing bus for subscriber registration and
// agent-driven publishing.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Feedback exposes the feedback controller for direct (non-bus) records.
func (e *Engine) Feedback() *feedback.Controller { return e.feedback }

// Weights returns the current fitness weight vector.
func (e *Engine) Weights() fitness.Weights { return e.fitness.Weights() }

// parseImportance extracts a [0,1] score from a completion. Accepts a bare
// number or a number embedded in surrounding prose.
func parseImportance(text string) (float64, bool) {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r != '.' && r != '-' && (r < '0' || r > '9')
	}) {
		v, err := strconv.ParseFloat(strings.Trim(field, ".-"), 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		return v, true
	}
	return 0, false
}
