package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/memmesh/bus"
	"github.com/hupe1980/memmesh/internal/task"
	"github.com/hupe1980/memmesh/logging"
	"github.com/hupe1980/memmesh/memory"
)

// Config tunes snapshot scheduling and retention.
type Config struct {
	// Interval between periodic snapshots.
	Interval time.Duration `yaml:"interval"`

	// MaxSnapshots bounds retained snapshots by count; 0 disables count
	// pruning. The most recent snapshot is never pruned.
	MaxSnapshots int `yaml:"max_snapshots"`

	// MaxAge bounds retained snapshots by age; 0 disables age pruning. The
	// most recent snapshot is never pruned regardless of age.
	MaxAge time.Duration `yaml:"max_age"`
}

// DefaultConfig snapshots every fifteen minutes and keeps the last ten.
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Minute, MaxSnapshots: 10}
}

// Coordinator creates snapshots of the memory store and bus subscription
// table, prunes superseded snapshots, and restores engine state from a chosen
// snapshot with all-or-nothing semantics.
//
// Overlapping snapshot requests are serialized: only one snapshot is in
// flight at a time. A snapshot may interleave with store mutations, as it reads
// "as of a recent instant", not a strict linearization point.
type Coordinator struct {
	cfg    Config
	store  *memory.Store
	bus    *bus.Bus
	snaps  SnapshotStore
	logger logging.Logger
	loop   *task.Recurring

	mu  sync.Mutex // serializes Snapshot and Recover
	seq uint64     // last issued sequence number, under mu
}

// Option mutates coordinator construction settings.
type Option func(*Coordinator)

// WithLogger sets the structured logger (defaults to NoOp).
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNoOp(l) }
}

// NewCoordinator constructs a coordinator resuming sequence numbering after
// the highest snapshot already present in the store.
func NewCoordinator(cfg Config, store *memory.Store, b *bus.Bus, snaps SnapshotStore, opts ...Option) (*Coordinator, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	c := &Coordinator{
		cfg:    cfg,
		store:  store,
		bus:    b,
		snaps:  snaps,
		logger: logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	seqs, err := snaps.Sequences()
	if err != nil {
		return nil, fmt.Errorf("backup: list existing snapshots: %w", err)
	}
	if len(seqs) > 0 {
		c.seq = seqs[len(seqs)-1]
	}

	c.loop = task.NewRecurring("backup", cfg.Interval, func(ctx context.Context) error {
		_, err := c.Snapshot(ctx)
		return err
	}, c.logger)
	return c, nil
}

// Start launches periodic snapshotting.
func (c *Coordinator) Start(ctx context.Context) { c.loop.Start(ctx) }

// Stop halts periodic snapshotting, letting an in-flight snapshot finish.
func (c *Coordinator) Stop() { c.loop.Stop() }

// Snapshot captures the full item set (all tiers) and the bus subscription
// table, persists the serialized snapshot under the next sequence number and
// applies the retention policy. Returns the captured snapshot.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Sequence:      c.seq + 1,
		CreatedAt:     time.Now().UTC(),
		Items:         c.store.Export(),
		Subscriptions: c.bus.Table(),
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: encode snapshot: %w", err)
	}
	if err := c.snaps.Write(snap.Sequence, blob); err != nil {
		return Snapshot{}, fmt.Errorf("backup: persist snapshot: %w", err)
	}
	c.seq = snap.Sequence

	if err := c.pruneLocked(snap.CreatedAt); err != nil {
		// retention failure never invalidates the snapshot just written
		c.logger.Warn("snapshot retention pruning failed", "error", err)
	}

	c.logger.Info("snapshot created", "sequence", snap.Sequence, "items", len(snap.Items))
	return snap, nil
}

// Latest returns the highest stored sequence number, or core.ErrNotFound when
// no snapshot exists.
func (c *Coordinator) Latest() (uint64, error) {
	seqs, err := c.snaps.Sequences()
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, ErrNoSnapshots
	}
	return seqs[len(seqs)-1], nil
}

// Recover replaces the memory store's entire item set and the bus's
// subscription table with the contents of the stored snapshot, after a
// verification pass. All-or-nothing: any decode or verification failure
// returns a *RecoveryError and leaves the engine in its pre-recovery state.
func (c *Coordinator) Recover(ctx context.Context, sequence uint64) (RecoveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RecoveryReport{}, err
	}

	blob, err := c.snaps.Read(sequence)
	if err != nil {
		return RecoveryReport{}, &RecoveryError{Sequence: sequence, Reason: "snapshot unreadable", Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return RecoveryReport{}, &RecoveryError{Sequence: sequence, Reason: "snapshot undecodable", Err: err}
	}
	if snap.Sequence != sequence {
		return RecoveryReport{}, &RecoveryError{Sequence: sequence, Reason: fmt.Sprintf("blob carries sequence %d", snap.Sequence)}
	}
	if err := snap.Verify(); err != nil {
		return RecoveryReport{}, &RecoveryError{Sequence: sequence, Reason: "verification failed", Err: err}
	}

	// verification passed; swap both states
	c.store.Replace(snap.Items)
	c.bus.RestoreTable(snap.Subscriptions)

	if got := c.store.Stats().Total(); got != len(snap.Items) {
		// should be unreachable given Verify's unique-id check
		return RecoveryReport{}, &RecoveryError{Sequence: sequence, Reason: fmt.Sprintf("post-restore count %d != snapshot count %d", got, len(snap.Items))}
	}

	report := RecoveryReport{
		ID:            uuid.NewString(),
		Sequence:      sequence,
		Items:         len(snap.Items),
		Subscriptions: len(snap.Subscriptions),
		RecoveredAt:   time.Now().UTC(),
	}
	c.logger.Info("recovery completed", "sequence", sequence, "items", report.Items)
	return report, nil
}

// pruneLocked applies count and age retention, oldest first, never touching
// the most recent snapshot. Caller must hold c.mu.
func (c *Coordinator) pruneLocked(now time.Time) error {
	seqs, err := c.snaps.Sequences()
	if err != nil {
		return err
	}
	if len(seqs) <= 1 {
		return nil
	}
	prunable := seqs[:len(seqs)-1] // newest is exempt

	drop := make(map[uint64]struct{})
	if c.cfg.MaxSnapshots > 0 && len(seqs) > c.cfg.MaxSnapshots {
		for _, seq := range prunable[:len(seqs)-c.cfg.MaxSnapshots] {
			drop[seq] = struct{}{}
		}
	}
	if c.cfg.MaxAge > 0 {
		for _, seq := range prunable {
			if _, gone := drop[seq]; gone {
				continue
			}
			blob, err := c.snaps.Read(seq)
			if err != nil {
				continue
			}
			var snap Snapshot
			if err := json.Unmarshal(blob, &snap); err != nil {
				continue
			}
			if now.Sub(snap.CreatedAt) > c.cfg.MaxAge {
				drop[seq] = struct{}{}
			}
		}
	}

	for seq := range drop {
		if err := c.snaps.Delete(seq); err != nil {
			return err
		}
		c.logger.Debug("pruned superseded snapshot", "sequence", seq)
	}
	return nil
}
