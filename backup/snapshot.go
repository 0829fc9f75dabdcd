// Package backup implements periodic snapshotting of the memory engine's
// state and the explicit recovery path that restores it. A snapshot is an
// immutable, full (never incremental) copy of all memory items across all
// tiers plus the knowledge bus's subscription table, tagged with a strictly
// increasing sequence number.
//
// Snapshot blobs are the coordinator's concern; the storage medium is not.
// SnapshotStore implementations only move opaque bytes keyed by sequence
// number: an in-memory store for tests and a SQLite-backed store for
// durability ship with this package.
package backup

import (
	"fmt"
	"time"

	"github.com/hupe1980/memmesh/core"
)

// Snapshot is a point-in-time copy of engine state. Never mutated after
// creation; superseded snapshots are pruned by retention policy, not edited.
type Snapshot struct {
	Sequence      uint64              `json:"sequence"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []core.MemoryItem   `json:"items"`
	Subscriptions map[string][]string `json:"subscriptions,omitempty"`
}

// Verify checks the snapshot's internal consistency: unique item ids (an id
// appearing twice would put one item in two tiers), no connection referencing
// an id outside the item set, and sane per-item timestamps.
func (s *Snapshot) Verify() error {
	seen := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		if item.ID == "" {
			return fmt.Errorf("snapshot %d: item with empty id", s.Sequence)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("snapshot %d: item %q present in two tiers", s.Sequence, item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.LastAccessedAt.Before(item.CreatedAt) {
			return fmt.Errorf("snapshot %d: item %q accessed before creation", s.Sequence, item.ID)
		}
		if item.AccessCount < 0 {
			return fmt.Errorf("snapshot %d: item %q has negative access count", s.Sequence, item.ID)
		}
	}
	for _, item := range s.Items {
		for connected := range item.Connections {
			if _, ok := seen[connected]; !ok {
				return fmt.Errorf("snapshot %d: item %q references missing item %q", s.Sequence, item.ID, connected)
			}
		}
	}
	return nil
}

// SnapshotStore is the durable storage boundary for snapshot blobs.
type SnapshotStore interface {
	// Write persists a blob under the sequence number.
	Write(sequence uint64, blob []byte) error
	// Read returns the blob stored under the sequence number, or
	// core.ErrNotFound.
	Read(sequence uint64) ([]byte, error)
	// Sequences lists all stored sequence numbers in ascending order.
	Sequences() ([]uint64, error)
	// Delete removes the blob stored under the sequence number. Deleting an
	// unknown sequence is a no-op.
	Delete(sequence uint64) error
	// Close releases underlying resources.
	Close() error
}

// RecoveryError reports a failed recovery attempt. The engine is guaranteed
// to remain in its pre-recovery state when one is returned.
type RecoveryError struct {
	Sequence uint64
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *RecoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recovery from snapshot %d failed: %s: %v", e.Sequence, e.Reason, e.Err)
	}
	return fmt.Sprintf("recovery from snapshot %d failed: %s", e.Sequence, e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *RecoveryError) Unwrap() error { return e.Err }

// RecoveryReport summarizes a successful recovery.
type RecoveryReport struct {
	ID            string    `json:"id"`
	Sequence      uint64    `json:"sequence"`
	Items         int       `json:"items"`
	Subscriptions int       `json:"subscriptions"`
	RecoveredAt   time.Time `json:"recovered_at"`
}

// ErrNoSnapshots is returned by Coordinator.Latest when the snapshot store
// is empty.
var ErrNoSnapshots = fmt.Errorf("no snapshots available")
