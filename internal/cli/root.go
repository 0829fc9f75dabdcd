// Package cli implements the memmesh CLI commands.
//
// Every command opens the snapshot database, rebuilds the engine from the
// latest snapshot, performs its operation and writes a fresh snapshot, so
// state survives between invocations of the single binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/memmesh/backup"
	"github.com/hupe1980/memmesh/engine"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memmesh",
	Short: "Tiered memory consolidation for AI agents",
	Long:  "A CLI for a tiered agent memory engine. Short-term memories are promoted, pruned and archived by fitness score. SQLite-backed snapshots, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Snapshot database path (default: $MEMMESH_DB or ~/.memmesh/snapshots.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML engine configuration file")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MEMMESH_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memmesh", "snapshots.db")
}

func loadConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// openEngine rebuilds an engine from the latest stored snapshot. The caller
// must invoke the returned close function.
func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := backup.NewSQLiteSnapshotStore(getDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store: %w", err)
	}

	e, err := engine.New(engine.WithConfig(cfg), engine.WithSnapshotStore(store))
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	seq, err := e.LatestSnapshot()
	switch {
	case errors.Is(err, backup.ErrNoSnapshots):
		// Fresh database, start empty.
	case err != nil:
		store.Close()
		return nil, nil, err
	default:
		if _, err := e.Recover(ctx, seq); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	return e, func() { store.Close() }, nil
}

// persist writes a snapshot so the next invocation sees this command's
// mutations.
func persist(ctx context.Context, e *engine.Engine) {
	if _, err := e.Snapshot(ctx); err != nil {
		exitErr("snapshot", err)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
