package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/memmesh/backup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a snapshot or list stored sequences",
		Run:   runSnapshot,
	}

	cmd.Flags().BoolP("list", "l", false, "List stored snapshot sequences instead of capturing")

	RootCmd.AddCommand(cmd)
}

func runSnapshot(cmd *cobra.Command, args []string) {
	list, _ := cmd.Flags().GetBool("list")

	if list {
		store, err := backup.NewSQLiteSnapshotStore(getDBPath())
		if err != nil {
			exitErr("open snapshot store", err)
		}
		defer store.Close()

		seqs, err := store.Sequences()
		if err != nil {
			exitErr("list snapshots", err)
		}
		b, _ := json.Marshal(seqs)
		fmt.Println(string(b))
		return
	}

	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	snap, err := e.Snapshot(cmd.Context())
	if err != nil {
		exitErr("snapshot", err)
	}

	fmt.Printf("snapshot %d (%d items)\n", snap.Sequence, len(snap.Items))
}
