package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "restore [sequence]",
		Short: "Restore engine state from a snapshot",
		Long:  "Restore engine state from a snapshot. Defaults to the latest sequence. Restoring is all-or-nothing: a corrupt snapshot leaves state untouched.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRestore,
	}

	RootCmd.AddCommand(cmd)
}

func runRestore(cmd *cobra.Command, args []string) {
	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	seq, err := e.LatestSnapshot()
	if err != nil {
		exitErr("restore", err)
	}
	if len(args) > 0 {
		seq, err = strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			exitErr("restore", fmt.Errorf("invalid sequence %q: %w", args[0], err))
		}
	}

	report, err := e.Recover(cmd.Context(), seq)
	if err != nil {
		exitErr("restore", err)
	}
	persist(cmd.Context(), e)

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
