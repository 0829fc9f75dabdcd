package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation cycle",
		Long:  "Run one consolidation cycle: promote fit short-term memories, enforce the capacity ceiling and prune weak long-term memories.",
		Run:   runConsolidate,
	}

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	result, err := e.Consolidate(cmd.Context())
	if err != nil {
		exitErr("consolidate", err)
	}
	persist(cmd.Context(), e)

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
