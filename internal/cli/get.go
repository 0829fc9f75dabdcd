package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch a memory without touching it",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	item, err := e.Get(args[0])
	if err != nil {
		exitErr("get", err)
	}

	b, _ := json.MarshalIndent(item, "", "  ")
	fmt.Println(string(b))
}
