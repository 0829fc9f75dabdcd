package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "touch [id]",
		Short: "Record a use of a memory",
		Long:  "Record a use of a memory, refreshing its recency and frequency signals.",
		Args:  cobra.ExactArgs(1),
		Run:   runTouch,
	}

	RootCmd.AddCommand(cmd)
}

func runTouch(cmd *cobra.Command, args []string) {
	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	item, err := e.Touch(args[0])
	if err != nil {
		exitErr("touch", err)
	}
	persist(cmd.Context(), e)

	b, _ := json.Marshal(item)
	fmt.Println(string(b))
}
