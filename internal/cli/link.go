package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link [id-a] [id-b]",
		Short: "Connect two memories",
		Long:  "Connect two memories symmetrically. Connections survive promotion and are severed on archival.",
		Args:  cobra.ExactArgs(2),
		Run:   runLink,
	}

	RootCmd.AddCommand(cmd)
}

func runLink(cmd *cobra.Command, args []string) {
	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	if err := e.Link(args[0], args[1]); err != nil {
		exitErr("link", err)
	}
	persist(cmd.Context(), e)

	fmt.Printf("linked %s <-> %s\n", args[0], args[1])
}
