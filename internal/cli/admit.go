package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "admit [content]",
		Short: "Admit a memory into short-term storage",
		Long:  "Admit a memory into short-term storage. Content can be a positional arg or piped via stdin.",
		Run:   runAdmit,
	}

	cmd.Flags().Float64P("importance", "i", 0.5, "Importance score in [0,1]")

	RootCmd.AddCommand(cmd)
}

func runAdmit(cmd *cobra.Command, args []string) {
	importance, _ := cmd.Flags().GetFloat64("importance")

	// Positional arg first, then check stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	if strings.TrimSpace(content) == "" {
		exitErr("admit", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	e, closeFn, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeFn()

	id, err := e.Admit(strings.TrimSpace(content), nil, importance)
	if err != nil {
		exitErr("admit", err)
	}
	persist(cmd.Context(), e)

	item, err := e.Get(id)
	if err != nil {
		exitErr("admit", err)
	}

	b, _ := json.Marshal(item)
	fmt.Println(string(b))
}
