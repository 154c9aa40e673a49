package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/engine"
)

// TableOptions holds flags for the table command.
type TableOptions struct {
	*RootOptions
	Coarse int
}

// TableRow is the JSON shape of one command-table branch.
type TableRow struct {
	Token  string `json:"token"`
	Guard  string `json:"guard"`
	Action string `json:"action"`
	Repeat int    `json:"repeat"`
	Value  string `json:"value"`
}

// NewTableCommand creates the table command.
func NewTableCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TableOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "table",
		Short: "List the command table",
		Long: `Lists every primary-stream token with its guarded branches in
evaluation order: token | guard | action | repeat | value.

Example:
  simbridge table
  simbridge table --coarse 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTable(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Coarse, "coarse", engine.DefaultCoarseRepeat, "fine steps per coarse altitude step")

	return cmd
}

func runTable(opts *TableOptions, cmd *cobra.Command) error {
	if opts.Coarse < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --coarse %d: must be at least 1", opts.Coarse))
	}
	table := newDispatchTables(opts.Coarse).commands

	var rows []TableRow
	for _, tok := range table.Tokens() {
		for _, b := range table[tok] {
			rows = append(rows, TableRow{
				Token:  string(tok),
				Guard:  b.When.Name,
				Action: string(b.Action),
				Repeat: b.Count(),
				Value:  b.Value.String(),
			})
		}
	}

	return opts.formatter(cmd).Emit(rows, func(w io.Writer) error {
		return table.Render(w)
	})
}
