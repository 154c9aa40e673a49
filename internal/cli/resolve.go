package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Stream   string
	VS       bool
	FLC      bool
	Speed    bool
	Mach     bool
	Thousand bool
	CRS      string
	Coarse   int
}

// Resolution is the JSON shape of a resolve result.
type Resolution struct {
	Token    string `json:"token"`
	Stream   string `json:"stream"`
	Outcome  string `json:"outcome"`
	Guard    string `json:"guard,omitempty"`
	Action   string `json:"action,omitempty"`
	Repeat   int    `json:"repeat,omitempty"`
	Value    string `json:"value,omitempty"`
	Thousand *bool  `json:"altitude_step_thousand,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <token>",
		Short: "Show what a token would do in a given autopilot state",
		Long: `Resolves a token against the command table without touching the
simulator. Mode flags describe the state to resolve in.

Example:
  simbridge resolve alt+ --thousand
  simbridge resolve vs+ --flc
  simbridge resolve crs_sync --crs vor2
  simbridge resolve 1000 --stream secondary`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Stream, "stream", "primary", "input stream (primary|secondary)")
	cmd.Flags().BoolVar(&opts.VS, "vs", false, "vertical speed mode active")
	cmd.Flags().BoolVar(&opts.FLC, "flc", false, "flight level change mode active")
	cmd.Flags().BoolVar(&opts.Speed, "spd", false, "autothrottle speed mode active")
	cmd.Flags().BoolVar(&opts.Mach, "mach", false, "autothrottle mach mode active")
	cmd.Flags().BoolVar(&opts.Thousand, "thousand", false, "altitude step set to 1000 ft")
	cmd.Flags().StringVar(&opts.CRS, "crs", "vor1", "course knob target (vor1|vor2)")
	cmd.Flags().IntVar(&opts.Coarse, "coarse", engine.DefaultCoarseRepeat, "fine steps per coarse altitude step")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command, line string) error {
	formatter := opts.formatter(cmd)

	stream, ok := model.ParseStream(opts.Stream)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid stream %q (want primary or secondary)", opts.Stream))
	}
	crs, err := model.ParseCRSSelector(opts.CRS)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid CRS selector", err)
	}

	st := model.State{
		Flags: model.Flags{
			VerticalSpeedActive:     opts.VS,
			FlightLevelChangeActive: opts.FLC,
			AutothrottleSpeedActive: opts.Speed,
			AutothrottleMachActive:  opts.Mach,
		},
		AltitudeStepIsThousand: opts.Thousand,
		CRS:                    crs,
	}
	tables := newDispatchTables(opts.Coarse)
	res := resolveToken(tables.commands, tables.modes, stream, model.NewToken(line), st)

	return formatter.Emit(res, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, res.String())
		return err
	})
}

// resolveToken mirrors the dispatcher's decision for one token in st.
func resolveToken(commands engine.CommandTable, modes engine.ModeSelectTable, stream model.Stream, tok model.Token, st model.State) Resolution {
	res := Resolution{Token: string(tok), Stream: stream.String()}

	if stream == model.Secondary {
		thousand, ok := modes[tok]
		if !ok {
			res.Outcome = string(engine.OutcomeIgnored)
			return res
		}
		res.Outcome = string(engine.OutcomeModeSelect)
		res.Thousand = &thousand
		return res
	}

	entry, ok := commands.Lookup(tok)
	if !ok {
		res.Outcome = string(engine.OutcomeUnmatched)
		return res
	}
	b, ok := entry.Select(st)
	if !ok {
		res.Outcome = string(engine.OutcomePassthrough)
		return res
	}
	res.Outcome = string(engine.OutcomeDispatched)
	res.Guard = b.When.Name
	res.Action = string(b.Action)
	res.Repeat = b.Count()
	res.Value = b.Value.String()
	return res
}

// String renders the resolution for text output.
func (r Resolution) String() string {
	switch {
	case r.Thousand != nil:
		step := 100
		if *r.Thousand {
			step = 1000
		}
		return fmt.Sprintf("%q (%s) -> %s: altitude step %d ft", r.Token, r.Stream, r.Outcome, step)
	case r.Action != "":
		return fmt.Sprintf("%q (%s) -> %s x%d [%s] value %s", r.Token, r.Stream, r.Action, r.Repeat, r.Guard, r.Value)
	default:
		return fmt.Sprintf("%q (%s) -> %s", r.Token, r.Stream, r.Outcome)
	}
}
