package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/profile"
	"github.com/roach88/simbridge/internal/sim"
	"github.com/roach88/simbridge/internal/store"
)

// lineReader is the part of *readline.Instance the console uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// ConsoleOptions holds flags for the console command.
type ConsoleOptions struct {
	*RootOptions
	Sim     bool
	Journal string

	// NewReader allows overriding the line editor (for testing).
	// If nil, a readline instance on the terminal is used.
	NewReader func(cmd *cobra.Command) (lineReader, error)

	// SessionGenerator allows overriding journal session IDs (for testing).
	SessionGenerator store.SessionGenerator
}

// NewConsoleCommand creates the console command.
func NewConsoleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConsoleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Type tokens by hand",
		Long: `Interactive console standing in for the cockpit hardware.

Each line is a primary-stream token; prefix a line with "2:" to send it on the
secondary stream. Without --sim, events go to an in-memory simulator whose
autopilot modes you set with :set.

Commands:
  :set vs|flc|spd|mach on|off   set an autopilot mode flag
  :set <var> <value>            set any telemetry variable (e.g. heading_indicator 3.14159)
  :state                        show the dispatch state
  :help                         show this help
  :quit                         leave

Example:
  simbridge console
  simbridge console --sim --journal ./bench.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Sim, "sim", false, "dispatch to the simulator gateway instead of the in-memory recorder")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record dispatches to this SQLite database")

	return cmd
}

// flagVars maps :set shorthands to mode-flag variables.
var flagVars = map[string]model.Var{
	"vs":   model.VarVerticalSpeedActive,
	"flc":  model.VarFlightLevelChangeActive,
	"spd":  model.VarAutothrottleSpeedActive,
	"mach": model.VarAutothrottleMachActive,
}

// console is one interactive session.
type console struct {
	out       io.Writer
	format    *OutputFormatter
	primary   *engine.TokenQueue
	secondary *engine.TokenQueue
	d         *engine.Dispatcher
	recorder  *sim.Recorder // nil when dispatching to the gateway
	profile   *profile.Profile
}

func runConsole(opts *ConsoleOptions, cmd *cobra.Command) error {
	env, err := prepare(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()
	cfg := env.cfg

	crs, err := cfg.CRS()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid CRS selector", err)
	}

	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	c := &console{
		out:       cmd.OutOrStdout(),
		format:    opts.formatter(cmd),
		primary:   engine.NewTokenQueue(),
		secondary: engine.NewTokenQueue(),
		profile:   env.profile,
	}

	var simulator sim.Simulator
	refresh := cfg.Dispatch.RefreshInterval
	if opts.Sim {
		simulator, err = connectSimulator(ctx, cancel, false, cfg, nil)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to simulator", err)
		}
	} else {
		c.recorder = sim.NewRecorder(env.profile.EventNames()...)
		simulator = c.recorder
		// Typed :set changes should be visible on the next token.
		refresh = time.Nanosecond
	}

	dispatchOpts := append([]engine.Option{
		engine.WithRefreshInterval(refresh),
		engine.WithCRSSelector(crs),
	}, newDispatchTables(cfg.Dispatch.AltitudeCoarseRepeat).options()...)
	if opts.Journal != "" {
		st, j, err := openJournal(ctx, opts.SessionGenerator, opts.Journal, cfg, env.profile.Name, "console")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer closeJournal(st, j)
		dispatchOpts = append(dispatchOpts, engine.WithObserver(j))
	}
	c.d = engine.New(c.primary, c.secondary, sim.NewActionSink(simulator, env.profile, cfg.Sim.QueryTimeout), dispatchOpts...)

	newReader := opts.NewReader
	if newReader == nil {
		newReader = newTerminalReader
	}
	rl, err := newReader(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start console", err)
	}
	defer rl.Close()

	fmt.Fprintf(c.out, "simbridge console (profile %s, CRS %s). Type :help for commands.\n", env.profile.Name, crs)
	return c.loop(ctx, rl)
}

func newTerminalReader(cmd *cobra.Command) (lineReader, error) {
	history := ""
	if dir, err := os.UserCacheDir(); err == nil {
		history = filepath.Join(dir, "simbridge_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "simbridge> ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return rl, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loop reads lines until :quit, EOF, or ctx ends.
func (c *console) loop(ctx context.Context, rl lineReader) error {
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return WrapExitError(ExitFailure, "console input failed", err)
		}

		if quit := c.handle(ctx, line); quit {
			return nil
		}
	}
	return nil
}

// handle runs one console line and reports whether the session should end.
func (c *console) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case strings.HasPrefix(trimmed, ":"):
		return c.command(strings.Fields(trimmed[1:]))
	}

	q, tok := c.primary, model.NewToken(line)
	if rest, ok := strings.CutPrefix(line, "2:"); ok {
		q, tok = c.secondary, model.NewToken(rest)
	} else if rest, ok := strings.CutPrefix(line, "1:"); ok {
		tok = model.NewToken(rest)
	}
	q.Enqueue(tok)
	c.drain(ctx)
	return false
}

// drain runs cycles until both queues are empty and prints each record.
func (c *console) drain(ctx context.Context) {
	before := 0
	if c.recorder != nil {
		before = len(c.recorder.Invocations())
	}

	var views []RecordView
	for {
		rec, ok := c.d.Cycle(ctx)
		if !ok {
			break
		}
		views = append(views, viewRecord(rec))
	}

	var events []string
	if c.recorder != nil {
		for _, inv := range c.recorder.Invocations()[before:] {
			events = append(events, inv.String())
		}
	}

	data := map[string]any{"records": views}
	if events != nil {
		data["events"] = events
	}
	err := c.format.Emit(data, func(w io.Writer) error {
		for _, v := range views {
			fmt.Fprintln(w, v.String())
		}
		if len(events) > 0 {
			fmt.Fprintf(w, "  sim: %s\n", collapse(events))
		}
		return nil
	})
	if err != nil {
		slog.Error("console output failed", "error", err)
	}
}

// collapse renders runs of identical events as "EVENT xN".
func collapse(events []string) string {
	var parts []string
	for i := 0; i < len(events); {
		j := i
		for j < len(events) && events[j] == events[i] {
			j++
		}
		if n := j - i; n > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", events[i], n))
		} else {
			parts = append(parts, events[i])
		}
		i = j
	}
	return strings.Join(parts, ", ")
}

// command runs a ":" command.
func (c *console) command(fields []string) bool {
	if len(fields) == 0 {
		fields = []string{"help"}
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "state":
		c.printState()
	case "set":
		if err := c.set(fields[1:]); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	default:
		fmt.Fprintln(c.out, "commands: :set vs|flc|spd|mach on|off, :set <var> <value>, :state, :quit")
		fmt.Fprintln(c.out, "tokens:   alt+ alt- alt_sync hdg+ ... (prefix 2: for the mode switch, e.g. 2:1000)")
	}
	return false
}

func (c *console) set(args []string) error {
	if c.recorder == nil {
		return errors.New(":set needs the in-memory simulator (run without --sim)")
	}
	if len(args) != 2 {
		return errors.New("usage: :set <name> <value>")
	}

	v, ok := flagVars[args[0]]
	if !ok {
		v = model.Var(args[0])
	}
	name, ok := c.profile.Var(v)
	if !ok {
		return fmt.Errorf("unknown variable %q", args[0])
	}

	var value float64
	switch strings.ToLower(args[1]) {
	case "on", "true":
		value = 1
	case "off", "false":
		value = 0
	default:
		f, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[1])
		}
		value = f
	}

	c.recorder.SetValue(name, value)
	fmt.Fprintf(c.out, "%s (%s) = %g\n", v, name, value)
	return nil
}

func (c *console) printState() {
	st := c.d.State()
	step := "100"
	if st.AltitudeStepIsThousand {
		step = "1000"
	}

	flags := map[string]bool{
		"vs":   st.VerticalSpeedActive,
		"flc":  st.FlightLevelChangeActive,
		"spd":  st.AutothrottleSpeedActive,
		"mach": st.AutothrottleMachActive,
	}
	var on []string
	for name, active := range flags {
		if active {
			on = append(on, name)
		}
	}
	sort.Strings(on)
	if len(on) == 0 {
		on = []string{"none"}
	}

	fmt.Fprintf(c.out, "altitude step: %s ft, crs: %s, modes: %s\n", step, st.CRS, strings.Join(on, " "))
}
