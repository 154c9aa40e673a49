package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/config"
	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/linesource"
	"github.com/roach88/simbridge/internal/sim"
	"github.com/roach88/simbridge/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DryRun  bool
	Journal string

	// OpenPort allows overriding how serial channels are opened (for testing).
	// If nil, ports are opened with linesource.OpenSerial.
	OpenPort func(name string, port config.PortConfig) (io.ReadCloser, error)

	// SessionGenerator allows overriding journal session IDs (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	SessionGenerator store.SessionGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bridge",
		Long: `Start the bridge: open both serial links, wait for the simulator,
and dispatch tokens until interrupted.

With --dry-run no simulator is contacted; events are logged by an in-memory
recorder instead. With --journal every dispatch is recorded to SQLite.

Example:
  simbridge run
  simbridge run --config cockpit.yaml --journal ./dispatch.db
  simbridge run --dry-run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log events instead of sending them to the simulator")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record dispatches to this SQLite database (overrides journal.path)")

	return cmd
}

func runBridge(opts *RunOptions, cmd *cobra.Command) error {
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

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Serial links first: a missing port is a startup failure.
	openPort := opts.OpenPort
	if openPort == nil {
		openPort = openSerial
	}
	primaryPort, err := openPort("primary", cfg.Serial.Primary)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open primary serial port", err)
	}
	secondaryPort, err := openPort("secondary", cfg.Serial.Secondary)
	if err != nil {
		primaryPort.Close()
		return WrapExitError(ExitCommandError, "failed to open secondary serial port", err)
	}

	simulator, err := connectSimulator(ctx, cancel, opts.DryRun, cfg, env.profile.EventNames())
	if err != nil {
		primaryPort.Close()
		secondaryPort.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return WrapExitError(ExitFailure, "failed to connect to simulator", err)
	}
	sink := sim.NewActionSink(simulator, env.profile, cfg.Sim.QueryTimeout)

	var dispatched atomic.Int64
	observer := engine.ObserverFunc(func(rec engine.Record) {
		dispatched.Add(1)
		slog.Debug("dispatch", "record", viewRecord(rec).String())
	})

	journalPath := cfg.Journal.Path
	if opts.Journal != "" {
		journalPath = opts.Journal
	}
	if journalPath != "" {
		st, j, err := openJournal(ctx, opts.SessionGenerator, journalPath, cfg, env.profile.Name, "serial")
		if err != nil {
			primaryPort.Close()
			secondaryPort.Close()
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer closeJournal(st, j)
		count := observer
		observer = func(rec engine.Record) {
			count(rec)
			j.Observe(rec)
		}
	}

	primary, secondary := engine.NewTokenQueue(), engine.NewTokenQueue()
	dispatchOpts := append([]engine.Option{
		engine.WithRefreshInterval(cfg.Dispatch.RefreshInterval),
		engine.WithCRSSelector(crs),
		engine.WithObserver(observer),
	}, newDispatchTables(cfg.Dispatch.AltitudeCoarseRepeat).options()...)
	d := engine.New(primary, secondary, sink, dispatchOpts...)

	// Pumps are not awaited on shutdown; cancelling ctx closes their ports.
	go pump(ctx, "primary", primaryPort, primary)
	go pump(ctx, "secondary", secondaryPort, secondary)

	fmt.Fprintf(cmd.OutOrStdout(), "Bridge started (profile %s, CRS %s). Press Ctrl-C to stop.\n", env.profile.Name, crs)

	start := time.Now()
	err = d.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "dispatcher error", err)
	}

	slog.Info("bridge stopped", "dispatched", dispatched.Load(), "uptime", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "Bridge stopped after %d tokens.\n", dispatched.Load())
	return nil
}

func pump(ctx context.Context, name string, src io.ReadCloser, q *engine.TokenQueue) {
	defer src.Close()
	if err := linesource.Pump(ctx, name, src, q); err != nil && ctx.Err() == nil {
		slog.Error("input channel lost", "channel", name, "error", err)
	}
}

func openSerial(name string, p config.PortConfig) (io.ReadCloser, error) {
	slog.Info("opening serial port", "channel", name, "port", p.Port, "baud", p.Baud)
	port, err := linesource.OpenSerial(p.Port, p.Baud, p.ReadTimeout)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// dispatchTables are the command and mode-select tables one dispatcher runs
// with. resolve and table inspect the same values the bridge dispatches on.
type dispatchTables struct {
	commands engine.CommandTable
	modes    engine.ModeSelectTable
}

func newDispatchTables(coarse int) dispatchTables {
	return dispatchTables{
		commands: engine.DefaultCommandTable(coarse),
		modes:    engine.DefaultModeSelectTable(),
	}
}

func (t dispatchTables) options() []engine.Option {
	return []engine.Option{
		engine.WithCommandTable(t.commands),
		engine.WithModeSelectTable(t.modes),
	}
}

// closeJournal flushes the journal and closes its database, logging a close
// failure since the command result is already decided.
func closeJournal(st *store.Store, j *store.Journal) {
	j.Close()
	if err := st.Close(); err != nil {
		slog.Error("error closing journal database", "error", err)
	}
}

// connectSimulator returns the dry-run recorder, or waits for the gateway.
// A lost gateway connection cancels the bridge.
func connectSimulator(ctx context.Context, cancel context.CancelFunc, dryRun bool, cfg *config.Config, events []string) (sim.Simulator, error) {
	if dryRun {
		slog.Info("dry run: events are logged, not sent")
		return sim.NewRecorder(events...).WithLogger(slog.Default()), nil
	}

	slog.Info("waiting for simulator", "url", cfg.Sim.URL)
	gw, err := sim.WaitForSimulator(ctx, func(ctx context.Context) (*sim.Gateway, error) {
		return sim.DialGateway(ctx, cfg.Sim.URL, sim.WithKeepalive(cfg.Sim.Keepalive))
	}, cfg.Sim.ConnectRetry)
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-gw.Done():
			if ctx.Err() == nil {
				slog.Error("simulator connection lost, shutting down")
				cancel()
			}
		case <-ctx.Done():
			gw.Close()
		}
	}()
	return gw, nil
}

// openJournal opens the database and records the session row.
func openJournal(ctx context.Context, gen store.SessionGenerator, path string, cfg *config.Config, profileName, source string) (*store.Store, *store.Journal, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	sess := store.Session{
		ID:        gen.Generate(),
		StartedAt: time.Now(),
		Source:    source,
		Profile:   profileName,
		CRS:       cfg.Dispatch.CRSSelector,
		Settings: map[string]string{
			"refresh_interval":       cfg.Dispatch.RefreshInterval.String(),
			"altitude_coarse_repeat": fmt.Sprint(cfg.Dispatch.AltitudeCoarseRepeat),
			"primary_port":           cfg.Serial.Primary.Port,
			"secondary_port":         cfg.Serial.Secondary.Port,
		},
	}
	if err := st.WriteSession(ctx, sess); err != nil {
		st.Close()
		return nil, nil, err
	}

	slog.Info("journal open", "path", path, "session", sess.ID)
	return st, store.NewJournal(st, sess.ID, cfg.Journal.Buffer), nil
}
