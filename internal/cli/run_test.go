package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simbridge/internal/config"
	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/store"
	"github.com/roach88/simbridge/internal/testutil"
)

// fakePorts serves fixed line data per channel name.
func fakePorts(lines map[string]string) func(string, config.PortConfig) (io.ReadCloser, error) {
	return func(name string, _ config.PortConfig) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(lines[name])), nil
	}
}

func TestRunBridge_DryRun(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd, out, errOut := bareCommand()

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		DryRun:      true,
		OpenPort: fakePorts(map[string]string{
			"primary":   "hdg+\r\nalt+\r\nbaro_sync\r\n",
			"secondary": "100\r\n",
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd.SetContext(ctx)

	require.NoError(t, runBridge(opts, cmd))
	assert.Contains(t, out.String(), "Bridge started (profile msfs2020, CRS vor1)")
	assert.Contains(t, out.String(), "Bridge stopped after 4 tokens.")

	logs := errOut.String()
	assert.Contains(t, logs, "event=HEADING_BUG_INC")
	assert.Contains(t, logs, "event=AP_ALT_VAR_INC")
	assert.Contains(t, logs, "event=KOHLSMAN_SET(16212)")
}

func TestRunBridge_Journal(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd, _, _ := bareCommand()
	dbPath := filepath.Join(t.TempDir(), "dispatch.db")

	opts := &RunOptions{
		RootOptions:      &RootOptions{Format: "text"},
		DryRun:           true,
		Journal:          dbPath,
		SessionGenerator: testutil.NewFixedSessionGenerator("run-1"),
		OpenPort: fakePorts(map[string]string{
			"primary":   "alt+\nflaps+\n",
			"secondary": "",
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd.SetContext(ctx)
	require.NoError(t, runBridge(opts, cmd))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "serial", sess.Source)
	assert.Equal(t, "msfs2020", sess.Profile)
	assert.Equal(t, "vor1", sess.CRS)
	assert.Equal(t, "10", sess.Settings["altitude_coarse_repeat"])

	records, err := st.ReadRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, engine.OutcomeDispatched, records[0].Outcome)
	assert.Equal(t, engine.OutcomeUnmatched, records[1].Outcome)
}

func TestRunBridge_PortFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd, _, _ := bareCommand()

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		DryRun:      true,
		OpenPort: func(name string, p config.PortConfig) (io.ReadCloser, error) {
			if name == "secondary" {
				return nil, errors.New("port busy")
			}
			return io.NopCloser(strings.NewReader("")), nil
		},
	}

	err := runBridge(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "secondary serial port")
}

func TestRunBridge_BadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SIMBRIDGE_CRS_SELECTOR", "adf")
	cmd, _, _ := bareCommand()

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		DryRun:      true,
		OpenPort:    fakePorts(nil),
	}

	err := runBridge(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDispatchTables_ConfigureDispatcher(t *testing.T) {
	tables := newDispatchTables(3)
	assert.Equal(t, engine.DefaultCommandTable(3), tables.commands)
	assert.Equal(t, engine.DefaultModeSelectTable(), tables.modes)

	primary, secondary := engine.NewTokenQueue(), engine.NewTokenQueue()
	sink := testutil.NewFakeSink()
	d := engine.New(primary, secondary, sink, tables.options()...)

	secondary.Enqueue("1000")
	primary.Enqueue("alt+")

	ctx := context.Background()
	rec, ok := d.Cycle(ctx)
	require.True(t, ok)
	assert.Equal(t, engine.OutcomeModeSelect, rec.Outcome)

	rec, ok = d.Cycle(ctx)
	require.True(t, ok)
	assert.Len(t, rec.Results, 3, "coarse repeat comes from the tables")
}

func TestCloseJournal_LogsCloseFailure(t *testing.T) {
	var logs strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	j := store.NewJournal(st, "session-1", 4)

	// Closing the database first makes the second close fail.
	require.NoError(t, st.Close())
	closeJournal(st, j)

	assert.Contains(t, logs.String(), "error closing journal database")
}
