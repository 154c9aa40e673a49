package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Session string
}

// SessionView is the JSON shape of one journal session.
type SessionView struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	Source     string            `json:"source"`
	Profile    string            `json:"profile"`
	CRS        string            `json:"crs"`
	Settings   map[string]string `json:"settings,omitempty"`
	Dispatches int               `json:"dispatches"`
}

// SessionDetail is the JSON shape of one session with its dispatches.
type SessionDetail struct {
	Session  SessionView    `json:"session"`
	Outcomes map[string]int `json:"outcomes"`
	Records  []RecordView   `json:"records"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db>",
		Short: "Inspect a dispatch journal",
		Long: `Lists the sessions recorded in a journal database, or with --session
prints one session's dispatches and outcome counts.

Example:
  simbridge journal ./dispatch.db
  simbridge journal ./dispatch.db --session 01923c4e-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to print")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command, path string) error {
	// Open creates missing databases; a typo should not leave an empty file behind.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmdContext(cmd)
	formatter := opts.formatter(cmd)

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}
	return showSession(ctx, st, formatter, opts.Session)
}

func viewSession(s store.Session, dispatches int) SessionView {
	return SessionView{
		ID:         s.ID,
		StartedAt:  s.StartedAt,
		Source:     s.Source,
		Profile:    s.Profile,
		CRS:        s.CRS,
		Settings:   s.Settings,
		Dispatches: dispatches,
	}
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sums, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list sessions", err)
	}

	views := make([]SessionView, 0, len(sums))
	for _, s := range sums {
		views = append(views, viewSession(s.Session, s.Dispatches))
	}

	return formatter.Emit(views, func(w io.Writer) error {
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "No sessions recorded.")
			return err
		}
		for _, v := range views {
			fmt.Fprintf(w, "%s  %s  %-7s %-10s crs=%s  %d dispatches\n",
				v.ID, v.StartedAt.Format(time.RFC3339), v.Source, v.Profile, v.CRS, v.Dispatches)
		}
		return nil
	})
}

func showSession(ctx context.Context, st *store.Store, formatter *OutputFormatter, id string) error {
	sess, err := st.ReadSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session %q not found", id))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read session", err)
	}

	dispatches, err := st.ReadRecords(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read dispatches", err)
	}
	counts, err := st.OutcomeCounts(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count outcomes", err)
	}

	detail := SessionDetail{
		Session:  viewSession(sess, len(dispatches)),
		Outcomes: make(map[string]int, len(counts)),
		Records:  make([]RecordView, 0, len(dispatches)),
	}
	for o, n := range counts {
		detail.Outcomes[string(o)] = n
	}
	for _, d := range dispatches {
		detail.Records = append(detail.Records, viewDispatch(d))
	}

	return formatter.Emit(detail, func(w io.Writer) error {
		s := detail.Session
		fmt.Fprintf(w, "Session %s (%s, profile %s, crs %s) started %s\n",
			s.ID, s.Source, s.Profile, s.CRS, s.StartedAt.Format(time.RFC3339))
		for _, r := range detail.Records {
			fmt.Fprintln(w, r.String())
		}

		outcomes := make([]string, 0, len(detail.Outcomes))
		for o := range detail.Outcomes {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		fmt.Fprint(w, "Outcomes:")
		for _, o := range outcomes {
			fmt.Fprintf(w, " %s=%d", o, detail.Outcomes[o])
		}
		_, err := fmt.Fprintln(w)
		return err
	})
}
