package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/simbridge/internal/profile"
)

// ProfileReport is the JSON shape of a profile check.
type ProfileReport struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Source      string            `json:"source"`
	Events      map[string]string `json:"events"`
	Vars        map[string]string `json:"vars"`
	Missing     []string          `json:"missing,omitempty"`
}

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [file]",
		Short: "Validate an aircraft profile",
		Long: `Validates an aircraft profile against the profile schema and lists its
event and variable mappings. Without a file, the built-in profile is shown.

Unmapped names are reported but are not an error: tokens that need them
are logged as unresolved at runtime.

Example:
  simbridge profile
  simbridge profile ./profiles/a320.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runProfile(rootOpts, cmd, path)
		},
	}

	return cmd
}

func runProfile(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := opts.formatter(cmd)

	p, err := loadProfile(path)
	if err != nil {
		var loadErr *profile.LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error("INVALID_PROFILE", loadErr.Message, map[string]string{"source": loadErr.Source})
			return WrapExitError(ExitFailure, "profile is invalid", err)
		}
		return WrapExitError(ExitCommandError, "failed to read profile", err)
	}

	source := path
	if source == "" {
		source = "built-in"
	}
	report := ProfileReport{
		Name:        p.Name,
		Description: p.Description,
		Source:      source,
		Events:      make(map[string]string, len(p.Events)),
		Vars:        make(map[string]string, len(p.Vars)),
		Missing:     p.Missing(),
	}
	for a, name := range p.Events {
		report.Events[string(a)] = name
	}
	for v, name := range p.Vars {
		report.Vars[string(v)] = name
	}

	return formatter.Emit(report, func(w io.Writer) error {
		fmt.Fprintf(w, "Profile %s (%s): %d events, %d vars\n", p.Name, source, len(p.Events), len(p.Vars))
		if p.Description != "" {
			fmt.Fprintf(w, "  %s\n", p.Description)
		}
		for _, m := range report.Missing {
			fmt.Fprintf(w, "  missing %s\n", m)
		}
		if len(report.Missing) == 0 {
			fmt.Fprintln(w, "  all actions and variables mapped")
		}
		return nil
	})
}
