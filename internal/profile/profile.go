// Package profile loads aircraft profiles: the mapping from symbolic actions
// and telemetry variables to simulator identifiers.
//
// Profiles are CUE documents validated against the embedded #Profile schema.
// Event and variable names differ between simulators, add-ons and aircraft,
// so they live here as data rather than in the dispatch tables.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/simbridge/internal/model"
)

//go:embed schema.cue
var schemaSrc string

//go:embed default.cue
var defaultSrc []byte

// Profile maps symbolic names to simulator identifiers.
type Profile struct {
	Name        string
	Description string
	Events      map[model.Action]string
	Vars        map[model.Var]string
}

// Event returns the simulator event for a.
func (p *Profile) Event(a model.Action) (string, bool) {
	name, ok := p.Events[a]
	return name, ok
}

// Var returns the simulator variable for v.
func (p *Profile) Var(v model.Var) (string, bool) {
	name, ok := p.Vars[v]
	return name, ok
}

// EventNames returns every mapped simulator event, sorted.
func (p *Profile) EventNames() []string {
	names := make([]string, 0, len(p.Events))
	for _, n := range p.Events {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Missing lists symbolic actions and variables the profile leaves unmapped,
// as "event:<action>" and "var:<var>". Unmapped actions resolve as
// unresolvable at runtime; unmapped variables fail their reads.
func (p *Profile) Missing() []string {
	var out []string
	for _, a := range model.Actions {
		if _, ok := p.Events[a]; !ok {
			out = append(out, "event:"+string(a))
		}
	}
	for _, v := range model.Vars {
		if _, ok := p.Vars[v]; !ok {
			out = append(out, "var:"+string(v))
		}
	}
	return out
}

// LoadError reports an invalid profile document.
type LoadError struct {
	Source  string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("profile %s: %s", e.Source, e.Message)
}

// Default returns the embedded MSFS 2020 profile.
func Default() *Profile {
	p, err := Parse(defaultSrc, "default.cue")
	if err != nil {
		// The embedded profile is covered by tests.
		panic(err)
	}
	return p
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(src, path)
}

// rawProfile is the decoded CUE shape.
type rawProfile struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Events      map[string]string `json:"events"`
	Vars        map[string]string `json:"vars"`
}

// Parse validates src against the schema and converts it to a Profile.
// Keys under events and vars must name known symbolic actions and variables.
func Parse(src []byte, source string) (*Profile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Source: "schema.cue", Message: cueerrors.Details(err, nil)}
	}

	v := ctx.CompileBytes(src, cue.Filename(source))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Source: source, Message: cueerrors.Details(err, nil)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Profile")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Source: source, Message: cueerrors.Details(err, nil)}
	}

	var raw rawProfile
	if err := unified.Decode(&raw); err != nil {
		return nil, &LoadError{Source: source, Message: err.Error()}
	}

	return fromRaw(raw, source)
}

func fromRaw(raw rawProfile, source string) (*Profile, error) {
	known := make(map[string]bool, len(model.Actions)+len(model.Vars))
	for _, a := range model.Actions {
		known["event:"+string(a)] = true
	}
	for _, v := range model.Vars {
		known["var:"+string(v)] = true
	}

	p := &Profile{
		Name:        raw.Name,
		Description: raw.Description,
		Events:      make(map[model.Action]string, len(raw.Events)),
		Vars:        make(map[model.Var]string, len(raw.Vars)),
	}

	var unknown []string
	for k, name := range raw.Events {
		if !known["event:"+k] {
			unknown = append(unknown, "events."+k)
			continue
		}
		p.Events[model.Action(k)] = name
	}
	for k, name := range raw.Vars {
		if !known["var:"+k] {
			unknown = append(unknown, "vars."+k)
			continue
		}
		p.Vars[model.Var(k)] = name
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &LoadError{Source: source, Message: fmt.Sprintf("unknown keys: %v", unknown)}
	}

	return p, nil
}
