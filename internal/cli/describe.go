package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
	"github.com/roach88/simbridge/internal/store"
)

// RecordView is the JSON shape of one dispatch cycle.
type RecordView struct {
	Seq      int64         `json:"seq"`
	Stream   string        `json:"stream"`
	Token    string        `json:"token"`
	Outcome  string        `json:"outcome"`
	Requests []RequestView `json:"requests,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RequestView is the JSON shape of one issued request.
type RequestView struct {
	Action string   `json:"action"`
	Value  *float64 `json:"value,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func requestView(r model.Request, errMsg string) RequestView {
	v := RequestView{Action: string(r.Action), Error: errMsg}
	if r.Param.Valid {
		value := r.Param.Value
		v.Value = &value
	}
	return v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// viewRecord converts a live dispatch record.
func viewRecord(rec engine.Record) RecordView {
	v := RecordView{
		Seq:     rec.Seq,
		Stream:  rec.Stream.String(),
		Token:   string(rec.Token),
		Outcome: string(rec.Outcome),
		Error:   errString(rec.Err),
	}
	for _, res := range rec.Results {
		v.Requests = append(v.Requests, requestView(res.Request, errString(res.Err)))
	}
	return v
}

// viewDispatch converts a journaled dispatch.
func viewDispatch(d store.Dispatch) RecordView {
	v := RecordView{
		Seq:     d.Seq,
		Stream:  d.Stream.String(),
		Token:   string(d.Token),
		Outcome: string(d.Outcome),
		Error:   d.Error,
	}
	for _, r := range d.Requests {
		v.Requests = append(v.Requests, requestView(r.Request, r.Error))
	}
	return v
}

// String renders one line: "#seq stream "token" -> summary".
func (v RecordView) String() string {
	return fmt.Sprintf("#%d %s %q -> %s", v.Seq, v.Stream, v.Token, v.summary())
}

func (v RecordView) summary() string {
	switch engine.Outcome(v.Outcome) {
	case engine.OutcomeDispatched:
		return summarizeRequests(v.Requests)
	case engine.OutcomePassthrough:
		return "no active mode, ignored"
	case engine.OutcomeModeSelect:
		return "altitude step selected"
	case engine.OutcomeIgnored:
		return "unknown switch position, ignored"
	default:
		if v.Error != "" {
			return v.Outcome + ": " + v.Error
		}
		return v.Outcome
	}
}

// summarizeRequests collapses the identical requests of a repeated action
// into "action xN" and appends the failure count.
func summarizeRequests(reqs []RequestView) string {
	if len(reqs) == 0 {
		return "nothing issued"
	}

	var b strings.Builder
	b.WriteString(reqs[0].Action)
	if reqs[0].Value != nil {
		fmt.Fprintf(&b, "(%g)", *reqs[0].Value)
	}
	if len(reqs) > 1 {
		fmt.Fprintf(&b, " x%d", len(reqs))
	}

	failed := 0
	var firstErr string
	for _, r := range reqs {
		if r.Error != "" {
			if failed == 0 {
				firstErr = r.Error
			}
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(&b, " [%d failed: %s]", failed, firstErr)
	}
	return b.String()
}
