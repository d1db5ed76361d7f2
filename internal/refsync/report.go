package refsync

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	StatusUpdated = "updated"
	StatusFailed  = "failed"
)

const (
	ErrCodeStaleReference = "stale_reference"
	ErrCodeReloadFailed   = "reload_failed"
	ErrCodeHostFailed     = "host_failed"
)

// Outcome is the result of one (old, new) pair on one node.
type Outcome struct {
	Status    string `json:"status"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Node      string `json:"node,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	WasLoaded bool   `json:"was_loaded"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// OK reports whether the pair was applied.
func (o Outcome) OK() bool { return o.Status == StatusUpdated }

// Report aggregates a synchronization batch. Outcomes keep pair order.
// A pair bound to several loaded nodes has one outcome per node.
type Report struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

func NewReport() Report {
	return Report{Outcomes: []Outcome{}}
}

// Finalize recomputes the counters from Outcomes.
func (r *Report) Finalize() {
	r.Succeeded, r.Failed = 0, 0
	for _, o := range r.Outcomes {
		if o.OK() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// Failures returns the failed outcomes.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// String renders the report as one confirmation message:
// a header followed by "old>>>new" per pair.
func (r Report) String() string {
	var b strings.Builder
	if r.Succeeded > 0 {
		b.WriteString("Version updated successfully:\n")
		for _, o := range r.Outcomes {
			if o.OK() {
				fmt.Fprintf(&b, "%s>>>%s\n", filepath.Base(o.Old), filepath.Base(o.New))
			}
		}
	}
	if r.Failed > 0 {
		b.WriteString("Skipped:\n")
		for _, o := range r.Failures() {
			fmt.Fprintf(&b, "%s>>>%s (%s: %s)\n", filepath.Base(o.Old), filepath.Base(o.New), o.ErrorCode, o.ErrorMsg)
		}
	}
	if b.Len() == 0 {
		return "Nothing to update.\n"
	}
	return b.String()
}
