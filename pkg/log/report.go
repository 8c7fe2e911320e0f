// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package log

import "fmt"

// Outcome classifies what happened to one segment during a
// maintenance operation, per spec.md §7's structured reporter: one
// event per segment per operation, never aborting the run over
// another segment's failure.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeFixed
	OutcomeDeleted
	OutcomeArchived
	OutcomeWarning
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeFixed:
		return "fixed"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeArchived:
		return "archived"
	case OutcomeWarning:
		return "warning"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one reported outcome: a dataset, the segment it concerns
// (empty for dataset-wide events), and a human-readable detail. Its
// String form matches the stable log lines spec.md §7 requires for
// scripted assertions, e.g. "synop: rescanned 2007/07-07": a non-empty
// Detail follows the dataset name on its own and names the segment
// itself; without one, the segment (if any) and the outcome follow.
type Event struct {
	Dataset string
	Segment string
	Outcome Outcome
	Detail  string
}

func (e Event) String() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Dataset, e.Detail)
	}
	if e.Segment != "" {
		return fmt.Sprintf("%s: %s %s", e.Dataset, e.Segment, e.Outcome)
	}
	return fmt.Sprintf("%s: %s", e.Dataset, e.Outcome)
}

// Reporter accumulates Events for one maintenance run and logs each
// as it is recorded, at a level matching its Outcome, without
// aborting the run. A final Summary line is left to the caller, which
// knows the aggregate counts the CLI wants to print (spec.md §7,
// e.g. "synop: N files rescanned.").
type Reporter struct {
	events []Event
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter { return &Reporter{} }

// Report records ev and logs it immediately.
func (r *Reporter) Report(ev Event) {
	r.events = append(r.events, ev)
	switch ev.Outcome {
	case OutcomeError:
		Error(ev.String())
	case OutcomeWarning:
		Warn(ev.String())
	default:
		Info(ev.String())
	}
}

// Events returns every event recorded so far, in report order.
func (r *Reporter) Events() []Event { return r.events }

// Count returns how many recorded events carry the given Outcome.
func (r *Reporter) Count(o Outcome) int {
	n := 0
	for _, ev := range r.events {
		if ev.Outcome == o {
			n++
		}
	}
	return n
}

// HasErrors reports whether any event recorded an OutcomeError, used
// to decide the CLI's exit code and whether to set the
// do-not-pack flag.
func (r *Reporter) HasErrors() bool { return r.Count(OutcomeError) > 0 }
