package sync

import "time"

// Outcome classifies what happened to one epic during a pass.
type Outcome int

const (
	// OutcomeCreated means a new remote issue was created.
	OutcomeCreated Outcome = iota
	// OutcomeUpdated means an existing issue received a field diff.
	OutcomeUpdated
	// OutcomeUpToDate means nothing needed to change.
	OutcomeUpToDate
	// OutcomeSkipped means the source file could not be parsed.
	OutcomeSkipped
	// OutcomeFailed means the remote operation did not succeed; the
	// record is retried on the next pass.
	OutcomeFailed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUpToDate:
		return "up_to_date"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EpicOutcome is the per-epic record of one pass.
type EpicOutcome struct {
	LocalID string
	Key     string
	Outcome Outcome
	Err     error
}

// Result summarizes one sync pass.
type Result struct {
	Outcomes      []EpicOutcome
	ParseFailures []string

	Created  int
	Updated  int
	UpToDate int
	Skipped  int
	Failed   int

	Duration time.Duration
}

// Add appends an outcome and bumps the matching counter.
func (r *Result) Add(o EpicOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUpToDate:
		r.UpToDate++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}
