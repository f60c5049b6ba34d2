package driver

// Outcome is the terminal disposition of a workflow run.
//
// A run starts Pending and moves to exactly one terminal value; once
// terminal it never changes. [Outcome.Terminal] distinguishes the two.
type Outcome string

const (
	// OutcomePending means the turn loop is still running.
	OutcomePending Outcome = "pending"

	// OutcomeReadyForApproval means a reviewer emitted the ready marker;
	// the run now waits on the human approval token.
	OutcomeReadyForApproval Outcome = "ready-for-approval"

	// OutcomeSafetyLimitExceeded means the hard message bound stopped the
	// loop. Not an error: the recovery path is a fresh run.
	OutcomeSafetyLimitExceeded Outcome = "safety-limit-exceeded"

	// OutcomeIncomplete means the loop ended without completing: an
	// external cancellation or a reply capability failure.
	OutcomeIncomplete Outcome = "incomplete"
)

// Terminal reports whether the outcome ends the turn loop.
func (o Outcome) Terminal() bool {
	return o != OutcomePending && o != ""
}

// IsValid reports whether o is one of the defined outcome values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeReadyForApproval, OutcomeSafetyLimitExceeded, OutcomeIncomplete:
		return true
	}
	return false
}
