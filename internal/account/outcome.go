// ABOUTME: Tagged result of a mutating account or post action
// ABOUTME: Exactly one of redirect, in-place refresh or failure; the web layer interprets it

package account

import "fmt"

// OutcomeKind discriminates an Outcome.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeRedirect OutcomeKind = iota + 1
	OutcomeRefresh
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeRefresh:
		return "refresh"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is what a mutating action ended in. Target is set for redirects and
// refreshes, Err for failures.
type Outcome struct {
	Kind   OutcomeKind
	Target string
	Err    error
}

// Redirect navigates the client to target.
func Redirect(target string) Outcome {
	return Outcome{Kind: OutcomeRedirect, Target: target}
}

// Refresh re-renders the view at target in place.
func Refresh(target string) Outcome {
	return Outcome{Kind: OutcomeRefresh, Target: target}
}

// Failure ends the action with err.
func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeFailure
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailure {
		return fmt.Sprintf("failure(%v)", o.Err)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Target)
}
