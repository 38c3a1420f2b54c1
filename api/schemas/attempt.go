package schemas

import (
	"time"
)

// -- Decision Schemas --

// Action names the concrete repair applied at a decision site. Engines may
// report actions outside this set; they are kept verbatim.
type Action string

// Known repair actions.
const (
	ActionNull    Action = "null"    // Substitute a null value.
	ActionDefault Action = "default" // Substitute a default value for the type.
	ActionNew     Action = "new"     // Substitute a freshly constructed instance.
	ActionVar     Action = "var"     // Substitute a compatible variable in scope.
	ActionSkip    Action = "skip"    // Skip the faulty statement.
	ActionWrap    Action = "wrap"    // Wrap the faulty statement in a try/catch.
	ActionReturn  Action = "return"  // Return early from the enclosing method.
)

// Decision is one choice point resolved during an attempt: the site where the
// engine intervened and the strategy/action it applied there.
type Decision struct {
	// Site identifies the choice point, usually "<type>:<line>" or an engine id.
	Site string `json:"site"`
	// Strategy is the identifier of the strategy from the selector catalogue.
	Strategy string `json:"strategy"`
	Action   Action `json:"action"`
	// Value is the textual rendering of the injected value, when there is one.
	Value string `json:"value,omitempty"`
}

// Key uniquely identifies a decision inside a search space.
func (d Decision) Key() string {
	return d.Site + "|" + d.Strategy + "|" + string(d.Action) + "|" + d.Value
}

// -- Oracle Schemas --

// Outcome is the tagged verdict of an attempt.
type Outcome string

// Oracle outcomes.
const (
	OutcomePassed           Outcome = "passed"
	OutcomeFailed           Outcome = "failed"
	OutcomeEnvironmentError Outcome = "environment_error"
	OutcomeSearchExhausted  Outcome = "search_exhausted"
)

// Oracle is the pass/fail/error verdict attached to an attempt.
type Oracle struct {
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// HasError reports whether the oracle carries an error condition.
func (o Oracle) HasError() bool {
	return o.Error != "" || o.Outcome == OutcomeEnvironmentError || o.Outcome == OutcomeSearchExhausted
}

// -- Attempt Schemas --

// Attempt (a "lapse") is the outcome of one exploration attempt: the decisions
// applied, in order, and the verdict of the tests run under them. Attempts are
// immutable once returned by the engine.
type Attempt struct {
	Decisions []Decision `json:"decisions"`
	Oracle    Oracle     `json:"oracle"`
	Tests     []string   `json:"tests,omitempty"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
}

// NoProgress reports whether the attempt carries no usable information: it
// failed with an error and either the search space was exhausted or no
// decision was made at all.
func (a Attempt) NoProgress() bool {
	if !a.Oracle.HasError() {
		return false
	}
	return a.Oracle.Outcome == OutcomeSearchExhausted || len(a.Decisions) == 0
}

// Duration is the wall-clock time the attempt took.
func (a Attempt) Duration() time.Duration {
	if a.End.Before(a.Start) {
		return 0
	}
	return a.End.Sub(a.Start)
}
