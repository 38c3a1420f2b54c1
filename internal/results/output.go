// File: internal/results/output.go
package results

import (
	"sync"
	"time"

	"github.com/xkilldash9x/suture/api/schemas"
)

// Output is the bounded, ordered collection of attempts gathered by a
// campaign. It only grows, and never holds more than its target.
type Output struct {
	mu       sync.Mutex
	target   int
	attempts []schemas.Attempt
	start    time.Time
	endInit  time.Time
	end      time.Time
}

// NewOutput creates an empty output that will hold at most target attempts.
func NewOutput(target int, start time.Time) *Output {
	if target < 0 {
		target = 0
	}
	return &Output{target: target, start: start}
}

// Admit appends the longest prefix of batch that fits under the target and
// returns how many attempts were admitted.
func (o *Output) Admit(batch []schemas.Attempt) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := o.target - len(o.attempts)
	if n <= 0 {
		return 0
	}
	if len(batch) < n {
		n = len(batch)
	}
	o.attempts = append(o.attempts, batch[:n]...)
	return n
}

// AdmitAll appends the whole batch, raising the target when the batch would
// not fit under it. It returns how many attempts were admitted.
func (o *Output) AdmitAll(batch []schemas.Attempt) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.attempts = append(o.attempts, batch...)
	if len(o.attempts) > o.target {
		o.target = len(o.attempts)
	}
	return len(batch)
}

func (o *Output) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.attempts)
}

func (o *Output) Target() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// Full reports whether the target has been reached.
func (o *Output) Full() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.attempts) >= o.target
}

// Attempts returns a copy of the collected attempts in admission order.
func (o *Output) Attempts() []schemas.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]schemas.Attempt(nil), o.attempts...)
}

// MarkInitialized records the end of campaign setup (triage, instrumentation).
func (o *Output) MarkInitialized(t time.Time) {
	o.mu.Lock()
	o.endInit = t
	o.mu.Unlock()
}

// Finish stamps the end of the campaign.
func (o *Output) Finish(t time.Time) {
	o.mu.Lock()
	o.end = t
	o.mu.Unlock()
}

// Timings returns the start, end-of-initialization and end timestamps.
func (o *Output) Timings() (start, endInit, end time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.start, o.endInit, o.end
}
