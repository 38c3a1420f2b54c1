// File: internal/results/report.go
package results

import (
	"github.com/xkilldash9x/suture/api/schemas"
)

// Campaign identifies the campaign a report describes.
type Campaign struct {
	ID       string
	Mode     string
	Selector string
	Scope    string
	Strategy string
}

// BuildReport assembles the final document from the collected output and the
// search-space catalogue. Call it once the exploration loop has ended.
func BuildReport(c Campaign, candidates []schemas.CandidateFault, out *Output, searchSpace []schemas.Decision, stop schemas.StopReason) *schemas.CampaignReport {
	start, endInit, end := out.Timings()
	attempts := out.Attempts()
	if attempts == nil {
		attempts = []schemas.Attempt{}
	}
	if searchSpace == nil {
		searchSpace = []schemas.Decision{}
	}
	if candidates == nil {
		candidates = []schemas.CandidateFault{}
	}

	return &schemas.CampaignReport{
		ID:          c.ID,
		Mode:        c.Mode,
		Selector:    c.Selector,
		Scope:       c.Scope,
		Strategy:    c.Strategy,
		Start:       start,
		EndInit:     endInit,
		End:         end,
		Target:      out.Target(),
		Candidates:  candidates,
		Attempts:    attempts,
		SearchSpace: searchSpace,
		Summary:     summarize(attempts, stop),
	}
}

func summarize(attempts []schemas.Attempt, stop schemas.StopReason) schemas.CampaignSummary {
	summary := schemas.CampaignSummary{
		Collected:  len(attempts),
		StopReason: stop,
		Abandoned:  stop == schemas.StopBudgetExhausted,
	}
	for _, a := range attempts {
		switch {
		case a.Oracle.Outcome == schemas.OutcomePassed && !a.Oracle.HasError():
			summary.Passed++
		case a.Oracle.Outcome == schemas.OutcomeFailed:
			summary.Failed++
		default:
			summary.Errored++
		}
	}
	return summary
}
