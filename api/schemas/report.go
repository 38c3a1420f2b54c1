package schemas

import (
	"time"
)

// -- Triage Schemas --

// CandidateFault pairs a failing test with the source files believed relevant
// to its failure. Files are absolute, sorted and free of duplicates.
type CandidateFault struct {
	TestID string   `json:"test_id"`
	Files  []string `json:"files"`
}

// -- Campaign Report Schemas --

// StopReason records why an exploration loop ended.
type StopReason string

// Loop termination reasons.
const (
	StopTargetReached   StopReason = "target_reached"
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopCancelled       StopReason = "cancelled"
	StopSweepComplete   StopReason = "sweep_complete"
)

// CampaignSummary aggregates the attempts of a campaign.
type CampaignSummary struct {
	Collected  int        `json:"collected"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Errored    int        `json:"errored"`
	Abandoned  bool       `json:"abandoned"`
	StopReason StopReason `json:"stop_reason"`
}

// CampaignReport is the persisted document produced at the end of a campaign.
// It must round-trip losslessly through its JSON encoding.
type CampaignReport struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	Selector string `json:"selector"`
	Scope    string `json:"scope"`
	Strategy string `json:"strategy"`

	Start   time.Time `json:"start"`
	EndInit time.Time `json:"end_init"`
	End     time.Time `json:"end"`
	Target  int       `json:"target"`

	Candidates  []CandidateFault `json:"candidates"`
	Attempts    []Attempt        `json:"attempts"`
	SearchSpace []Decision       `json:"search_space"`
	Summary     CampaignSummary  `json:"summary"`
}
