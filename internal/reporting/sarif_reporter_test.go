package reporting

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/reporting/sarif"
)

// bufferCloser records whether Close was called.
type bufferCloser struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return b.closeErr
}

func decodeLog(t *testing.T, data []byte) *sarif.Log {
	t.Helper()
	var log sarif.Log
	require.NoError(t, json.Unmarshal(data, &log))
	return &log
}

func TestSARIFReporter_PassingAttemptsOnly(t *testing.T) {
	buf := &bufferCloser{}
	r := NewSARIFReporter(buf, "1.2.3")

	d1 := schemas.Decision{Site: "com.acme.Foo$Inner:42", Strategy: "strat1a", Action: schemas.ActionVar}
	d2 := schemas.Decision{Site: "src/main/java/Bar.java:7", Strategy: "strat4-null", Action: schemas.ActionReturn, Value: "null"}
	d3 := schemas.Decision{Site: "engine-site-9", Strategy: "strat1a", Action: schemas.ActionVar}
	report := &schemas.CampaignReport{
		ID: "c-9", Mode: "exploration",
		Attempts: []schemas.Attempt{
			{Decisions: []schemas.Decision{d1, d2}, Oracle: schemas.Oracle{Outcome: schemas.OutcomePassed}},
			{Decisions: []schemas.Decision{d2}, Oracle: schemas.Oracle{Outcome: schemas.OutcomeFailed, Error: "boom"}},
			{Decisions: []schemas.Decision{d3}, Oracle: schemas.Oracle{Outcome: schemas.OutcomePassed}},
		},
		Summary: schemas.CampaignSummary{Collected: 3, Passed: 2, Failed: 1},
	}

	require.NoError(t, r.Write(report))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	log := decodeLog(t, buf.Bytes())
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Equal(t, "1.2.3", *run.Tool.Driver.Version)

	require.Len(t, run.Results, 3)
	require.Len(t, run.Tool.Driver.Rules, 2, "one rule per strategy")
	assert.Equal(t, "SUTURE-STRAT1A", run.Tool.Driver.Rules[0].ID)
	assert.Equal(t, "SUTURE-STRAT4-NULL", run.Tool.Driver.Rules[1].ID)
	assert.Contains(t, *run.Tool.Driver.Rules[0].FullDescription.Text, "compatible variable")

	first := run.Results[0].Locations[0].PhysicalLocation
	assert.Equal(t, "com/acme/Foo.java", *first.ArtifactLocation.URI)
	assert.Equal(t, 42, first.Region.StartLine)

	second := run.Results[1].Locations[0].PhysicalLocation
	assert.Equal(t, "src/main/java/Bar.java", *second.ArtifactLocation.URI)
	assert.Equal(t, 7, second.Region.StartLine)
	assert.Contains(t, *run.Results[1].Message.Text, "with null")

	third := run.Results[2].Locations[0].PhysicalLocation
	assert.Equal(t, "engine-site-9", *third.ArtifactLocation.URI)
	assert.Nil(t, third.Region)
	assert.Equal(t, "SUTURE-STRAT1A", run.Results[2].RuleID)
}

func TestSARIFReporter_EmptyReport(t *testing.T) {
	buf := &bufferCloser{}
	r := NewSARIFReporter(buf, "dev")
	require.NoError(t, r.Write(&schemas.CampaignReport{}))
	require.NoError(t, r.Close())

	log := decodeLog(t, buf.Bytes())
	assert.NotNil(t, log.Runs[0].Results)
	assert.Empty(t, log.Runs[0].Results)
	assert.Contains(t, buf.String(), `"results": []`)
}

func TestSARIFReporter_CloseError(t *testing.T) {
	closeErr := errors.New("disk full")
	r := NewSARIFReporter(&bufferCloser{closeErr: closeErr}, "dev")
	err := r.Close()
	assert.ErrorIs(t, err, closeErr)
}

func TestSanitizeRuleName(t *testing.T) {
	assert.Equal(t, "STRAT4.NULL", sanitizeRuleName("Strat4.NULL"))
	assert.Equal(t, "A-B", sanitizeRuleName("--a  b!!"))
	assert.Equal(t, "UNKNOWN-STRATEGY", sanitizeRuleName("$$"))
}
