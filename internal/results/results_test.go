package results

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/suture/api/schemas"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func attempt(site string, outcome schemas.Outcome) schemas.Attempt {
	return schemas.Attempt{
		Decisions: []schemas.Decision{{Site: site, Strategy: "strat1a", Action: schemas.ActionVar, Value: "items"}},
		Oracle:    schemas.Oracle{Outcome: outcome},
		Tests:     []string{"com.acme.CartTest#total"},
		Start:     t0,
		End:       t0.Add(1500 * time.Millisecond),
	}
}

func batch(n int, prefix string) []schemas.Attempt {
	out := make([]schemas.Attempt, n)
	for i := range out {
		out[i] = attempt(fmt.Sprintf("%s-%d", prefix, i), schemas.OutcomePassed)
	}
	return out
}

func TestOutput_Admit(t *testing.T) {
	t.Run("admits whole batches under the target", func(t *testing.T) {
		out := NewOutput(5, t0)
		assert.Equal(t, 2, out.Admit(batch(2, "a")))
		assert.Equal(t, 2, out.Admit(batch(2, "b")))
		assert.Equal(t, 4, out.Len())
		assert.False(t, out.Full())
	})

	t.Run("truncates an overflowing batch keeping the earliest", func(t *testing.T) {
		out := NewOutput(5, t0)
		out.Admit(batch(3, "a"))
		assert.Equal(t, 2, out.Admit(batch(4, "b")))
		assert.Equal(t, 5, out.Len())
		assert.True(t, out.Full())

		attempts := out.Attempts()
		assert.Equal(t, "b-0", attempts[3].Decisions[0].Site)
		assert.Equal(t, "b-1", attempts[4].Decisions[0].Site)
	})

	t.Run("admits nothing once full", func(t *testing.T) {
		out := NewOutput(1, t0)
		out.Admit(batch(1, "a"))
		assert.Zero(t, out.Admit(batch(3, "b")))
		assert.Equal(t, 1, out.Len())
	})

	t.Run("empty batch", func(t *testing.T) {
		out := NewOutput(3, t0)
		assert.Zero(t, out.Admit(nil))
	})

	t.Run("negative target holds nothing", func(t *testing.T) {
		out := NewOutput(-1, t0)
		assert.Zero(t, out.Admit(batch(1, "a")))
		assert.True(t, out.Full())
	})

	t.Run("never exceeds the target under concurrent admits", func(t *testing.T) {
		out := NewOutput(50, t0)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out.Admit(batch(7, fmt.Sprint(i)))
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 50, out.Len())
	})

	t.Run("attempts are a copy", func(t *testing.T) {
		out := NewOutput(2, t0)
		out.Admit(batch(1, "a"))
		got := out.Attempts()
		got[0].Oracle.Outcome = schemas.OutcomeFailed
		assert.Equal(t, schemas.OutcomePassed, out.Attempts()[0].Oracle.Outcome)
	})
}

func TestOutput_AdmitAll(t *testing.T) {
	out := NewOutput(3, t0)
	out.Admit(batch(1, "a"))

	assert.Equal(t, 10, out.AdmitAll(batch(10, "b")))
	assert.Equal(t, 11, out.Len())
	assert.Equal(t, 11, out.Target())
	assert.True(t, out.Full())

	attempts := out.Attempts()
	assert.Equal(t, "a-0", attempts[0].Decisions[0].Site)
	assert.Equal(t, "b-9", attempts[10].Decisions[0].Site)

	t.Run("batch under the target leaves it alone", func(t *testing.T) {
		out := NewOutput(5, t0)
		assert.Equal(t, 2, out.AdmitAll(batch(2, "a")))
		assert.Equal(t, 5, out.Target())
		assert.False(t, out.Full())
	})
}

func TestOutput_Timings(t *testing.T) {
	out := NewOutput(1, t0)
	out.MarkInitialized(t0.Add(time.Minute))
	out.Finish(t0.Add(time.Hour))

	start, endInit, end := out.Timings()
	assert.Equal(t, t0, start)
	assert.Equal(t, t0.Add(time.Minute), endInit)
	assert.Equal(t, t0.Add(time.Hour), end)
}

func sampleReport() *schemas.CampaignReport {
	out := NewOutput(4, t0)
	out.Admit([]schemas.Attempt{
		attempt("com.acme.Cart:42", schemas.OutcomePassed),
		attempt("com.acme.Cart:57", schemas.OutcomeFailed),
		{Oracle: schemas.Oracle{Outcome: schemas.OutcomeEnvironmentError, Error: "compilation failed"}, Start: t0, End: t0},
	})
	out.MarkInitialized(t0.Add(2 * time.Second))
	out.Finish(t0.Add(time.Minute))

	return BuildReport(
		Campaign{ID: "c-1", Mode: "explore", Selector: "exploration", Scope: "class", Strategy: "default"},
		[]schemas.CandidateFault{{TestID: "com.acme.CartTest#total", Files: []string{"/src/com/acme/Cart.java"}}},
		out,
		[]schemas.Decision{
			{Site: "com.acme.Cart:42", Strategy: "strat1a", Action: schemas.ActionVar, Value: "items"},
			{Site: "com.acme.Cart:42", Strategy: "strat4-null", Action: schemas.ActionReturn, Value: "null"},
		},
		schemas.StopBudgetExhausted,
	)
}

func TestBuildReport(t *testing.T) {
	report := sampleReport()

	assert.Equal(t, "c-1", report.ID)
	assert.Equal(t, 4, report.Target)
	assert.Equal(t, t0.Add(2*time.Second), report.EndInit)
	assert.Len(t, report.Attempts, 3)
	assert.Len(t, report.SearchSpace, 2)
	assert.Equal(t, schemas.CampaignSummary{
		Collected:  3,
		Passed:     1,
		Failed:     1,
		Errored:    1,
		Abandoned:  true,
		StopReason: schemas.StopBudgetExhausted,
	}, report.Summary)
}

func TestBuildReport_EmptyCollectionsEncodeAsArrays(t *testing.T) {
	report := BuildReport(Campaign{ID: "empty"}, nil, NewOutput(3, t0), nil, schemas.StopCancelled)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, report))
	assert.Contains(t, buf.String(), `"attempts": []`)
	assert.Contains(t, buf.String(), `"search_space": []`)
	assert.Contains(t, buf.String(), `"candidates": []`)
	assert.False(t, report.Summary.Abandoned)
}

func TestCodec_RoundTrip(t *testing.T) {
	report := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, report))
	decoded, err := Decode(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(report, decoded); diff != "" {
		t.Errorf("report changed across encode/decode (-want +got):\n%s", diff)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader("{not json"))
	assert.ErrorContains(t, err, "failed to decode campaign report")
}
