package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

const sampleStream = `Loading instrumented classes...
{"kind":"offer","decision":{"site":"Foo.java:12","strategy":"Strat1A","action":"default"}}
{"kind":"offer","decision":{"site":"Foo.java:12","strategy":"Strat1A","action":"default"}}
{"kind":"offer","decision":{"site":"Foo.java:20","strategy":"Strat4.NULL","action":"return","value":"null"}}

{"kind":"lapse","lapse":{"decisions":[{"site":"Foo.java:12","strategy":"Strat1A","action":"default"}],"oracle":{"outcome":"passed"},"tests":["FooTest#a"]}}
{"kind":"log","message":"selector moved to next site"}
{"kind":"lapse","lapse":{"decisions":[],"oracle":{"error":"fr.inria.spirals.npefix.resi.exception.NoMoreDecision"}}}
{"kind":"lapse","lapse":{"decisions":[{"site":"Foo.java:20","strategy":"Strat4.NULL","action":"return"}],"oracle":{"error":"expected 3 but was 4"}}}
{not json at all
{"kind":"heartbeat"}
`

func TestDecodeStream(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	space := selector.NewSearchSpace()

	attempts, err := decodeStream(strings.NewReader(sampleStream), space, zap.New(core))
	require.NoError(t, err)

	require.Len(t, attempts, 3)
	assert.Equal(t, schemas.OutcomePassed, attempts[0].Oracle.Outcome)
	assert.Equal(t, []string{"FooTest#a"}, attempts[0].Tests)
	assert.Equal(t, schemas.OutcomeSearchExhausted, attempts[1].Oracle.Outcome)
	assert.True(t, attempts[1].NoProgress())
	assert.Equal(t, schemas.OutcomeFailed, attempts[2].Oracle.Outcome)

	assert.Equal(t, 2, space.Len(), "duplicate offers collapse into one ledger entry")
	assert.Equal(t, "Foo.java:20", space.Decisions()[1].Site)

	assert.Equal(t, 1, logs.FilterMessage("Loading instrumented classes...").Len())
	assert.Equal(t, 1, logs.FilterMessage("selector moved to next site").Len())
	assert.Equal(t, 1, logs.FilterMessage("Ignoring malformed engine record.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Ignoring unknown engine record.").Len())
}

func TestDecodeStream_NilLedger(t *testing.T) {
	in := `{"kind":"offer","decision":{"site":"A.java:1","strategy":"Strat3","action":"new"}}`
	attempts, err := decodeStream(strings.NewReader(in), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   schemas.Oracle
		want schemas.Outcome
	}{
		{"no error means passed", schemas.Oracle{}, schemas.OutcomePassed},
		{"error means failed", schemas.Oracle{Error: "boom"}, schemas.OutcomeFailed},
		{"explicit outcome is kept", schemas.Oracle{Outcome: schemas.OutcomeEnvironmentError, Error: "jvm"}, schemas.OutcomeEnvironmentError},
		{"legacy exhaustion marker", schemas.Oracle{Outcome: schemas.OutcomeFailed, Error: "x.NoMoreDecision"}, schemas.OutcomeSearchExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize(schemas.Attempt{Oracle: tt.in})
			assert.Equal(t, tt.want, got.Oracle.Outcome)
		})
	}
}
