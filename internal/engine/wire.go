// internal/engine/wire.go
package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record kinds emitted by the engine on stdout, one JSON object per line.
const (
	kindOffer = "offer"
	kindLapse = "lapse"
	kindLog   = "log"
)

// legacyExhaustedMarker is the error text older engines use when the selector
// has no decision left to offer.
const legacyExhaustedMarker = "NoMoreDecision"

type record struct {
	Kind     string            `json:"kind"`
	Decision *schemas.Decision `json:"decision,omitempty"`
	Lapse    *schemas.Attempt  `json:"lapse,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// decodeStream reads engine output. Offers go into space, lapses are returned
// in order. Lines that are not JSON records are engine chatter and only logged.
func decodeStream(r io.Reader, space *selector.SearchSpace, logger *zap.Logger) ([]schemas.Attempt, error) {
	var attempts []schemas.Attempt
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			logger.Debug(string(line))
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Debug("Ignoring malformed engine record.", zap.ByteString("line", line), zap.Error(err))
			continue
		}
		switch rec.Kind {
		case kindOffer:
			if rec.Decision != nil && space != nil {
				space.Offer(*rec.Decision)
			}
		case kindLapse:
			if rec.Lapse != nil {
				attempts = append(attempts, normalize(*rec.Lapse))
			}
		case kindLog:
			logger.Debug(rec.Message)
		default:
			logger.Debug("Ignoring unknown engine record.", zap.String("kind", rec.Kind))
		}
	}
	if err := scanner.Err(); err != nil {
		return attempts, fmt.Errorf("failed to read engine output: %w", err)
	}
	return attempts, nil
}

// normalize fills in the oracle outcome. This is the only place where error
// text is inspected: engines that predate tagged outcomes report exhaustion
// through the NoMoreDecision error.
func normalize(a schemas.Attempt) schemas.Attempt {
	if strings.Contains(a.Oracle.Error, legacyExhaustedMarker) {
		a.Oracle.Outcome = schemas.OutcomeSearchExhausted
		return a
	}
	if a.Oracle.Outcome == "" {
		if a.Oracle.Error != "" {
			a.Oracle.Outcome = schemas.OutcomeFailed
		} else {
			a.Oracle.Outcome = schemas.OutcomePassed
		}
	}
	return a
}
