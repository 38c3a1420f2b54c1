// File: internal/results/codec.go
package results

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/suture/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode writes the report as indented JSON.
func Encode(w io.Writer, report *schemas.CampaignReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode campaign report: %w", err)
	}
	return nil
}

// Decode reads a report written by Encode.
func Decode(r io.Reader) (*schemas.CampaignReport, error) {
	var report schemas.CampaignReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode campaign report: %w", err)
	}
	return &report, nil
}
