// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/reporting/sarif"
	"github.com/xkilldash9x/suture/internal/selector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "suture"
	ToolInfoURI  = "https://github.com/xkilldash9x/suture"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer matches runs of characters not allowed in rule IDs.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter renders passing repair attempts as SARIF results, one per
// decision, with one rule per strategy. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule index.
	mu          sync.Mutex
	rulesByName map[string]string
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:      writer,
		logger:      observability.GetLogger().Named("sarif_reporter"),
		log:         log,
		rulesByName: make(map[string]string),
	}
}

// Write adds the passing attempts of report to the log.
func (r *SARIFReporter) Write(report *schemas.CampaignReport) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	run.Properties = &sarif.PropertyBag{
		"campaignId": report.ID,
		"mode":       report.Mode,
		"selector":   report.Selector,
		"scope":      report.Scope,
		"collected":  report.Summary.Collected,
		"passed":     report.Summary.Passed,
		"stopReason": string(report.Summary.StopReason),
	}

	count := 0
	for i, attempt := range report.Attempts {
		if attempt.Oracle.Outcome != schemas.OutcomePassed {
			continue
		}
		for _, d := range attempt.Decisions {
			run.Results = append(run.Results, &sarif.Result{
				RuleID:    r.ensureRule(d.Strategy),
				Message:   &sarif.Message{Text: pString(resultMessage(i, d))},
				Level:     sarif.LevelNote,
				Locations: []*sarif.Location{siteLocation(d.Site)},
				Properties: &sarif.PropertyBag{
					"attempt": i,
					"action":  string(d.Action),
				},
			})
			count++
		}
	}

	r.logger.Debug("Wrote repair results to SARIF buffer",
		zap.Int("results_count", count),
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func sanitizeRuleName(name string) string {
	sanitized := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if sanitized == "" {
		return "UNKNOWN-STRATEGY"
	}
	return sanitized
}

// ensureRule returns the rule ID for a strategy, registering it on first use.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(strategy string) string {
	if id, ok := r.rulesByName[strategy]; ok {
		return id
	}

	id := "SUTURE-" + sanitizeRuleName(strategy)
	description := "Repair strategy " + strategy
	action := ""
	if s, ok := selector.Lookup(strategy); ok {
		description = s.Description
		action = string(s.Action)
	}

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               id,
		Name:             pString(strategy),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(strategy)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(description)},
		Properties: &sarif.PropertyBag{
			"tags":   []string{"repair", "suture"},
			"action": action,
		},
	})
	r.rulesByName[strategy] = id
	r.logger.Debug("Registering new SARIF rule definition", zap.String("rule_id", id))
	return id
}

func resultMessage(attempt int, d schemas.Decision) string {
	msg := fmt.Sprintf("Attempt %d passed the failing tests by applying %s (%s) at %s", attempt, d.Strategy, d.Action, d.Site)
	if d.Value != "" {
		msg += " with " + d.Value
	}
	return msg
}

// siteLocation maps a decision site to a file location. Sites are either
// "<file>:<line>", "<qualified type>:<line>" or an opaque engine identifier.
func siteLocation(site string) *sarif.Location {
	uri, region := site, (*sarif.Region)(nil)
	if i := strings.LastIndexByte(site, ':'); i > 0 {
		if line, err := strconv.Atoi(site[i+1:]); err == nil && line > 0 {
			uri, region = site[:i], &sarif.Region{StartLine: line}
		}
	}
	if !strings.HasSuffix(uri, ".java") && !strings.Contains(uri, "/") && strings.Contains(uri, ".") {
		typeName, _, _ := strings.Cut(uri, "$")
		uri = path.Join(strings.Split(typeName, ".")...) + ".java"
	}
	return &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)},
			Region:           region,
		},
		Message: &sarif.Message{Text: pString(site)},
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
