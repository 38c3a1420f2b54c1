// Package campaign wires triage, the repair engine and the exploration loop
// into a single repair campaign.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/classpath"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/engine"
	"github.com/xkilldash9x/suture/internal/explore"
	"github.com/xkilldash9x/suture/internal/maven"
	"github.com/xkilldash9x/suture/internal/reporting"
	"github.com/xkilldash9x/suture/internal/results"
	"github.com/xkilldash9x/suture/internal/selector"
	"github.com/xkilldash9x/suture/internal/triage"
)

// ErrNoCandidateTests is returned when triage leaves nothing to repair.
var ErrNoCandidateTests = errors.New("no candidate tests to repair")

// Campaign modes recorded in the report.
const (
	ModeSweep    = "sweep"
	ModeMultiRun = "multirun"
)

// minComplianceLevel is the lowest language level the engine accepts.
const minComplianceLevel = 5

// binDirName is where the engine writes instrumented classes, under the output directory.
const binDirName = "npefix-bin"

// Engine is the full engine surface a campaign needs.
type Engine interface {
	explore.RepairEngine
	explore.SweepEngine
	Instrument(ctx context.Context) error
	Close() error
}

// ProjectLoader reads build metadata for the project rooted at root.
type ProjectLoader func(root string) (*maven.Project, error)

// EngineFactory builds the engine for one campaign.
type EngineFactory func(logger *zap.Logger, cfg engine.Config) (Engine, error)

// Outcome is what a campaign produced.
type Outcome struct {
	Report     *schemas.CampaignReport
	ReportPath string
	Summary    explore.Summary
}

// Runner executes repair campaigns.
type Runner struct {
	logger      *zap.Logger
	cfg         config.Interface
	loadProject ProjectLoader
	newEngine   EngineFactory
	store       schemas.Store
	now         func() time.Time
	newID       func() string
	toolVersion string
}

// Option configures a Runner.
type Option func(*Runner)

// WithProjectLoader replaces maven.LoadProject.
func WithProjectLoader(l ProjectLoader) Option { return func(r *Runner) { r.loadProject = l } }

// WithEngineFactory replaces the subprocess engine.
func WithEngineFactory(f EngineFactory) Option { return func(r *Runner) { r.newEngine = f } }

// WithStore persists every report into s.
func WithStore(s schemas.Store) Option { return func(r *Runner) { r.store = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithIDGenerator replaces uuid.NewString for campaign ids.
func WithIDGenerator(f func() string) Option { return func(r *Runner) { r.newID = f } }

// WithToolVersion is recorded in SARIF output.
func WithToolVersion(v string) Option { return func(r *Runner) { r.toolVersion = v } }

// NewRunner creates a campaign runner.
func NewRunner(logger *zap.Logger, cfg config.Interface, opts ...Option) *Runner {
	r := &Runner{
		logger:      logger.Named("campaign"),
		cfg:         cfg,
		loadProject: maven.LoadProject,
		newEngine: func(logger *zap.Logger, cfg engine.Config) (Engine, error) {
			return engine.New(logger, cfg)
		},
		now:         time.Now,
		newID:       uuid.NewString,
		toolVersion: "dev",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one campaign: triage, instrumentation, exploration and
// reporting. When ctx is cancelled mid-way the partial report is still written
// and ctx's error is returned with the outcome.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	campCfg := r.cfg.Campaign()
	start := r.now()

	repair, err := selector.ParseRepairStrategy(campCfg.Strategy)
	if err != nil {
		return nil, err
	}
	sel, err := selector.New(campCfg.Selector, repair)
	if err != nil {
		return nil, err
	}
	triaged, err := r.Triage(ctx)
	if err != nil {
		return nil, err
	}
	project, candidates, scope := triaged.Project, triaged.Candidates, triaged.Scope
	tests := testIDs(candidates)
	if len(tests) == 0 {
		return nil, ErrNoCandidateTests
	}
	r.logger.Info("Triage complete.",
		zap.Int("suites", triaged.Reports.Suites),
		zap.Int("failures", len(triaged.Reports.Failures)),
		zap.Int("candidate_tests", len(tests)))

	eng, err := r.newEngine(r.logger, r.engineConfig(project, candidates, scope, repair))
	if err != nil {
		return nil, fmt.Errorf("failed to create repair engine: %w", err)
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			r.logger.Warn("Failed to close repair engine.", zap.Error(cerr))
		}
	}()

	out := results.NewOutput(campCfg.Laps, start)
	if err := eng.Instrument(ctx); err != nil {
		return nil, err
	}
	out.MarkInitialized(r.now())

	space := selector.NewSearchSpace()
	mode := ModeMultiRun
	var summary explore.Summary
	var runErr error
	if sel.Kind() == selector.KindDom {
		mode = ModeSweep
		summary, runErr = explore.Sweep(ctx, r.logger, eng, tests, sel.Strategies(), space, out, r.now)
	} else {
		driver := explore.NewDriver(r.logger, eng,
			explore.WithFailureBudget(campCfg.FailureBudget),
			explore.WithRunInterval(campCfg.RunInterval),
			explore.WithClock(r.now))
		summary, runErr = driver.Run(ctx, sel, tests, space, out)
	}

	report := results.BuildReport(results.Campaign{
		ID:       r.newID(),
		Mode:     mode,
		Selector: string(sel.Kind()),
		Scope:    string(scope),
		Strategy: string(repair),
	}, candidates, out, space.Decisions(), summary.StopReason)
	outcome := &Outcome{Report: report, Summary: summary}

	outcome.ReportPath, err = r.writeReport(project.Root, report)
	if err != nil {
		return outcome, err
	}
	if r.store != nil {
		// Partial campaigns are stored too, even after cancellation.
		if err := r.store.PersistCampaign(context.WithoutCancel(ctx), report); err != nil {
			return outcome, fmt.Errorf("failed to persist campaign: %w", err)
		}
	}

	r.logger.Info("Campaign finished.",
		zap.String("campaign_id", report.ID),
		zap.String("stop_reason", string(report.Summary.StopReason)),
		zap.Int("collected", report.Summary.Collected),
		zap.Int("passed", report.Summary.Passed),
		zap.String("report", outcome.ReportPath))
	return outcome, runErr
}

// Triaged is a project together with the candidate faults found in its test reports.
type Triaged struct {
	Project    *maven.Project
	Reports    *maven.Reports
	Scope      triage.Scope
	Candidates []schemas.CandidateFault
}

// Triage loads the project, reads its surefire reports and resolves the
// failing tests to candidate faults. It does not start the engine.
func (r *Runner) Triage(ctx context.Context) (*Triaged, error) {
	campCfg := r.cfg.Campaign()
	scope, err := triage.ParseScope(campCfg.Scope)
	if err != nil {
		return nil, err
	}
	repair, err := selector.ParseRepairStrategy(campCfg.Strategy)
	if err != nil {
		return nil, err
	}
	project, err := r.loadProject(r.cfg.Project().Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	reports, err := maven.ReadReports(ctx, r.logger, project.Units, r.cfg.Project().ReportConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to read test reports: %w", err)
	}

	candidates := triage.Triage(r.logger, reports.Failures, triage.Options{
		Scope:           scope,
		SourceRoots:     project.SourceRoots(),
		ExceptionFilter: campCfg.ExceptionFilter,
		// The try-catch strategy repairs any exception type, not just the filtered one.
		AnyException: campCfg.ExceptionFilter == "*" || repair == selector.RepairTryCatch,
	})
	return &Triaged{Project: project, Reports: reports, Scope: scope, Candidates: candidates}, nil
}

func (r *Runner) engineConfig(project *maven.Project, candidates []schemas.CandidateFault, scope triage.Scope, repair selector.RepairStrategy) engine.Config {
	engCfg := r.cfg.Engine()
	projCfg := r.cfg.Project()

	sources := candidateFiles(candidates)
	if scope == triage.ScopeProject || len(sources) == 0 {
		if scope != triage.ScopeProject {
			r.logger.Warn("No candidate file resolved; instrumenting every source root.")
		}
		sources = project.SourceRoots()
	}

	var extra []string
	coords := classpath.Coordinates{GroupID: engCfg.GroupID, ArtifactID: engCfg.ArtifactID, Version: engCfg.Version}
	if jar, err := classpath.ArtifactPath(projCfg.LocalRepository, coords); err != nil {
		r.logger.Debug("Engine artifact not added to the classpath.", zap.Error(err))
	} else {
		extra = append(extra, jar)
	}
	cp := classpath.Assembler{ExcludeTestOutputs: engCfg.ExcludeTestOutputs, Extra: extra}.Assemble(project.Units)

	outputDir := underRoot(project.Root, r.cfg.Campaign().OutputDir)
	compliance := max(r.complianceLevel(project), minComplianceLevel)

	logFile := engCfg.LogFile
	if logFile != "" {
		logFile = underRoot(project.Root, logFile)
	}

	return engine.Config{
		Command:         engCfg.Command,
		WorkDir:         project.Root,
		Sources:         sources,
		Classpath:       cp,
		BinDir:          filepath.Join(outputDir, binDirName),
		OutputDir:       outputDir,
		ComplianceLevel: compliance,
		RepairStrategy:  repair,
		RunTimeout:      engCfg.RunTimeout,
		LogFile:         logFile,
	}
}

func (r *Runner) writeReport(root string, report *schemas.CampaignReport) (string, error) {
	format := r.cfg.Report().Format
	dir := underRoot(root, r.cfg.Campaign().ResultDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %w", err)
	}
	path := filepath.Join(dir, reporting.FileName(format, r.now()))

	rep, err := reporting.New(format, path, r.toolVersion)
	if err != nil {
		return "", err
	}
	if err := rep.Write(report); err != nil {
		_ = rep.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := rep.Close(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// testIDs returns candidate test identifiers once each, in order.
func testIDs(candidates []schemas.CandidateFault) []string {
	seen := make(map[string]bool, len(candidates))
	var ids []string
	for _, c := range candidates {
		if !seen[c.TestID] {
			seen[c.TestID] = true
			ids = append(ids, c.TestID)
		}
	}
	return ids
}

// candidateFiles is the union of every candidate's files, in first-seen order.
func candidateFiles(candidates []schemas.CandidateFault) []string {
	seen := make(map[string]bool)
	var files []string
	for _, c := range candidates {
		for _, f := range c.Files {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// complianceLevel reads the compiler settings, configuration first.
func (r *Runner) complianceLevel(project *maven.Project) int {
	projCfg := r.cfg.Project()
	return maven.ComplianceLevel(
		override(projCfg.Source, project.Property("maven.compiler.source", "")),
		override(projCfg.OldSource, project.Property("maven.compile.source", "")),
		override(projCfg.JavaVersion, project.Property("java.version", "")),
	)
}

// override prefers a configured value over the project's, "-1" meaning unset.
func override(configured, fromProject string) string {
	if configured != "" && configured != "-1" {
		return configured
	}
	return fromProject
}

func underRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
