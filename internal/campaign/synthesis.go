package campaign

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/suture/internal/classpath"
	"github.com/xkilldash9x/suture/internal/maven"
	"github.com/xkilldash9x/suture/internal/synth"
)

// Repairer performs a single synthesis run.
type Repairer interface {
	Repair(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// Synthesize runs one patch synthesis over the project's failing test classes.
func (r *Runner) Synthesize(ctx context.Context, repairer Repairer) (*synth.Result, error) {
	project, err := r.loadProject(r.cfg.Project().Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	reports, err := maven.ReadReports(ctx, r.logger, project.Units, r.cfg.Project().ReportConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to read test reports: %w", err)
	}
	if len(reports.FailingClasses) == 0 {
		return nil, synth.ErrNoFailingTests
	}

	opts := synth.OptionsFromConfig(r.cfg.Synthesis())
	opts.OutputDir = underRoot(project.Root, opts.OutputDir)
	opts.ComplianceLevel = r.complianceLevel(project)

	return repairer.Repair(ctx, synth.Request{
		FailingTests: reports.FailingClasses,
		Sources:      project.SourceRoots(),
		Classpath:    classpath.Assembler{ExcludeTestOutputs: r.cfg.Engine().ExcludeTestOutputs}.Assemble(project.Units),
		Options:      opts,
	})
}
