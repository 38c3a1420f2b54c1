package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/campaign"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/synth"
)

// repairerFactory builds the synthesizer for a project.
type repairerFactory func(logger *zap.Logger, cfg config.Interface) (campaign.Repairer, error)

func newSynthRepairer(logger *zap.Logger, cfg config.Interface) (campaign.Repairer, error) {
	runner, err := synth.NewRunner(logger, cfg.Synthesis().Command, cfg.Project().Root)
	if err != nil {
		return nil, err
	}
	return runner, nil
}

func newSynthCmd(factory repairerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "synth [project-root]",
		Short: "Runs one patch synthesis over the failing test classes of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyProjectArg(cfg, args)
			return runSynth(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout(), factory)
		},
	}
}

func runSynth(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer, factory repairerFactory) error {
	repairer, err := factory(logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	result, err := campaign.NewRunner(logger, cfg).Synthesize(ctx, repairer)
	if errors.Is(err, synth.ErrNoFailingTests) {
		fmt.Fprintln(out, "No failing test classes found. Nothing to repair.")
		return fmt.Errorf("nothing to repair: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Synthesis %s in %s: %d statements, %d angelic values\n",
		result.Status, result.Duration().Round(time.Millisecond), result.Statements, result.AngelicValues)
	if len(result.Patches) == 0 {
		fmt.Fprintln(out, "No patch found.")
		return nil
	}
	for i, p := range result.Patches {
		location := p.File
		if p.Line > 0 {
			location = fmt.Sprintf("%s:%d", p.File, p.Line)
		}
		fmt.Fprintf(out, "Patch %d [%s] %s\n    %s\n", i+1, p.Kind, location, p.Text)
	}
	return nil
}
