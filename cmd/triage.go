package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/campaign"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
)

func newTriageCmd() *cobra.Command {
	var scope string

	triageCmd := &cobra.Command{
		Use:   "triage [project-root]",
		Short: "Lists the failing tests a campaign would try to repair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyProjectArg(cfg, args)
			if cmd.Flags().Changed("scope") {
				cfg.SetCampaignScope(scope)
			}
			return runTriage(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout())
		},
	}
	triageCmd.Flags().StringVar(&scope, "scope", "", "Instrumentation scope: class, package, stack, project. (Overrides config/env)")
	triageCmd.Flags().String("exception-filter", "", "Exception type considered by triage, '*' for any. (Overrides config/env)")
	return triageCmd
}

func runTriage(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer) error {
	triaged, err := campaign.NewRunner(logger, cfg).Triage(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d report files, %d failing tests, %d candidates (scope %s)\n",
		triaged.Reports.Suites, len(triaged.Reports.Failures), len(triaged.Candidates), triaged.Scope)
	if len(triaged.Candidates) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tFILES")
	for _, c := range triaged.Candidates {
		files := "-"
		if len(c.Files) > 0 {
			files = strings.Join(c.Files, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\n", c.TestID, files)
	}
	return tw.Flush()
}
