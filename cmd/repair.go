package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/campaign"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/store"
)

// storeProvider creates the campaign store. Tests inject a mock instead of a
// live database.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL-backed store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL, makes sure the campaign tables exist and
// returns the store together with a cleanup closing the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (SUTURE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return st, cleanup, nil
}

// campaignFlags are the overrides applied through the config setters.
type campaignFlags struct {
	selector string
	laps     int
	scope    string
	strategy string
}

func newRepairCmd(provider storeProvider) *cobra.Command {
	var flags campaignFlags

	repairCmd := &cobra.Command{
		Use:   "repair [project-root]",
		Short: "Runs a repair campaign over the failing tests of a Maven project",
		Long: `Triages the surefire reports of the project, instruments the candidate sources
with the repair engine and explores repair decisions until the requested number
of attempts is collected. The report is written under the result directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyProjectArg(cfg, args)
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			return runRepair(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout(), provider)
		},
	}

	repairCmd.Flags().StringVarP(&flags.selector, "selector", "s", "", "Decision selector: dom, exploration, mono, greedy, random. (Overrides config/env)")
	repairCmd.Flags().IntVarP(&flags.laps, "laps", "n", 0, "Number of repair attempts to collect. (Overrides config/env)")
	repairCmd.Flags().StringVar(&flags.scope, "scope", "", "Instrumentation scope: class, package, stack, project. (Overrides config/env)")
	repairCmd.Flags().StringVar(&flags.strategy, "strategy", "", "Repair strategy: default or trycatch. (Overrides config/env)")
	repairCmd.Flags().StringP("format", "f", "", "Report format: json, brotli, sarif. (Overrides config/env)")
	repairCmd.Flags().Bool("persist", false, "Store the campaign in PostgreSQL. (Overrides config/env)")
	repairCmd.Flags().Int("failure-budget", 0, "Consecutive unproductive iterations tolerated. (Overrides config/env)")
	repairCmd.Flags().String("exception-filter", "", "Exception type considered by triage, '*' for any. (Overrides config/env)")
	repairCmd.Flags().Duration("run-interval", 0, "Minimum delay between engine runs. (Overrides config/env)")
	repairCmd.Flags().Duration("engine-timeout", 0, "Timeout of a single engine run. (Overrides config/env)")
	return repairCmd
}

// apply copies the flags the user set onto cfg.
func (f *campaignFlags) apply(cmd *cobra.Command, cfg config.Interface) error {
	flagSet := cmd.Flags()
	if flagSet.Changed("selector") {
		cfg.SetCampaignSelector(f.selector)
	}
	if flagSet.Changed("laps") {
		if f.laps <= 0 {
			return fmt.Errorf("--laps must be greater than 0")
		}
		cfg.SetCampaignLaps(f.laps)
	}
	if flagSet.Changed("scope") {
		cfg.SetCampaignScope(f.scope)
	}
	if flagSet.Changed("strategy") {
		cfg.SetCampaignStrategy(f.strategy)
	}
	return nil
}

// runRepair contains the testable core of the repair command.
func runRepair(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	out io.Writer,
	provider storeProvider,
	opts ...campaign.Option,
) error {
	opts = append([]campaign.Option{campaign.WithToolVersion(Version)}, opts...)

	if cfg.Report().Persist {
		st, cleanup, err := provider.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		opts = append(opts, campaign.WithStore(st))
	}

	campCfg := cfg.Campaign()
	logger.Info("Starting repair campaign.",
		zap.String("project", cfg.Project().Root),
		zap.String("selector", campCfg.Selector),
		zap.String("scope", campCfg.Scope),
		zap.String("strategy", campCfg.Strategy),
		zap.Int("laps", campCfg.Laps))

	outcome, err := campaign.NewRunner(logger, cfg, opts...).Run(ctx)
	if errors.Is(err, campaign.ErrNoCandidateTests) {
		logger.Warn("No failing test matches the exception filter; nothing to repair.",
			zap.String("exception_filter", campCfg.ExceptionFilter))
		fmt.Fprintln(out, "No candidate tests found. Nothing to repair.")
		return fmt.Errorf("nothing to repair: %w", err)
	}
	if outcome != nil {
		printCampaignSummary(out, outcome.Report, outcome.ReportPath)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Campaign aborted; partial report kept.")
		}
		return err
	}
	return nil
}

// printCampaignSummary writes a short human-readable digest of report.
func printCampaignSummary(out io.Writer, report *schemas.CampaignReport, path string) {
	s := report.Summary
	fmt.Fprintf(out, "\nCampaign %s finished: %s\n", report.ID, s.StopReason)
	fmt.Fprintf(out, "  selector %s, scope %s, strategy %s\n", report.Selector, report.Scope, report.Strategy)
	fmt.Fprintf(out, "  attempts %d/%d: %d passed, %d failed, %d errored\n", s.Collected, report.Target, s.Passed, s.Failed, s.Errored)
	fmt.Fprintf(out, "  search space %d decisions\n", len(report.SearchSpace))
	if !report.EndInit.IsZero() && !report.End.IsZero() {
		fmt.Fprintf(out, "  instrumentation %s, exploration %s\n",
			report.EndInit.Sub(report.Start).Round(time.Millisecond),
			report.End.Sub(report.EndInit).Round(time.Millisecond))
	}
	if s.Abandoned {
		fmt.Fprintln(out, "  campaign abandoned before reaching its target")
	}
	if path != "" {
		fmt.Fprintf(out, "Report: %s\n", path)
	}
}
