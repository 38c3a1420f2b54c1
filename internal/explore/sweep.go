// internal/explore/sweep.go
package explore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/results"
	"github.com/xkilldash9x/suture/internal/selector"
)

// SweepEngine applies a fixed, ordered list of strategies in one call.
type SweepEngine interface {
	RunStrategies(ctx context.Context, tests []string, strategies []selector.Strategy, space *selector.SearchSpace) ([]schemas.Attempt, error)
}

// Sweep runs the deterministic single-call mode: every strategy once, in order.
// Every resulting attempt is admitted, raising the target of out when the
// sweep yields more than it, and the end time is stamped on out. Unlike the exploration loop there is no retry; an engine
// error is returned to the caller.
func Sweep(ctx context.Context, logger *zap.Logger, engine SweepEngine, tests []string, strategies []selector.Strategy, space *selector.SearchSpace, out *results.Output, now func() time.Time) (Summary, error) {
	logger = logger.Named("sweep")
	if now == nil {
		now = time.Now
	}
	defer func() { out.Finish(now()) }()

	summary := Summary{StopReason: schemas.StopSweepComplete}
	if err := ctx.Err(); err != nil {
		summary.StopReason = schemas.StopCancelled
		return summary, err
	}

	logger.Info("Starting deterministic sweep.",
		zap.Strings("strategies", selector.EngineNames(strategies)),
		zap.Int("tests", len(tests)))

	summary.Iterations = 1
	batch, err := engine.RunStrategies(ctx, tests, strategies, space)
	if err != nil {
		summary.Faults = 1
		return summary, fmt.Errorf("deterministic sweep failed: %w", err)
	}
	if len(batch) == 0 {
		summary.Empty = 1
	} else {
		summary.Productive = 1
	}
	target := out.Target()
	out.AdmitAll(batch)

	logger.Info("Sweep finished.", zap.Int("attempts", len(batch)), zap.Int("target", target))
	if len(batch) > target {
		logger.Info("Sweep exceeded the requested laps; all outcomes kept.",
			zap.Int("laps", target), zap.Int("collected", out.Len()))
	}
	return summary, nil
}
