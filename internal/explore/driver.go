// internal/explore/driver.go
package explore

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/results"
	"github.com/xkilldash9x/suture/internal/selector"
)

// DefaultFailureBudget is the number of consecutive unproductive iterations
// tolerated. The loop gives up once the count exceeds it.
const DefaultFailureBudget = 5

// ErrOutOfMemory is returned by engines whose run died of memory exhaustion.
var ErrOutOfMemory = errors.New("repair engine ran out of memory")

// RepairEngine runs exploration attempts. A single call may produce zero, one
// or several attempts, and records every decision it offers into space.
type RepairEngine interface {
	Run(ctx context.Context, sel selector.Selector, tests []string, space *selector.SearchSpace) ([]schemas.Attempt, error)
}

// Summary describes how an exploration loop went.
type Summary struct {
	Iterations int
	// Productive iterations had at least one usable attempt.
	Productive int
	// Empty iterations returned no attempt at all.
	Empty int
	// Discarded iterations returned only exhausted or decision-less failures.
	Discarded int
	// Faults counts engine errors other than memory exhaustion, panics included.
	Faults      int
	OutOfMemory int
	StopReason  schemas.StopReason
}

// Driver owns the bounded multi-run exploration loop. It keeps one engine
// call in flight at a time.
type Driver struct {
	logger  *zap.Logger
	engine  RepairEngine
	budget  int
	limiter *rate.Limiter
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithFailureBudget overrides DefaultFailureBudget. Negative values are ignored.
func WithFailureBudget(n int) Option {
	return func(d *Driver) {
		if n >= 0 {
			d.budget = n
		}
	}
}

// WithRunInterval spaces engine calls at least interval apart. Zero disables
// pacing.
func WithRunInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithClock replaces time.Now for the end-of-campaign timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// NewDriver creates a driver around engine.
func NewDriver(logger *zap.Logger, engine RepairEngine, opts ...Option) *Driver {
	d := &Driver{
		logger:  logger.Named("explore"),
		engine:  engine,
		budget:  DefaultFailureBudget,
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run calls the engine until out is full or more than the failure budget of
// consecutive iterations were unproductive. Empty batches, batches made only of
// exhausted or decision-less failures, and engine faults all count against the
// budget; any productive batch resets it and is admitted up to the target.
// Cancellation is honored between iterations only, in which case ctx's error is
// returned alongside the partial summary. The end time is stamped on out in
// every case.
func (d *Driver) Run(ctx context.Context, sel selector.Selector, tests []string, space *selector.SearchSpace, out *results.Output) (Summary, error) {
	var (
		summary  Summary
		failures int
		runErr   error
	)
	defer func() { out.Finish(d.now()) }()

	d.logger.Info("Starting exploration.",
		zap.String("selector", string(sel.Kind())),
		zap.Int("tests", len(tests)),
		zap.Int("target", out.Target()),
		zap.Int("failure_budget", d.budget))

	for {
		if out.Full() {
			summary.StopReason = schemas.StopTargetReached
			break
		}
		if failures > d.budget {
			summary.StopReason = schemas.StopBudgetExhausted
			d.logger.Warn("Giving up after too many unproductive runs.",
				zap.Int("consecutive_failures", failures),
				zap.Int("collected", out.Len()),
				zap.Int("target", out.Target()))
			break
		}
		if err := ctx.Err(); err != nil {
			summary.StopReason = schemas.StopCancelled
			runErr = err
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			summary.StopReason = schemas.StopCancelled
			runErr = err
			break
		}

		summary.Iterations++
		batch, err := d.call(ctx, sel, tests, space)
		switch {
		case err != nil:
			failures++
			if errors.Is(err, ErrOutOfMemory) {
				summary.OutOfMemory++
			} else {
				summary.Faults++
			}
			d.logger.Warn("Exploration run failed.", zap.Int("consecutive_failures", failures), zap.Error(err))
		case len(batch) == 0:
			failures++
			summary.Empty++
			d.logger.Debug("Exploration run returned no attempt.", zap.Int("consecutive_failures", failures))
		case noProgress(batch):
			failures++
			summary.Discarded++
			d.logger.Debug("Exploration run made no progress; batch discarded.",
				zap.Int("attempts", len(batch)),
				zap.Int("consecutive_failures", failures))
		default:
			failures = 0
			summary.Productive++
			out.Admit(batch)
		}
		d.logProgress(out)
	}

	d.logger.Info("Exploration finished.",
		zap.String("stop_reason", string(summary.StopReason)),
		zap.Int("collected", out.Len()),
		zap.Int("iterations", summary.Iterations))
	return summary, runErr
}

// call runs the engine once, converting a panic into an error.
func (d *Driver) call(ctx context.Context, sel selector.Selector, tests []string, space *selector.SearchSpace) (batch []schemas.Attempt, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Repair engine panicked.",
				zap.Any("panicValue", r),
				zap.String("stack", string(debug.Stack())))
			batch, err = nil, fmt.Errorf("repair engine panicked: %v", r)
		}
	}()
	return d.engine.Run(ctx, sel, tests, space)
}

func (d *Driver) logProgress(out *results.Output) {
	collected, target := out.Len(), out.Target()
	percent := 100
	if target > 0 {
		percent = collected * 100 / target
	}
	d.logger.Info("Exploration progress.",
		zap.Int("collected", collected),
		zap.Int("target", target),
		zap.Int("percent", percent))
}

// noProgress reports whether every attempt of a batch is unusable.
func noProgress(batch []schemas.Attempt) bool {
	for _, a := range batch {
		if !a.NoProgress() {
			return false
		}
	}
	return true
}
