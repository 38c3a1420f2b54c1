// internal/engine/process.go
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/classpath"
	"github.com/xkilldash9x/suture/internal/explore"
	"github.com/xkilldash9x/suture/internal/selector"
)

// execCommandContext is swapped in tests.
var execCommandContext = exec.CommandContext

// stderrTail bounds how much of the engine's stderr is kept for error messages.
const stderrTail = 8 * 1024

// logSettle bounds the wait for the log watcher after a failed engine call. It
// covers a few polls of the tail.
var logSettle = time.Second

// Config describes one engine instance for one campaign.
type Config struct {
	// Command is the launcher, e.g. ["java", "-jar", "npefix.jar"].
	Command []string
	// WorkDir is the directory the engine runs in.
	WorkDir string

	Sources         []string
	Classpath       []string
	BinDir          string
	OutputDir       string
	ComplianceLevel int
	RepairStrategy  selector.RepairStrategy

	// RunTimeout bounds each Run or RunStrategies call. Zero means no bound.
	RunTimeout time.Duration
	// LogFile is the engine's diagnostic log. Empty disables the watcher.
	LogFile string
}

// Process drives the external repair engine, one subprocess per call.
type Process struct {
	logger  *zap.Logger
	cfg     Config
	watcher *LogWatcher

	instrumentOnce sync.Once
	instrumentErr  error
	instrumented   bool
}

var (
	_ explore.RepairEngine = (*Process)(nil)
	_ explore.SweepEngine  = (*Process)(nil)
)

// New validates cfg and starts the log watcher when a log file is configured.
func New(logger *zap.Logger, cfg Config) (*Process, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("engine command is empty")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("engine needs at least one source location")
	}
	if cfg.RepairStrategy == "" {
		cfg.RepairStrategy = selector.RepairDefault
	}

	p := &Process{logger: logger.Named("engine"), cfg: cfg}
	if cfg.LogFile != "" {
		w, err := WatchLog(p.logger, cfg.LogFile)
		if err != nil {
			return nil, err
		}
		p.watcher = w
	}
	return p, nil
}

// Instrument prepares the sources once. Later calls return the first result.
func (p *Process) Instrument(ctx context.Context) error {
	p.instrumentOnce.Do(func() {
		p.logger.Info("Instrumenting sources.",
			zap.Int("sources", len(p.cfg.Sources)),
			zap.Int("compliance_level", p.cfg.ComplianceLevel))
		started := time.Now()
		if _, err := p.invoke(ctx, append([]string{"instrument"}, p.commonArgs()...), nil, false); err != nil {
			p.instrumentErr = fmt.Errorf("failed to instrument sources: %w", err)
			return
		}
		p.instrumented = true
		p.logger.Info("Instrumentation complete.", zap.Duration("took", time.Since(started)))
	})
	return p.instrumentErr
}

// Run performs one exploration call with the given selector.
func (p *Process) Run(ctx context.Context, sel selector.Selector, tests []string, space *selector.SearchSpace) ([]schemas.Attempt, error) {
	if !p.instrumented {
		return nil, fmt.Errorf("engine run before instrumentation")
	}
	args := append([]string{"run"}, p.commonArgs()...)
	args = append(args,
		"--selector", string(sel.Kind()),
		"--strategies", strings.Join(selector.EngineNames(sel.Strategies()), ","),
		"--multi-point="+strconv.FormatBool(sel.MultiPoint()),
		"--tests", strings.Join(tests, ","),
	)
	return p.invoke(ctx, args, space, true)
}

// RunStrategies applies each strategy once, in order, in a single call.
func (p *Process) RunStrategies(ctx context.Context, tests []string, strategies []selector.Strategy, space *selector.SearchSpace) ([]schemas.Attempt, error) {
	if !p.instrumented {
		return nil, fmt.Errorf("engine sweep before instrumentation")
	}
	args := append([]string{"sweep"}, p.commonArgs()...)
	args = append(args,
		"--strategies", strings.Join(selector.EngineNames(strategies), ","),
		"--tests", strings.Join(tests, ","),
	)
	return p.invoke(ctx, args, space, true)
}

// Close stops the log watcher.
func (p *Process) Close() error {
	if p.watcher != nil {
		p.watcher.Stop()
		p.logger.Debug("Engine log watcher stopped.", zap.Int64("lines", p.watcher.Lines()))
	}
	return nil
}

func (p *Process) commonArgs() []string {
	args := []string{
		"--sources", classpath.Join(p.cfg.Sources),
		"--repair-strategy", string(p.cfg.RepairStrategy),
	}
	if len(p.cfg.Classpath) > 0 {
		args = append(args, "--classpath", classpath.Join(p.cfg.Classpath))
	}
	if p.cfg.BinDir != "" {
		args = append(args, "--bin", p.cfg.BinDir)
	}
	if p.cfg.OutputDir != "" {
		args = append(args, "--output", p.cfg.OutputDir)
	}
	if p.cfg.ComplianceLevel > 0 {
		args = append(args, "--compliance", strconv.Itoa(p.cfg.ComplianceLevel))
	}
	return args
}

// invoke runs the engine with args and decodes its output. When bounded is
// set, RunTimeout applies.
func (p *Process) invoke(ctx context.Context, args []string, space *selector.SearchSpace, bounded bool) ([]schemas.Attempt, error) {
	if bounded && p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}
	if p.watcher != nil {
		p.watcher.Reset()
	}

	command := append(append([]string(nil), p.cfg.Command[1:]...), args...)
	cmd := execCommandContext(ctx, p.cfg.Command[0], command...)
	cmd.Dir = p.cfg.WorkDir
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach to engine output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	attempts, decodeErr := decodeStream(stdout, space, p.logger)
	// Drain whatever is left so the engine never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if p.outOfMemory(stderr.String(), waitErr != nil) {
		return nil, fmt.Errorf("engine %s: %w", args[0], explore.ErrOutOfMemory)
	}
	if waitErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("engine %s timed out after %s: %w", args[0], p.cfg.RunTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("engine %s failed: %w: %s", args[0], waitErr, strings.TrimSpace(stderr.String()))
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return attempts, nil
}

// outOfMemory checks stderr and then the log watcher. After a failed call the
// watcher is given logSettle to read the last lines the engine wrote.
func (p *Process) outOfMemory(stderr string, failed bool) bool {
	if strings.Contains(stderr, oomMarker) {
		return true
	}
	if p.watcher == nil {
		return false
	}
	if failed {
		return p.watcher.WaitOutOfMemory(logSettle)
	}
	return p.watcher.OutOfMemory()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
