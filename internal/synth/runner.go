// Package synth runs a single black-box patch synthesis over the failing test
// classes of a project.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// execCommandContext is swapped in tests.
var execCommandContext = exec.CommandContext

// ErrNoFailingTests is returned when there is nothing to repair.
var ErrNoFailingTests = errors.New("no failing test classes to repair")

// Request is written to the synthesizer's stdin.
type Request struct {
	FailingTests []string `json:"failing_tests"`
	Sources      []string `json:"sources"`
	Classpath    []string `json:"classpath"`
	Options      Options  `json:"options"`

	MaxTimeMinutes           int `json:"max_time_minutes"`
	MaxTimePerFixTypeMinutes int `json:"max_time_per_fix_type_minutes"`
	TestTimeoutSeconds       int `json:"test_timeout_seconds"`
}

// Patch is one synthesized change.
type Patch struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Kind string `json:"kind,omitempty"`
	Text string `json:"patch"`
}

// Result is the synthesizer's structured answer.
type Result struct {
	Status         string  `json:"status"`
	DurationMillis int64   `json:"duration_ms"`
	AngelicValues  int     `json:"angelic_values"`
	Statements     int     `json:"statements"`
	Patches        []Patch `json:"patches"`
}

// Duration is how long the synthesis took on the synthesizer's side.
func (r *Result) Duration() time.Duration {
	return time.Duration(r.DurationMillis) * time.Millisecond
}

// Runner invokes the synthesizer command.
type Runner struct {
	logger  *zap.Logger
	command []string
	workDir string
}

// NewRunner builds a runner for command, executed from workDir.
func NewRunner(logger *zap.Logger, command []string, workDir string) (*Runner, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("synthesis command is empty")
	}
	return &Runner{logger: logger.Named("synth"), command: command, workDir: workDir}, nil
}

// Repair validates req, runs the synthesizer once and returns its result.
func (r *Runner) Repair(ctx context.Context, req Request) (*Result, error) {
	if len(req.FailingTests) == 0 {
		return nil, ErrNoFailingTests
	}
	opts, err := req.Options.Normalize()
	if err != nil {
		return nil, err
	}
	if opts.OutputDir != "" {
		if opts.OutputDir, err = filepath.Abs(opts.OutputDir); err != nil {
			return nil, fmt.Errorf("failed to resolve synthesis output directory: %w", err)
		}
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create synthesis output directory: %w", err)
		}
	}
	req.Options = opts
	req.MaxTimeMinutes = int(opts.MaxTime / time.Minute)
	req.MaxTimePerFixTypeMinutes = int(opts.MaxTimePerFixType / time.Minute)
	req.TestTimeoutSeconds = int(opts.TestTimeout / time.Second)

	r.logger.Info(fmt.Sprintf("%d detected failing test classes.", len(req.FailingTests)),
		zap.Strings("tests", req.FailingTests))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	if opts.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.MaxTime)
		defer cancel()
	}

	cmd := execCommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = r.workDir
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("synthesis exceeded %s: %w", opts.MaxTime, ctx.Err())
		}
		return nil, fmt.Errorf("synthesis command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var res Result
	if err := json.Unmarshal(lastLine(stdout.Bytes()), &res); err != nil {
		return nil, fmt.Errorf("failed to decode synthesis result: %w", err)
	}
	r.logResult(&res)
	return &res, nil
}

func (r *Runner) logResult(res *Result) {
	r.logger.Info("Synthesis finished.",
		zap.String("status", res.Status),
		zap.Duration("duration", res.Duration()),
		zap.Int("angelic_values", res.AngelicValues),
		zap.Int("statements", res.Statements),
		zap.Int("patches", len(res.Patches)))
	for _, p := range res.Patches {
		r.logger.Info("Obtained patch.", zap.String("file", p.File), zap.Int("line", p.Line), zap.String("patch", p.Text))
	}
}

// lastLine returns the final non-empty line; the synthesizer may print progress first.
func lastLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return bytes.TrimSpace(lines[len(lines)-1])
}
