package synth

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/suture/internal/config"
)

// Accepted enumeration values, in the order they are reported.
var (
	StatementTypes = []string{"conditional", "precondition", "pre_then_cond", "cond_then_pre"}
	Localizers     = []string{"gzoltar", "dumb", "ochiai", "cocospoon"}
	Syntheses      = []string{"smt", "dynamoth"}
	Solvers        = []string{"z3", "cvc4"}
)

// Options tunes one synthesis run.
type Options struct {
	Type       string `json:"type"`
	Localizer  string `json:"localizer"`
	Synthesis  string `json:"synthesis"`
	Solver     string `json:"solver"`
	SolverPath string `json:"solver_path,omitempty"`

	MaxTime           time.Duration `json:"-"`
	MaxTimePerFixType time.Duration `json:"-"`
	TestTimeout       time.Duration `json:"-"`

	ComplianceLevel int    `json:"compliance_level"`
	OutputDir       string `json:"output_dir"`
}

// OptionsFromConfig copies the synthesis section of the configuration.
func OptionsFromConfig(cfg config.SynthesisConfig) Options {
	return Options{
		Type:              cfg.Type,
		Localizer:         cfg.Localizer,
		Synthesis:         cfg.Synthesis,
		Solver:            cfg.Solver,
		SolverPath:        cfg.SolverPath,
		MaxTime:           cfg.MaxTime,
		MaxTimePerFixType: cfg.MaxTimePerFixType,
		TestTimeout:       cfg.TestTimeout,
		OutputDir:         cfg.OutputDir,
	}
}

// Normalize lowercases the enumerations, validates them and resolves the
// solver path. SMT synthesis with z3 needs an existing solver binary.
func (o Options) Normalize() (Options, error) {
	var err error
	if o.Type, err = oneOf("Type", o.Type, StatementTypes); err != nil {
		return o, err
	}
	if o.Localizer, err = oneOf("Localizer", o.Localizer, Localizers); err != nil {
		return o, err
	}
	if o.Synthesis, err = oneOf("Synthesis", o.Synthesis, Syntheses); err != nil {
		return o, err
	}
	if o.Solver, err = oneOf("Solver", o.Solver, Solvers); err != nil {
		return o, err
	}

	if o.Synthesis != "smt" || o.Solver != "z3" {
		o.SolverPath = ""
		return o, nil
	}
	if o.SolverPath == "" {
		return o, fmt.Errorf("synthesis.solver_path is required for smt synthesis with z3")
	}
	path, err := homedir.Expand(o.SolverPath)
	if err != nil {
		return o, fmt.Errorf("failed to expand solver path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return o, fmt.Errorf("solver binary not usable: %w", err)
	}
	o.SolverPath = path
	return o, nil
}

func oneOf(field, value string, accepted []string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if slices.Contains(accepted, v) {
		return v, nil
	}
	return "", fmt.Errorf("%s value %q is wrong. Only following values are accepted: %s", field, value, strings.Join(accepted, ", "))
}
