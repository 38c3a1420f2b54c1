// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Project() ProjectConfig
	Campaign() CampaignConfig
	Engine() EngineConfig
	Synthesis() SynthesisConfig
	Report() ReportConfig

	// Campaign Setters (CLI flag overrides)
	SetCampaignSelector(string)
	SetCampaignLaps(int)
	SetCampaignScope(string)
	SetCampaignStrategy(string)

	// Project Setters
	SetProjectRoot(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	ProjectCfg   ProjectConfig   `mapstructure:"project" yaml:"project"`
	CampaignCfg  CampaignConfig  `mapstructure:"campaign" yaml:"campaign"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	SynthesisCfg SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Project() ProjectConfig     { return c.ProjectCfg }
func (c *Config) Campaign() CampaignConfig   { return c.CampaignCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Synthesis() SynthesisConfig { return c.SynthesisCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetCampaignSelector(s string) { c.CampaignCfg.Selector = s }
func (c *Config) SetCampaignLaps(n int)        { c.CampaignCfg.Laps = n }
func (c *Config) SetCampaignScope(s string)    { c.CampaignCfg.Scope = s }
func (c *Config) SetCampaignStrategy(s string) { c.CampaignCfg.Strategy = s }
func (c *Config) SetProjectRoot(root string)   { c.ProjectCfg.Root = root }

// LoggerConfig holds the logger settings.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. Persistence is
// skipped entirely when URL is empty.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ProjectConfig describes the Maven project under repair.
type ProjectConfig struct {
	Root            string `mapstructure:"root" yaml:"root"`
	LocalRepository string `mapstructure:"local_repository" yaml:"local_repository"`
	// Compiler properties used to derive the compliance level. "-1" means unset.
	JavaVersion string `mapstructure:"java_version" yaml:"java_version"`
	Source      string `mapstructure:"source" yaml:"source"`
	OldSource   string `mapstructure:"old_source" yaml:"old_source"`
	// ReportConcurrency bounds the number of surefire files parsed at once.
	ReportConcurrency int `mapstructure:"report_concurrency" yaml:"report_concurrency"`
}

// CampaignConfig holds the settings of a repair campaign.
type CampaignConfig struct {
	Selector        string        `mapstructure:"selector" yaml:"selector"`
	Laps            int           `mapstructure:"laps" yaml:"laps"`
	Scope           string        `mapstructure:"scope" yaml:"scope"`
	Strategy        string        `mapstructure:"strategy" yaml:"strategy"`
	FailureBudget   int           `mapstructure:"failure_budget" yaml:"failure_budget"`
	RunInterval     time.Duration `mapstructure:"run_interval" yaml:"run_interval"`
	ExceptionFilter string        `mapstructure:"exception_filter" yaml:"exception_filter"`
	OutputDir       string        `mapstructure:"output_dir" yaml:"output_dir"`
	ResultDir       string        `mapstructure:"result_dir" yaml:"result_dir"`
}

// EngineConfig describes how the external repair engine is launched.
type EngineConfig struct {
	// Command is the engine launcher; subcommands and flags are appended to it.
	Command            []string      `mapstructure:"command" yaml:"command"`
	GroupID            string        `mapstructure:"group_id" yaml:"group_id"`
	ArtifactID         string        `mapstructure:"artifact_id" yaml:"artifact_id"`
	Version            string        `mapstructure:"version" yaml:"version"`
	LogFile            string        `mapstructure:"log_file" yaml:"log_file"`
	RunTimeout         time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	ExcludeTestOutputs bool          `mapstructure:"exclude_test_outputs" yaml:"exclude_test_outputs"`
}

// SynthesisConfig holds the settings of the single-shot patch synthesis mode.
type SynthesisConfig struct {
	Command           []string      `mapstructure:"command" yaml:"command"`
	Type              string        `mapstructure:"type" yaml:"type"`
	Localizer         string        `mapstructure:"localizer" yaml:"localizer"`
	Synthesis         string        `mapstructure:"synthesis" yaml:"synthesis"`
	Solver            string        `mapstructure:"solver" yaml:"solver"`
	SolverPath        string        `mapstructure:"solver_path" yaml:"solver_path"`
	MaxTime           time.Duration `mapstructure:"max_time" yaml:"max_time"`
	MaxTimePerFixType time.Duration `mapstructure:"max_time_per_fix_type" yaml:"max_time_per_fix_type"`
	TestTimeout       time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	OutputDir         string        `mapstructure:"output_dir" yaml:"output_dir"`
}

// ReportConfig controls how campaign reports are written and stored.
type ReportConfig struct {
	Format  string `mapstructure:"format" yaml:"format"`
	Persist bool   `mapstructure:"persist" yaml:"persist"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "suture")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Project --
	v.SetDefault("project.root", ".")
	v.SetDefault("project.local_repository", "~/.m2/repository")
	v.SetDefault("project.java_version", "-1")
	v.SetDefault("project.source", "-1")
	v.SetDefault("project.old_source", "-1")
	v.SetDefault("project.report_concurrency", 4)

	// -- Campaign --
	v.SetDefault("campaign.selector", "exploration")
	v.SetDefault("campaign.laps", 100)
	v.SetDefault("campaign.scope", "class")
	v.SetDefault("campaign.strategy", "default")
	v.SetDefault("campaign.failure_budget", 5)
	v.SetDefault("campaign.run_interval", "0s")
	v.SetDefault("campaign.exception_filter", "NullPointerException")
	v.SetDefault("campaign.output_dir", "target/suture")
	v.SetDefault("campaign.result_dir", "target/suture")

	// -- Engine --
	v.SetDefault("engine.command", []string{"java", "-jar", "npefix-engine.jar"})
	v.SetDefault("engine.group_id", "fr.inria.spirals")
	v.SetDefault("engine.artifact_id", "npefix")
	v.SetDefault("engine.version", "0.7")
	v.SetDefault("engine.log_file", "")
	v.SetDefault("engine.run_timeout", "0s")
	v.SetDefault("engine.exclude_test_outputs", false)

	// -- Synthesis --
	v.SetDefault("synthesis.command", []string{"java", "-jar", "nopol.jar"})
	v.SetDefault("synthesis.type", "pre_then_cond")
	v.SetDefault("synthesis.localizer", "gzoltar")
	v.SetDefault("synthesis.synthesis", "dynamoth")
	v.SetDefault("synthesis.solver", "z3")
	v.SetDefault("synthesis.solver_path", "")
	v.SetDefault("synthesis.max_time", "10m")
	v.SetDefault("synthesis.max_time_per_fix_type", "15m")
	v.SetDefault("synthesis.test_timeout", "300s")
	v.SetDefault("synthesis.output_dir", "target/nopol")

	// -- Report --
	v.SetDefault("report.format", "json")
	v.SetDefault("report.persist", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "SUTURE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ProjectCfg.Root == "" {
		return fmt.Errorf("project.root is a required configuration field")
	}
	if c.ProjectCfg.ReportConcurrency <= 0 {
		return fmt.Errorf("project.report_concurrency must be a positive integer")
	}
	if err := c.CampaignCfg.Validate(); err != nil {
		return fmt.Errorf("campaign configuration invalid: %w", err)
	}
	if len(c.EngineCfg.Command) == 0 {
		return fmt.Errorf("engine.command must not be empty")
	}
	if c.EngineCfg.RunTimeout < 0 {
		return fmt.Errorf("engine.run_timeout must not be negative")
	}
	if err := c.ReportCfg.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	if c.ReportCfg.Persist && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("report.persist requires database.url (SUTURE_DATABASE_URL)")
	}
	return nil
}

// Validate checks the campaign configuration. Selector and strategy names are
// resolved against the selector catalogue later, when the campaign starts.
func (cc *CampaignConfig) Validate() error {
	if cc.Laps <= 0 {
		return fmt.Errorf("laps must be greater than 0")
	}
	if cc.FailureBudget < 0 {
		return fmt.Errorf("failure_budget must not be negative")
	}
	if cc.RunInterval < 0 {
		return fmt.Errorf("run_interval must not be negative")
	}
	switch strings.ToLower(cc.Scope) {
	case "class", "package", "stack", "project":
	default:
		return fmt.Errorf("scope %q is not one of class, package, stack, project", cc.Scope)
	}
	if cc.OutputDir == "" || cc.ResultDir == "" {
		return fmt.Errorf("output_dir and result_dir are required")
	}
	return nil
}

// Validate checks the report configuration.
func (r *ReportConfig) Validate() error {
	switch r.Format {
	case "json", "brotli", "sarif":
		return nil
	default:
		return fmt.Errorf("unsupported report format %q", r.Format)
	}
}
