package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagKeys maps command-line flags onto configuration keys. Only flags the
// user actually set override the file and environment.
var flagKeys = map[string]string{
	"root":             "project.root",
	"format":           "report.format",
	"persist":          "report.persist",
	"failure-budget":   "campaign.failure_budget",
	"exception-filter": "campaign.exception_filter",
	"run-interval":     "campaign.run_interval",
	"engine-timeout":   "engine.run_timeout",
	"log-level":        "logger.level",
}

// NewRootCommand builds a fresh command tree. Each call returns an
// independent instance, so flags never leak between executions.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "suture",
		Short:         "Suture orchestrates automated program-repair campaigns.",
		Long:          "Suture reads the failing tests of a Maven project, drives a runtime repair engine over them and records every repair attempt.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "suture"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting suture", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./suture.yaml)")
	rootCmd.PersistentFlags().String("root", "", "Root directory of the Maven project. (Overrides config/env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error. (Overrides config/env)")

	rootCmd.AddCommand(newRepairCmd(NewStoreProvider()))
	rootCmd.AddCommand(newTriageCmd())
	rootCmd.AddCommand(newSynthCmd(newSynthRepairer))
	rootCmd.AddCommand(newReportCmd())
	return rootCmd
}

// Execute runs the command tree against os.Args. Cancellation of ctx is
// reported to the caller unchanged so it can pick the exit code.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command interrupted.")
		return err
	}
	observability.GetLogger().Error("Command execution failed", zap.Error(err))
	return err
}

// initializeConfig reads the config file and environment into v, then binds
// the flags of the executing command.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("suture")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SUTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	return bindFlags(cmd.Flags(), v)
}

// bindFlags binds every flag of flags that has a configuration key.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}

// applyProjectArg lets a positional project root override the configured one.
func applyProjectArg(cfg config.Interface, args []string) {
	if len(args) > 0 && args[0] != "" {
		cfg.SetProjectRoot(args[0])
	}
}
