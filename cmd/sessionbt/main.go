// Command sessionbt backtests the DAX two-session strategy and prepares its data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"session-backtest/services/config"
)

const version = "1.0.0"

type globalFlags struct {
	configPath string
	envFile    string
	verbose    bool
	logFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "sessionbt",
		Short:         "DAX intraday two-session backtester",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", ".env file with SBT_* overrides (skipped if missing)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Development logging at debug level")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Also write logs to this file")

	root.AddCommand(
		newRunCmd(g),
		newConvertCmd(g),
		newIngestCmd(g),
		newGenerateCmd(g),
		newServeCmd(g),
	)
	return root
}

// loadConfig reads the config file and environment; callers apply flags and validate.
func (g *globalFlags) loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return config.Config{}, err
	}
	return config.Read(g.configPath)
}

func (g *globalFlags) logger(extraFile string) (*zap.Logger, error) {
	files := []string{}
	if g.logFile != "" {
		files = append(files, g.logFile)
	}
	if extraFile != "" {
		files = append(files, extraFile)
	}
	return newLogger(g.verbose, files...)
}

func newLogger(verbose bool, files ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure log dir: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, f)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
