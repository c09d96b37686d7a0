// Package commands implements the caseflow CLI subcommands.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	stdslog "log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/caseflow"
	cflogrus "github.com/unkn0wn-root/caseflow/log/logrus"
	cfslog "github.com/unkn0wn-root/caseflow/log/slog"
	cfzap "github.com/unkn0wn-root/caseflow/log/zap"
)

const (
	envUser   = "CASEFLOW_USER"
	envConfig = "CASEFLOW_CONFIG"
)

var global struct {
	logger   string
	logLevel string
	envFile  string
	config   string
}

func AddGlobalFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.StringVar(&global.logger, "logger", "logrus", "log backend: logrus, zap or slog")
	f.StringVar(&global.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&global.envFile, "env-file", ".env", "dotenv file with CASEFLOW_* overrides")
	f.StringVar(&global.config, "config", "", "profile store (default $CASEFLOW_CONFIG or ~/.caseflow/config.yaml)")
}

// LoadEnv reads the dotenv file, if present. Variables already set in the
// environment win.
func LoadEnv(cmd *cobra.Command) error {
	err := godotenv.Load(global.envFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if cmd.Flags().Changed("env-file") {
		return fmt.Errorf("load %s: %w", global.envFile, err)
	}
	return nil
}

func configPath() string {
	if global.config != "" {
		return global.config
	}
	if p := os.Getenv(envConfig); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".caseflow", "config.yaml")
	}
	return filepath.Join(home, ".caseflow", "config.yaml")
}

func currentUser() string {
	if u := os.Getenv(envUser); u != "" {
		return u
	}
	return os.Getenv("USER")
}

// newLogger builds the selected backend. The returned func flushes it.
func newLogger(cmd *cobra.Command) (caseflow.Logger, func(), error) {
	level := strings.ToLower(global.logLevel)
	switch global.logger {
	case "", "logrus":
		l := logrus.New()
		l.SetOutput(cmd.ErrOrStderr())
		lv, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		l.SetLevel(lv)
		return cflogrus.New(l), func() {}, nil
	case "zap":
		var lv zapcore.Level
		if err := lv.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, err
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lv)
		cfg.OutputPaths = []string{"stderr"}
		l, err := cfg.Build()
		if err != nil {
			return nil, nil, err
		}
		return cfzap.New(l), func() { _ = l.Sync() }, nil
	case "slog":
		var lv stdslog.Level
		if err := lv.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, err
		}
		h := stdslog.NewTextHandler(cmd.ErrOrStderr(), &stdslog.HandlerOptions{Level: lv})
		return cfslog.Logger{L: stdslog.New(h)}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown logger %q", global.logger)
	}
}

func dirOf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.Dir(abs)
	}
	return filepath.Dir(path)
}
