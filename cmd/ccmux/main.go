// =============================================================================
// ccmux entry point
// =============================================================================
// Multi-provider LLM gateway: accepts Anthropic Messages-format requests and
// OpenAI Chat-Completions-format requests, routes each to a configured
// model, and dispatches through an ordered fallback chain of providers.
//
// Usage:
//
//	ccmux start [-p PORT] [-d]     # start the gateway (-d: detached/background)
//	ccmux stop                     # stop a running background instance
//	ccmux restart [-d]             # restart, preserving -d semantics
//	ccmux status                   # report whether the service is running
//	ccmux model                    # print the configured router model slots
//	ccmux install-statusline       # install the statusline helper script
//
// Global flag -c/--config PATH overrides the default config file location.
// =============================================================================

package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elidickinson/ccmux-go/internal/config"
)

const processTransitionGrace = 500 * time.Millisecond

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "restart":
		runRestart(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "model":
		runModel(os.Args[2:])
	case "install-statusline":
		runInstallStatusline(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// resolveConfigPath returns *configFlag if set, otherwise the default
// config path.
func resolveConfigPath(configFlag *string) string {
	if *configFlag != "" {
		return *configFlag
	}
	path, err := config.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve default config path: %v\n", err)
		os.Exit(1)
	}
	return path
}

func printUsage() {
	fmt.Println(`ccmux - multi-provider LLM gateway

Usage:
  ccmux <command> [options]

Commands:
  start               Start the gateway
  stop                Stop a running background instance
  restart             Restart the gateway
  status              Check whether the service is running
  model               Print the configured router model slots
  install-statusline  Install the statusline helper script
  help                Show this help message

Options for 'start':
  -p, --port <port>  Override the configured listen port
  -d, --detach        Run as a detached background process

Options for 'restart':
  -d, --detach        Run as a detached background process

Global options:
  -c, --config <path>  Path to the TOML config file (default: ~/.ccmux/config.toml)

Examples:
  ccmux start
  ccmux start -p 9090 -d
  ccmux stop
  ccmux status
  ccmux model
  ccmux install-statusline`)
}

func initLogger(cfg config.ServerConfig) *zap.Logger {
	levelStr := cfg.LogLevel
	if env := os.Getenv("CCMUX_LOG"); env != "" {
		levelStr = env
	}

	var level zapcore.Level
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
