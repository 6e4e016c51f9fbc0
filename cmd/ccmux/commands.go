package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/pidfile"
)

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	port := fs.Int("port", 0, "Override the configured listen port")
	fs.IntVar(port, "p", 0, "Override the configured listen port (shorthand)")
	detach := fs.Bool("detach", false, "Run as a detached background process")
	fs.BoolVar(detach, "d", false, "Run as a detached background process (shorthand)")
	configFlag := fs.String("config", "", "Path to config file")
	fs.StringVar(configFlag, "c", "", "Path to config file (shorthand)")
	fs.Parse(args)

	configPath := resolveConfigPath(configFlag)

	if *detach {
		startDetached(configPath, *port)
		return
	}

	if existing, err := pidfile.Read(); err == nil && pidfile.IsRunning(existing) {
		fmt.Fprintf(os.Stderr, "Error: service is already running (PID: %d)\n", existing)
		fmt.Fprintln(os.Stderr, "Use 'ccmux stop' to stop it first, or 'ccmux start -d' to restart it")
		os.Exit(1)
	}
	_ = pidfile.Cleanup()

	startForeground(configPath, *port)
}

func startForeground(configPath string, portOverride int) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if portOverride != 0 {
		cfg.Server.Port = portOverride
	}

	logger := initLogger(cfg.Server)
	defer logger.Sync()

	if err := pidfile.Write(); err != nil {
		logger.Warn("failed to write pid file", zap.Error(err))
	}
	defer pidfile.Cleanup()

	fmt.Printf("ccmux starting on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Router configuration:")
	fmt.Printf("  default: %s\n", cfg.Router.Default)
	if cfg.Router.Background != "" {
		fmt.Printf("  background: %s\n", cfg.Router.Background)
	}
	if cfg.Router.Think != "" {
		fmt.Printf("  think: %s\n", cfg.Router.Think)
	}
	if cfg.Router.Websearch != "" {
		fmt.Printf("  websearch: %s\n", cfg.Router.Websearch)
	}
	fmt.Println("Press Ctrl+C to stop")

	gw, err := newGatewayServer(cfg, configPath, logger)
	if err != nil {
		logger.Fatal("failed to build gateway", zap.Error(err))
	}
	if err := gw.Start(); err != nil {
		logger.Fatal("failed to start gateway", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gw.Run(ctx); err != nil {
		logger.Error("gateway exited with error", zap.Error(err))
	}
	logger.Info("ccmux stopped")
}

// startDetached re-execs the current binary as `ccmux start` without -d,
// stopping any existing instance first, and detaches it into its own
// session so it outlives the invoking shell.
func startDetached(configPath string, port int) {
	fmt.Println("Starting ccmux in background...")

	if existing, err := pidfile.Read(); err == nil && pidfile.IsRunning(existing) {
		fmt.Println("Stopping existing service...")
		if err := stopPID(existing); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop existing service: %v\n", err)
		}
	}
	_ = pidfile.Cleanup()

	if err := spawnBackground(configPath, port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start in background: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(processTransitionGrace)

	if pid, err := pidfile.Read(); err == nil {
		fmt.Printf("Started ccmux in background (PID: %d)\n", pid)
	} else {
		fmt.Println("Started ccmux in background")
	}
}

func spawnBackground(configPath string, port int) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	args := []string{"start"}
	if port != 0 {
		args = append(args, "--port", fmt.Sprint(port))
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	cmd := exec.Command(exePath, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	return cmd.Start()
}

func stopPID(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}
	time.Sleep(processTransitionGrace)
	return nil
}

func runStop(args []string) {
	fmt.Println("Stopping ccmux...")
	pid, err := pidfile.Read()
	if err != nil || !pidfile.IsRunning(pid) {
		fmt.Println("Service is not running")
		_ = pidfile.Cleanup()
		return
	}

	if err := stopPID(pid); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop service (PID: %d): %v\n", pid, err)
		os.Exit(1)
	}
	fmt.Println("Service stopped successfully")
	_ = pidfile.Cleanup()
}

func runRestart(args []string) {
	fs := flag.NewFlagSet("restart", flag.ExitOnError)
	detach := fs.Bool("detach", false, "Run as a detached background process")
	fs.BoolVar(detach, "d", false, "Run as a detached background process (shorthand)")
	configFlag := fs.String("config", "", "Path to config file")
	fs.StringVar(configFlag, "c", "", "Path to config file (shorthand)")
	fs.Parse(args)

	configPath := resolveConfigPath(configFlag)

	wasRunning := false
	if pid, err := pidfile.Read(); err == nil && pidfile.IsRunning(pid) {
		fmt.Println("Stopping existing service...")
		if err := stopPID(pid); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop existing service: %v\n", err)
		} else {
			wasRunning = true
		}
	}
	_ = pidfile.Cleanup()

	if *detach {
		if err := spawnBackground(configPath, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start in background: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(processTransitionGrace)
		verb := "started"
		if wasRunning {
			verb = "restarted"
		}
		if pid, err := pidfile.Read(); err == nil {
			fmt.Printf("Service %s successfully (PID: %d)\n", verb, pid)
		} else {
			fmt.Printf("Service %s successfully\n", verb)
		}
		return
	}

	startForeground(configPath, 0)
}

func runStatus(args []string) {
	fmt.Println("Checking service status...")
	pid, err := pidfile.Read()
	if err != nil {
		fmt.Println("Service is not running")
		return
	}
	if pidfile.IsRunning(pid) {
		fmt.Printf("Service is running (PID: %d)\n", pid)
		return
	}
	fmt.Println("Service is not running (stale PID file)")
	_ = pidfile.Cleanup()
}

func runModel(args []string) {
	fs := flag.NewFlagSet("model", flag.ExitOnError)
	configFlag := fs.String("config", "", "Path to config file")
	fs.StringVar(configFlag, "c", "", "Path to config file (shorthand)")
	fs.Parse(args)

	configPath := resolveConfigPath(configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Model configuration")
	fmt.Println()
	fmt.Println("Configured models:")
	fmt.Printf("  default: %s\n", cfg.Router.Default)
	if cfg.Router.Think != "" {
		fmt.Printf("  think: %s\n", cfg.Router.Think)
	}
	if cfg.Router.Websearch != "" {
		fmt.Printf("  websearch: %s\n", cfg.Router.Websearch)
	}
	if cfg.Router.Background != "" {
		fmt.Printf("  background: %s\n", cfg.Router.Background)
	}
	fmt.Println()
	fmt.Println("Providers:")
	for _, p := range cfg.Providers {
		if p.IsEnabled() {
			fmt.Printf("  %s (%s)\n", p.Name, p.ProviderType)
		}
	}
}

func runInstallStatusline(args []string) {
	fmt.Println("Installing statusline script")
	fmt.Println()

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not find home directory: %v\n", err)
		os.Exit(1)
	}
	ccmuxDir := filepath.Join(home, ".ccmux")
	if err := os.MkdirAll(ccmuxDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", ccmuxDir, err)
		os.Exit(1)
	}

	scriptPath := filepath.Join(ccmuxDir, "statusline.sh")
	if err := os.WriteFile(scriptPath, []byte(statuslineScript), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write statusline script: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Statusline script installed to: %s\n", scriptPath)
	fmt.Println()
	fmt.Println("To use it, add this to ~/.claude/settings.json:")
	fmt.Println()
	fmt.Println("  {")
	fmt.Println(`    "statusLine": {`)
	fmt.Println(`      "type": "command",`)
	fmt.Printf("      \"command\": %q,\n", scriptPath)
	fmt.Println(`      "padding": 0`)
	fmt.Println("    }")
	fmt.Println("  }")
	fmt.Println()
	fmt.Println("The statusline will show: model@provider (route-type) HH:MM:SS")
	fmt.Println("Example: claude-sonnet-4@anthropic (default) 14:23:45")
}

// statuslineScript reads the routing-info side file ccmux writes on every
// successful dispatch (internal/dispatch/routing_info.go) and prints the
// latest entry. jq is the only dependency; it already appears throughout
// the pack's shell tooling.
const statuslineScript = `#!/bin/sh
# ccmux statusline helper: prints "model@provider (route-type) HH:MM:SS"
# from the most recent routing decision.
set -eu

ROUTING_FILE="${HOME}/.ccmux/last_routing.json"

if [ ! -f "$ROUTING_FILE" ]; then
  echo "ccmux: no routing data yet"
  exit 0
fi

jq -r '"\(.model)@\(.provider) (\(.route_type)) \(.timestamp)"' "$ROUTING_FILE" 2>/dev/null \
  || echo "ccmux: unable to read routing data"
`
