// extimer-bridge advertises shell capabilities to the ExTimer application over
// D-Bus and exposes the timer to local tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/extimer-bridge/internal/cli"
	"github.com/nikicat/extimer-bridge/internal/config"
	"github.com/nikicat/extimer-bridge/internal/daemon"
	"github.com/nikicat/extimer-bridge/internal/logging"
	"github.com/nikicat/extimer-bridge/internal/service"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

const defaultShutdownTimeout = 5 * time.Second

var progName = filepath.Base(os.Args[0])

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "call":
		runCall(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "service":
		runService(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options]

Commands:
  serve         Own org.gnome.ExTimer.Extension and serve the local API
  status        Show the extension and timer state
  call          Call a timer method (e.g. call Start, call SetState pomodoro 0)
  watch         Stream extension and timer events
  service       Manage the systemd user service

Run '%s <command> -h' for command-specific help.
`, progName, progName)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/extimer-bridge/config.yaml)")
	busAddress := fs.String("bus-address", "", "D-Bus address to connect to (default: session bus)")
	capsFlag := fs.String("capabilities", "", "Comma-separated capabilities to advertise (default: all)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text (colored) or json")
	listen := fs.String("listen", defaultSocketPath(), "Unix socket path for the local API (empty disables it)")
	shutdownTimeout := fs.Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful API shutdown timeout")
	autoStart := fs.Bool("auto-start", true, "Let API timer calls start the timer application")
	fs.Parse(args)

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	set := setFlags(fs)
	if !set["bus-address"] && cfg.BusAddress != "" {
		*busAddress = cfg.BusAddress
	}
	if !set["log-level"] && cfg.LogLevel != "" {
		*logLevel = cfg.LogLevel
	}
	if !set["log-format"] && cfg.LogFormat != "" {
		*logFormat = cfg.LogFormat
	}
	if !set["listen"] && cfg.Serve.Listen != "" {
		*listen = cfg.Serve.Listen
	}
	if !set["shutdown-timeout"] && cfg.Serve.ShutdownTimeout != 0 {
		*shutdownTimeout = time.Duration(cfg.Serve.ShutdownTimeout)
	}
	if !set["auto-start"] {
		*autoStart = cfg.AutoStart()
	}
	capabilities := cfg.Capabilities
	if set["capabilities"] {
		capabilities = splitList(*capsFlag)
	}

	var level slog.LevelVar
	level.Set(logging.ParseLevel(*logLevel))
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, *logFormat, &level, logging.UnderSystemd())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = daemon.Run(ctx, daemon.Config{
		BusAddress:      *busAddress,
		Capabilities:    capabilities,
		Listen:          *listen,
		ShutdownTimeout: *shutdownTimeout,
		AutoStart:       *autoStart,
		ConfigPath:      path,
		LogLevel:        &level,
	})
	if err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/extimer-bridge/config.yaml)")
	socket := fs.String("socket", defaultSocketPath(), "Unix socket path of the daemon API")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Parse(args)

	client := cli.NewClient(resolveSocket(fs, *configPath, *socket))
	status, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	snap, timerErr := client.Timer()

	cli.NewFormatter(os.Stdout, *jsonOutput).FormatStatus(status, snap, timerErr)
}

func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/extimer-bridge/config.yaml)")
	socket := fs.String("socket", defaultSocketPath(), "Unix socket path of the daemon API")
	direct := fs.Bool("direct", false, "Call the timer on the session bus instead of through the daemon")
	busAddress := fs.String("bus-address", "", "D-Bus address for --direct (default: session bus)")
	noAutoStart := fs.Bool("no-auto-start", false, "With --direct, fail instead of starting the timer application")
	timeout := fs.Duration("timeout", 10*time.Second, "Call timeout")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s call [options] <method> [args...]\n\nMethods:\n", progName)
		for _, m := range timer.Methods() {
			fmt.Fprintf(os.Stderr, "  %s\n", timer.Usage(m))
		}
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	method, methodArgs := fs.Arg(0), fs.Args()[1:]

	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, "text", logging.ParseLevel(*logLevel), false)))

	var err error
	if *direct {
		cfg, _, cfgErr := loadConfig(*configPath)
		if cfgErr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", cfgErr)
			os.Exit(1)
		}
		if !setFlags(fs)["bus-address"] && cfg.BusAddress != "" {
			*busAddress = cfg.BusAddress
		}
		err = callDirect(*busAddress, !*noAutoStart, *timeout, method, methodArgs)
	} else {
		err = cli.NewClient(resolveSocket(fs, *configPath, *socket)).Call(method, methodArgs)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, timer.ErrUnknownMethod) || errors.Is(err, timer.ErrBadArguments) {
			fs.Usage()
		}
		os.Exit(1)
	}
	cli.NewFormatter(os.Stdout, *jsonOutput).FormatAction(method)
}

func callDirect(busAddress string, autoStart bool, timeout time.Duration, method string, args []string) error {
	var conn *dbus.Conn
	var err error
	if busAddress == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(busAddress)
	}
	if err != nil {
		return fmt.Errorf("connect to D-Bus: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err = timer.Invoke(ctx, timer.Bind(conn, timer.Options{AutoStart: autoStart}), method, args)
	logging.New(nil, "cli").LogCall(ctx, method, args, err)
	return err
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/extimer-bridge/config.yaml)")
	socket := fs.String("socket", defaultSocketPath(), "Unix socket path of the daemon API")
	jsonOutput := fs.Bool("json", false, "Output one JSON object per event")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	formatter := cli.NewFormatter(os.Stdout, *jsonOutput)
	err := cli.NewClient(resolveSocket(fs, *configPath, *socket)).Watch(ctx, func(msg cli.Message) {
		formatter.FormatMessage(msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runService(args []string) {
	if len(args) == 0 {
		printServiceUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "install":
		runServiceInstall(args[1:])
	case "uninstall":
		if err := service.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "status":
		service.Status()
	case "-h", "--help", "help":
		printServiceUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown service command: %s\n\n", args[0])
		printServiceUsage()
		os.Exit(1)
	}
}

func runServiceInstall(args []string) {
	fs := flag.NewFlagSet("service install", flag.ExitOnError)
	start := fs.Bool("start", false, "Start the service immediately after installing")
	configPath := fs.String("config", "", "Config file path to embed in the unit file")
	fs.Parse(args)

	if err := service.Install(service.Options{
		ConfigPath: *configPath,
		Start:      *start,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printServiceUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s service <command> [options]

Commands:
  install       Install and enable the systemd user service
  uninstall     Stop, disable and remove the systemd user service
  status        Show systemd status of the service
`, progName)
}

// defaultSocketPath returns $XDG_RUNTIME_DIR/extimer-bridge/api.sock, or ""
// when XDG_RUNTIME_DIR is unset.
func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return ""
	}
	return filepath.Join(runtimeDir, "extimer-bridge", "api.sock")
}

// resolveSocket applies the config file's serve.listen unless --socket was given.
func resolveSocket(fs *flag.FlagSet, configPath, socket string) string {
	if !setFlags(fs)["socket"] {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if cfg.Serve.Listen != "" {
			socket = cfg.Serve.Listen
		}
	}
	if socket == "" {
		fmt.Fprintln(os.Stderr, "error: no API socket (set --socket or XDG_RUNTIME_DIR)")
		os.Exit(1)
	}
	return socket
}

// loadConfig loads a config file and returns it with the path it came from.
// An explicit path that doesn't exist is an error.
func loadConfig(explicitPath string) (*config.Config, string, error) {
	if explicitPath != "" {
		if _, statErr := os.Stat(explicitPath); statErr != nil {
			return nil, "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		cfg, err := config.Load(explicitPath)
		if err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", explicitPath, err)
		}
		return cfg, explicitPath, nil
	}

	defaultPath := config.DefaultPath()
	if defaultPath == "" {
		return &config.Config{}, "", nil
	}
	cfg, err := config.Load(defaultPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", defaultPath, err)
	}
	return cfg, defaultPath, nil
}

// setFlags returns the set of flag names that were explicitly provided on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	m := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { m[f.Name] = true })
	return m
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
