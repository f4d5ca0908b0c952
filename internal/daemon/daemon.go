package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/extimer-bridge/internal/api"
	"github.com/nikicat/extimer-bridge/internal/capabilities"
	"github.com/nikicat/extimer-bridge/internal/config"
	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
	"github.com/nikicat/extimer-bridge/internal/extension"
	"github.com/nikicat/extimer-bridge/internal/logging"
	"github.com/nikicat/extimer-bridge/internal/notification"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

const defaultShutdownTimeout = 5 * time.Second

// Config holds daemon startup parameters.
type Config struct {
	// BusAddress is the D-Bus address to connect to.
	// Empty means the session bus. Non-empty connects to a custom address,
	// which integration tests use to point at a private dbus-daemon.
	BusAddress string

	// Capabilities advertised on the extension object. Empty means the
	// default list.
	Capabilities []string

	// Listen is the Unix socket path for the HTTP API. Empty disables it.
	Listen string

	// ShutdownTimeout bounds the graceful API shutdown. Zero means 5s.
	ShutdownTimeout time.Duration

	// AutoStart lets timer calls from the API activate the timer application.
	AutoStart bool

	// ConfigPath is watched for changes when LogLevel is set; reloads
	// adjust the log level.
	ConfigPath string
	LogLevel   *slog.LevelVar
}

// Run connects to the bus, exports the capabilities object, requests
// org.gnome.ExTimer.Extension, starts the API when configured, sends
// READY=1 via sd-notify and blocks until ctx is cancelled. Returns nil on
// clean shutdown.
func Run(ctx context.Context, cfg Config) error {
	var conn *dbus.Conn
	var err error
	if cfg.BusAddress == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(cfg.BusAddress)
	}
	if err != nil {
		return fmt.Errorf("connect to D-Bus: %w", err)
	}
	defer conn.Close()

	caps := capabilities.New(cfg.Capabilities)
	svc, err := extension.New(conn, caps.Names())
	if err != nil {
		return fmt.Errorf("create extension service: %w", err)
	}
	defer svc.Destroy()

	svc.Subscribe(extension.EventAcquired, func(ev extension.Event) {
		SdNotify("STATUS=Owning " + ev.Name)
	})
	svc.Subscribe(extension.EventLost, func(ev extension.Event) {
		SdNotify("STATUS=Waiting for " + ev.Name)
	})

	tm := timer.Bind(conn, timer.Options{AutoStart: cfg.AutoStart})

	if caps.Has(capabilities.Notifications) {
		stop, err := startNotifications(ctx, conn, svc, tm)
		if err != nil {
			slog.Warn("desktop notifications disabled", "error", err)
		} else {
			defer stop()
		}
	}

	svc.Run()

	var server *api.Server
	if cfg.Listen != "" {
		ws := api.NewWSHandler(svc, tm)
		defer ws.Close()

		server, err = api.NewServer(cfg.Listen, api.NewHandlers(svc, tm, logging.New(nil, "api")), ws)
		if err != nil {
			return fmt.Errorf("create API server: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("start API server: %w", err)
		}
		go func() {
			if err := ws.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("timer watch stopped", "error", err)
			}
		}()
		slog.Info("API listening", "socket", server.Addr())
	}

	if cfg.ConfigPath != "" && cfg.LogLevel != nil {
		go watchConfig(ctx, cfg.ConfigPath, cfg.LogLevel)
	}

	slog.Info("daemon ready",
		"bus_name", dbustypes.ExtensionBusName,
		"capabilities", caps.Names())

	SdNotify("READY=1", "STATUS=Serving "+dbustypes.ExtensionBusName)

	// Block until context is cancelled (SIGTERM/SIGINT handled by caller).
	<-ctx.Done()

	slog.Info("daemon shutting down")
	SdNotify("STOPPING=1")

	svc.Destroy()

	if server != nil {
		timeout := cfg.ShutdownTimeout
		if timeout == 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown", "error", err)
		}
	}

	return nil
}

// startNotifications shows timer state notifications while svc owns the
// extension name. The returned function stops listening for button clicks.
func startNotifications(ctx context.Context, conn *dbus.Conn, svc *extension.Service, tm *timer.Proxy) (func(), error) {
	notifier, err := notification.NewDBusNotifier(conn)
	if err != nil {
		return nil, err
	}

	handler := notification.NewHandler(notifier, tm)
	for _, kind := range []extension.EventKind{extension.EventAcquired, extension.EventLost, extension.EventDestroyed} {
		svc.Subscribe(kind, handler.OnExtensionEvent)
	}

	go handler.ListenActions(ctx, notifier.Actions())
	go func() {
		if err := tm.Watch(ctx, handler.OnTimerChange); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("notification timer watch stopped", "error", err)
		}
	}()

	return notifier.Stop, nil
}

func watchConfig(ctx context.Context, path string, level *slog.LevelVar) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		slog.Debug("config directory missing, not watching", "path", path)
		return
	}
	err := config.Watch(ctx, path, func(c *config.Config) {
		if c.LogLevel == "" {
			return
		}
		next := logging.ParseLevel(c.LogLevel)
		if next != level.Level() {
			level.Set(next)
			slog.Info("log level changed", "level", next)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("config watch stopped", "path", path, "error", err)
	}
}
