// mock-extimer runs a minimal org.gnome.ExTimer service for manual testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
	"github.com/nikicat/extimer-bridge/internal/testutil"
)

func main() {
	var (
		state   = flag.String("state", testutil.StatePomodoro, "Initial timer state")
		elapsed = flag.Float64("elapsed", 0, "Initial elapsed seconds")
		tick    = flag.Bool("tick", false, "Advance Elapsed every second while running")
	)
	flag.Parse()

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect to session bus: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	mock := testutil.NewMockTimer()
	if err := mock.Register(conn, *state, *elapsed); err != nil {
		fmt.Fprintf(os.Stderr, "error: register mock timer: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Mock ExTimer running. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var ticks <-chan time.Time
	if *tick {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-sigCh:
			fmt.Println("Shutting down...")
			return
		case <-ticks:
			paused, _ := mock.Property(dbustypes.PropIsPaused).(bool)
			current, _ := mock.Property(dbustypes.PropState).(string)
			if paused || current == testutil.StateNull {
				continue
			}
			e, _ := mock.Property(dbustypes.PropElapsed).(float64)
			mock.SetProperty(dbustypes.PropElapsed, e+1)
		}
	}
}
