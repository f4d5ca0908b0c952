// Package notification shows desktop notifications for timer state changes
// while the bridge holds the extension name.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/extimer-bridge/internal/extension"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	appName = "extimer-bridge"
)

// Notifier defines the interface for sending desktop notifications.
type Notifier interface {
	// Notify shows a notification, replacing the one with ID replaces when
	// non-zero, and returns its ID. The actions parameter takes alternating
	// (id, label) pairs per the FreeDesktop spec.
	Notify(summary, body string, replaces uint32, actions []string) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

// Action represents a user interaction with a notification button.
type Action struct {
	NotificationID uint32
	ActionKey      string
}

// DBusNotifier sends notifications on an existing bus connection and
// listens for action button clicks.
type DBusNotifier struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	actions chan Action
	done    chan struct{}
	once    sync.Once
}

// NewDBusNotifier subscribes to ActionInvoked on conn. The connection stays
// owned by the caller.
func NewDBusNotifier(conn *dbus.Conn) (*DBusNotifier, error) {
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(notifyInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		return nil, fmt.Errorf("subscribe to ActionInvoked: %w", err)
	}

	n := &DBusNotifier{
		conn:    conn,
		signals: make(chan *dbus.Signal, 16),
		actions: make(chan Action, 16),
		done:    make(chan struct{}),
	}
	conn.Signal(n.signals)
	go n.processSignals()
	return n, nil
}

// Actions returns a channel that receives action button clicks.
func (n *DBusNotifier) Actions() <-chan Action {
	return n.actions
}

// Stop stops the signal listener and removes the match rule.
func (n *DBusNotifier) Stop() {
	n.once.Do(func() {
		close(n.done)
		n.conn.RemoveSignal(n.signals)
		n.conn.RemoveMatchSignal( //nolint:errcheck
			dbus.WithMatchInterface(notifyInterface),
			dbus.WithMatchMember("ActionInvoked"),
		)
	})
}

func (n *DBusNotifier) processSignals() {
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-n.signals:
			if !ok {
				return // channel closed (connection died)
			}
			if action, ok := parseAction(sig); ok {
				select {
				case n.actions <- action:
				case <-n.done:
					return
				}
			}
		}
	}
}

func parseAction(sig *dbus.Signal) (Action, bool) {
	if sig.Name != notifyInterface+".ActionInvoked" || len(sig.Body) != 2 {
		return Action{}, false
	}
	id, ok1 := sig.Body[0].(uint32)
	key, ok2 := sig.Body[1].(string)
	if !ok1 || !ok2 {
		return Action{}, false
	}
	return Action{NotificationID: id, ActionKey: key}, true
}

// Notify sends a desktop notification with optional action buttons.
func (n *DBusNotifier) Notify(summary, body string, replaces uint32, actions []string) (uint32, error) {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(
		notifyInterface+".Notify",
		0,
		appName,
		replaces,
		"alarm-symbolic", // app_icon
		summary,
		body,
		actions,
		map[string]dbus.Variant{
			"category": dbus.MakeVariant("x-gnome.pomodoro"),
		},
		int32(-1), // expire_timeout (-1 = server default)
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify call: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("store notify result: %w", err)
	}
	return id, nil
}

// Close closes a notification by ID.
func (n *DBusNotifier) Close(id uint32) error {
	obj := n.conn.Object(notifyDest, notifyPath)
	if call := obj.Call(notifyInterface+".CloseNotification", 0, id); call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}

// Controller is the part of the timer that notification buttons drive.
type Controller interface {
	Skip(ctx context.Context) error
	ShowMainWindow(ctx context.Context, mode string, timestamp uint32) error
}

// Handler turns timer state changes into a single, updated notification.
// It only shows notifications while the extension name is owned.
type Handler struct {
	notifier Notifier
	timer    Controller

	mu      sync.Mutex
	active  bool
	state   string
	current uint32 // notification ID, 0 when none is shown
}

// NewHandler creates a notification handler.
func NewHandler(notifier Notifier, t Controller) *Handler {
	return &Handler{notifier: notifier, timer: t}
}

// OnExtensionEvent enables notifications on acquisition and disables and
// clears them on loss or destroy.
func (h *Handler) OnExtensionEvent(ev extension.Event) {
	h.mu.Lock()
	h.active = ev.Kind == extension.EventAcquired
	var closeID uint32
	if !h.active {
		closeID = h.current
		h.current = 0
	}
	h.mu.Unlock()

	if closeID != 0 {
		h.close(closeID)
	}
}

// OnTimerChange shows or updates the notification when the timer state
// changes. Other property changes are ignored.
func (h *Handler) OnTimerChange(c timer.Change) {
	state, ok := c.Changed["State"].(string)
	if !ok {
		return
	}

	h.mu.Lock()
	if !h.active || state == h.state {
		h.state = state
		h.mu.Unlock()
		return
	}
	h.state = state
	replaces := h.current
	h.mu.Unlock()

	summary, body, actions := stateMessage(state)
	if summary == "" {
		if replaces != 0 {
			h.mu.Lock()
			h.current = 0
			h.mu.Unlock()
			h.close(replaces)
		}
		return
	}

	id, err := h.notifier.Notify(summary, body, replaces, actions)
	if err != nil {
		slog.Debug("notification failed", "state", state, "error", err)
		return
	}
	h.mu.Lock()
	if !h.active {
		// The name was lost while Notify was in flight.
		h.mu.Unlock()
		h.close(id)
		return
	}
	h.current = id
	h.mu.Unlock()
}

func (h *Handler) close(id uint32) {
	if err := h.notifier.Close(id); err != nil {
		slog.Debug("close notification failed", "id", id, "error", err)
	}
}

// stateMessage returns the notification for a timer state, or an empty
// summary when nothing should be shown.
func stateMessage(state string) (summary, body string, actions []string) {
	switch state {
	case "pomodoro":
		return "Pomodoro", "Focus on your task.", []string{"default", "Open", "skip", "Take a break"}
	case "short-break":
		return "Take a short break", "Step away for a few minutes.", []string{"default", "Open", "skip", "Start pomodoro"}
	case "long-break":
		return "Take a long break", "You have earned it.", []string{"default", "Open", "skip", "Start pomodoro"}
	default:
		return "", "", nil
	}
}

// ListenActions reads from the actions channel and forwards button clicks
// on the current notification to the timer. It blocks until the channel is
// closed or ctx is cancelled.
func (h *Handler) ListenActions(ctx context.Context, actions <-chan Action) {
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-actions:
			if !ok {
				return
			}
			h.handleAction(ctx, action)
		}
	}
}

func (h *Handler) handleAction(ctx context.Context, action Action) {
	h.mu.Lock()
	ours := action.NotificationID != 0 && action.NotificationID == h.current
	h.mu.Unlock()
	if !ours {
		return
	}

	var err error
	switch action.ActionKey {
	case "default":
		err = h.timer.ShowMainWindow(ctx, "timer", 0)
	case "skip":
		err = h.timer.Skip(ctx)
	default:
		slog.Debug("unknown action key", "action", action.ActionKey)
		return
	}
	if err != nil {
		slog.Warn("notification action failed", "action", action.ActionKey, "error", err)
		return
	}
	slog.Info("handled notification action", "action", action.ActionKey)
}
