package timer

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

// Snapshot holds all timer properties read in one round-trip.
type Snapshot struct {
	Elapsed       float64 `json:"elapsed"`
	State         string  `json:"state"`
	StateDuration float64 `json:"state_duration"`
	IsPaused      bool    `json:"is_paused"`
	Version       string  `json:"version"`
}

// Change is a single PropertiesChanged notification from the timer.
type Change struct {
	Changed     map[string]any `json:"changed"`
	Invalidated []string       `json:"invalidated,omitempty"`
}

// Apply copies the changed values into s. Invalidated properties are left
// untouched; callers that need them must read them again.
func (s *Snapshot) Apply(c Change) {
	for name, v := range c.Changed {
		switch name {
		case dbustypes.PropElapsed:
			if f, ok := v.(float64); ok {
				s.Elapsed = f
			}
		case dbustypes.PropState:
			if str, ok := v.(string); ok {
				s.State = str
			}
		case dbustypes.PropStateDuration:
			if f, ok := v.(float64); ok {
				s.StateDuration = f
			}
		case dbustypes.PropIsPaused:
			if b, ok := v.(bool); ok {
				s.IsPaused = b
			}
		case dbustypes.PropVersion:
			if str, ok := v.(string); ok {
				s.Version = str
			}
		}
	}
}

// Snapshot reads all properties with org.freedesktop.DBus.Properties.GetAll.
func (p *Proxy) Snapshot(ctx context.Context) (Snapshot, error) {
	call := p.obj.CallWithContext(ctx, dbustypes.PropertiesInterface+".GetAll", p.flags, dbustypes.TimerInterface)
	if call.Err != nil {
		return Snapshot{}, call.Err
	}

	var props map[string]dbus.Variant
	if err := call.Store(&props); err != nil {
		return Snapshot{}, fmt.Errorf("decode properties: %w", err)
	}

	var s Snapshot
	var err error
	if s.Elapsed, err = variantAs[float64](props, dbustypes.PropElapsed); err != nil {
		return Snapshot{}, err
	}
	if s.State, err = variantAs[string](props, dbustypes.PropState); err != nil {
		return Snapshot{}, err
	}
	if s.StateDuration, err = variantAs[float64](props, dbustypes.PropStateDuration); err != nil {
		return Snapshot{}, err
	}
	if s.IsPaused, err = variantAs[bool](props, dbustypes.PropIsPaused); err != nil {
		return Snapshot{}, err
	}
	if s.Version, err = variantAs[string](props, dbustypes.PropVersion); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func variantAs[T any](props map[string]dbus.Variant, name string) (T, error) {
	var zero T
	v, ok := props[name]
	if !ok {
		return zero, fmt.Errorf("property %s missing from %s", name, dbustypes.TimerInterface)
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s: unexpected type %s", name, v.Signature())
	}
	return val, nil
}

func (p *Proxy) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(dbustypes.TimerBusName),
		dbus.WithMatchObjectPath(dbustypes.TimerPath),
		dbus.WithMatchInterface(dbustypes.PropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, dbustypes.TimerInterface),
	}
}

func ownerMatchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(dbustypes.BusDaemonName),
		dbus.WithMatchObjectPath(dbustypes.BusDaemonPath),
		dbus.WithMatchInterface(dbustypes.BusDaemonInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, dbustypes.TimerBusName),
	}
}

// Watch calls fn for every PropertiesChanged notification of the timer
// interface until ctx is cancelled or the connection closes. fn runs on the
// calling goroutine. Only signals sent by the current owner of the timer bus
// name are delivered; the owner is followed through NameOwnerChanged.
func (p *Proxy) Watch(ctx context.Context, fn func(Change)) error {
	if p.conn == nil {
		return ErrNotConnected
	}

	changes := p.matchOptions()
	if err := p.conn.AddMatchSignal(changes...); err != nil {
		return fmt.Errorf("subscribe to PropertiesChanged: %w", err)
	}
	defer p.conn.RemoveMatchSignal(changes...) //nolint:errcheck

	owners := ownerMatchOptions()
	if err := p.conn.AddMatchSignal(owners...); err != nil {
		return fmt.Errorf("subscribe to NameOwnerChanged: %w", err)
	}
	defer p.conn.RemoveMatchSignal(owners...) //nolint:errcheck

	// The channel also receives every other signal on a shared connection;
	// the sender and owner checks below keep foreign traffic out.
	ch := make(chan *dbus.Signal, 16)
	p.conn.Signal(ch)
	defer p.conn.RemoveSignal(ch)

	// Resolved after subscribing so no owner change falls in between.
	owner, err := p.timerOwner(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				// Channel closed by the D-Bus library when the connection closes
				return dbus.ErrClosed
			}
			if name, ok := parseOwnerChange(sig); ok {
				owner = name
				continue
			}
			if owner == "" || sig.Sender != owner {
				continue
			}
			if c, ok := parseChange(sig); ok {
				fn(c)
			}
		}
	}
}

// timerOwner returns the unique name owning the timer bus name, or "" when
// the timer is not running.
func (p *Proxy) timerOwner(ctx context.Context) (string, error) {
	var owner string
	err := p.conn.BusObject().CallWithContext(ctx, dbustypes.BusDaemonInterface+".GetNameOwner", 0, dbustypes.TimerBusName).Store(&owner)
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == dbustypes.ErrNameHasNoOwner {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s owner: %w", dbustypes.TimerBusName, err)
	}
	return owner, nil
}

// parseOwnerChange decodes NameOwnerChanged(s name, s old, s new) for the
// timer bus name as sent by the bus daemon.
func parseOwnerChange(sig *dbus.Signal) (string, bool) {
	if sig.Name != dbustypes.NameOwnerChanged || sig.Sender != dbustypes.BusDaemonName {
		return "", false
	}
	if len(sig.Body) != 3 {
		return "", false
	}
	name, ok1 := sig.Body[0].(string)
	newOwner, ok2 := sig.Body[2].(string)
	if !ok1 || !ok2 || name != dbustypes.TimerBusName {
		return "", false
	}
	return newOwner, true
}

// parseChange decodes PropertiesChanged(s interface, a{sv} changed, as invalidated).
func parseChange(sig *dbus.Signal) (Change, bool) {
	if sig.Name != dbustypes.PropertiesChanged || sig.Path != dbustypes.TimerPath {
		return Change{}, false
	}
	if len(sig.Body) != 3 {
		return Change{}, false
	}
	iface, ok1 := sig.Body[0].(string)
	changed, ok2 := sig.Body[1].(map[string]dbus.Variant)
	invalidated, ok3 := sig.Body[2].([]string)
	if !ok1 || !ok2 || !ok3 || iface != dbustypes.TimerInterface {
		return Change{}, false
	}

	c := Change{
		Changed:     make(map[string]any, len(changed)),
		Invalidated: invalidated,
	}
	for name, v := range changed {
		c.Changed[name] = v.Value()
	}
	return c, true
}
