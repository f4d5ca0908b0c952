// Package timer is a typed client for the remote pomodoro timer object
// (org.gnome.ExTimer). Every property read and method call is forwarded to
// the remote process; nothing is cached locally.
package timer

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

// Client is the remote timer API. Proxy implements it over D-Bus; tests
// substitute their own implementation.
type Client interface {
	Elapsed(ctx context.Context) (float64, error)
	State(ctx context.Context) (string, error)
	StateDuration(ctx context.Context) (float64, error)
	IsPaused(ctx context.Context) (bool, error)
	Version(ctx context.Context) (string, error)

	SetState(ctx context.Context, state string, timestamp float64) error
	SetStateDuration(ctx context.Context, state string, duration float64) error
	ShowMainWindow(ctx context.Context, mode string, timestamp uint32) error
	ShowPreferences(ctx context.Context, timestamp uint32) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Skip(ctx context.Context) error
	Quit(ctx context.Context) error
}

// Options configures a Proxy.
type Options struct {
	// AutoStart lets the bus activate the timer application if it is not
	// running. When false, calls carry NO_AUTO_START.
	AutoStart bool
}

// caller is the part of dbus.BusObject the proxy uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// signaler is the part of *dbus.Conn used to follow property changes.
type signaler interface {
	BusObject() dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Proxy forwards calls to org.gnome.ExTimer at /org/gnome/ExTimer.
type Proxy struct {
	obj   caller
	conn  signaler
	flags dbus.Flags
}

var _ Client = (*Proxy)(nil)

// New binds a proxy to the timer on conn and reads its properties once to
// make sure the remote object exists and speaks the expected interface.
// Errors from the bus (service unknown, activation failure, interface
// mismatch, cancellation) are returned as-is.
func New(ctx context.Context, conn *dbus.Conn, opts Options) (*Proxy, error) {
	p := Bind(conn, opts)
	if _, err := p.Snapshot(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Bind returns a proxy for the timer on conn without contacting it. The
// timer may start or go away later; each call reports what the bus says.
func Bind(conn *dbus.Conn, opts Options) *Proxy {
	return newProxy(conn.Object(dbustypes.TimerBusName, dbustypes.TimerPath), conn, opts)
}

func newProxy(obj caller, conn signaler, opts Options) *Proxy {
	var flags dbus.Flags
	if !opts.AutoStart {
		flags = dbus.FlagNoAutoStart
	}
	return &Proxy{obj: obj, conn: conn, flags: flags}
}

func (p *Proxy) call(ctx context.Context, method string, args ...interface{}) error {
	return p.obj.CallWithContext(ctx, dbustypes.TimerInterface+"."+method, p.flags, args...).Err
}

func (p *Proxy) property(ctx context.Context, name string) (interface{}, error) {
	call := p.obj.CallWithContext(ctx, dbustypes.PropertiesInterface+".Get", p.flags, dbustypes.TimerInterface, name)
	if call.Err != nil {
		return nil, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return v.Value(), nil
}

func propertyAs[T any](ctx context.Context, p *Proxy, name string) (T, error) {
	var zero T
	raw, err := p.property(ctx, name)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("property %s: unexpected type %T", name, raw)
	}
	return v, nil
}

// Elapsed returns the seconds elapsed in the current state.
func (p *Proxy) Elapsed(ctx context.Context) (float64, error) {
	return propertyAs[float64](ctx, p, dbustypes.PropElapsed)
}

// State returns the current state label. The set of labels is owned by the
// timer application.
func (p *Proxy) State(ctx context.Context) (string, error) {
	return propertyAs[string](ctx, p, dbustypes.PropState)
}

// StateDuration returns the length of the current state in seconds.
func (p *Proxy) StateDuration(ctx context.Context) (float64, error) {
	return propertyAs[float64](ctx, p, dbustypes.PropStateDuration)
}

func (p *Proxy) IsPaused(ctx context.Context) (bool, error) {
	return propertyAs[bool](ctx, p, dbustypes.PropIsPaused)
}

func (p *Proxy) Version(ctx context.Context) (string, error) {
	return propertyAs[string](ctx, p, dbustypes.PropVersion)
}

// SetState switches the timer to state.
// Signature: SetState(state String, timestamp Double)
func (p *Proxy) SetState(ctx context.Context, state string, timestamp float64) error {
	return p.call(ctx, "SetState", state, timestamp)
}

// SetStateDuration changes the duration of state.
// Signature: SetStateDuration(state String, duration Double)
func (p *Proxy) SetStateDuration(ctx context.Context, state string, duration float64) error {
	return p.call(ctx, "SetStateDuration", state, duration)
}

// ShowMainWindow asks the timer application to present its window.
// Signature: ShowMainWindow(mode String, timestamp UInt32)
func (p *Proxy) ShowMainWindow(ctx context.Context, mode string, timestamp uint32) error {
	return p.call(ctx, "ShowMainWindow", mode, timestamp)
}

// ShowPreferences asks the timer application to present its preferences.
// Signature: ShowPreferences(timestamp UInt32)
func (p *Proxy) ShowPreferences(ctx context.Context, timestamp uint32) error {
	return p.call(ctx, "ShowPreferences", timestamp)
}

func (p *Proxy) Start(ctx context.Context) error  { return p.call(ctx, "Start") }
func (p *Proxy) Stop(ctx context.Context) error   { return p.call(ctx, "Stop") }
func (p *Proxy) Reset(ctx context.Context) error  { return p.call(ctx, "Reset") }
func (p *Proxy) Pause(ctx context.Context) error  { return p.call(ctx, "Pause") }
func (p *Proxy) Resume(ctx context.Context) error { return p.call(ctx, "Resume") }
func (p *Proxy) Skip(ctx context.Context) error   { return p.call(ctx, "Skip") }
func (p *Proxy) Quit(ctx context.Context) error   { return p.call(ctx, "Quit") }
