package timer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

type recordedCall struct {
	method string
	flags  dbus.Flags
	args   []interface{}
}

// fakeObject records calls and answers property reads from a map.
type fakeObject struct {
	calls []recordedCall
	props map[string]interface{}
	err   error
}

func (f *fakeObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, recordedCall{method: method, flags: flags, args: args})
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	if err := ctx.Err(); err != nil {
		return &dbus.Call{Err: err}
	}
	switch method {
	case dbustypes.PropertiesInterface + ".Get":
		v, ok := f.props[args[1].(string)]
		if !ok {
			return &dbus.Call{Err: dbustypes.ErrPropertyNotFound(args[0].(string), args[1].(string))}
		}
		return &dbus.Call{Body: []interface{}{dbus.MakeVariant(v)}}
	case dbustypes.PropertiesInterface + ".GetAll":
		all := make(map[string]dbus.Variant, len(f.props))
		for k, v := range f.props {
			all[k] = dbus.MakeVariant(v)
		}
		return &dbus.Call{Body: []interface{}{all}}
	}
	return &dbus.Call{}
}

func (f *fakeObject) last() recordedCall {
	if len(f.calls) == 0 {
		return recordedCall{}
	}
	return f.calls[len(f.calls)-1]
}

func runningProps() map[string]interface{} {
	return map[string]interface{}{
		dbustypes.PropElapsed:       42.5,
		dbustypes.PropState:         "running",
		dbustypes.PropStateDuration: 1500.0,
		dbustypes.PropIsPaused:      false,
		dbustypes.PropVersion:       "0.26.0",
	}
}

func TestProxy_MethodsForwardNameAndArgs(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		invoke func(p *Proxy) error
		method string
		args   []interface{}
	}{
		{"SetState", func(p *Proxy) error { return p.SetState(ctx, "pomodoro", 12.5) }, "SetState", []interface{}{"pomodoro", 12.5}},
		{"SetStateDuration", func(p *Proxy) error { return p.SetStateDuration(ctx, "short-break", 300) }, "SetStateDuration", []interface{}{"short-break", 300.0}},
		{"ShowMainWindow", func(p *Proxy) error { return p.ShowMainWindow(ctx, "timer", 7) }, "ShowMainWindow", []interface{}{"timer", uint32(7)}},
		{"ShowPreferences", func(p *Proxy) error { return p.ShowPreferences(ctx, 9) }, "ShowPreferences", []interface{}{uint32(9)}},
		{"Start", func(p *Proxy) error { return p.Start(ctx) }, "Start", nil},
		{"Stop", func(p *Proxy) error { return p.Stop(ctx) }, "Stop", nil},
		{"Reset", func(p *Proxy) error { return p.Reset(ctx) }, "Reset", nil},
		{"Pause", func(p *Proxy) error { return p.Pause(ctx) }, "Pause", nil},
		{"Resume", func(p *Proxy) error { return p.Resume(ctx) }, "Resume", nil},
		{"Skip", func(p *Proxy) error { return p.Skip(ctx) }, "Skip", nil},
		{"Quit", func(p *Proxy) error { return p.Quit(ctx) }, "Quit", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &fakeObject{}
			p := newProxy(obj, nil, Options{AutoStart: true})

			if err := tt.invoke(p); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if len(obj.calls) != 1 {
				t.Fatalf("expected 1 call, got %d", len(obj.calls))
			}
			got := obj.last()
			if got.method != dbustypes.TimerInterface+"."+tt.method {
				t.Errorf("method = %q, want %q", got.method, dbustypes.TimerInterface+"."+tt.method)
			}
			if len(got.args) != len(tt.args) || (len(tt.args) > 0 && !reflect.DeepEqual(got.args, tt.args)) {
				t.Errorf("args = %#v, want %#v", got.args, tt.args)
			}
			if got.flags != 0 {
				t.Errorf("flags = %v, want 0 with AutoStart", got.flags)
			}
		})
	}
}

func TestProxy_NoAutoStartFlag(t *testing.T) {
	obj := &fakeObject{}
	p := newProxy(obj, nil, Options{})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if obj.last().flags&dbus.FlagNoAutoStart == 0 {
		t.Error("expected FlagNoAutoStart when AutoStart is false")
	}
}

func TestProxy_RemoteErrorPassedThrough(t *testing.T) {
	remoteErr := dbus.NewError("org.freedesktop.DBus.Error.ServiceUnknown", []interface{}{"gone"})
	obj := &fakeObject{err: remoteErr}
	p := newProxy(obj, nil, Options{})

	err := p.Pause(context.Background())
	var dbusErr *dbus.Error
	if !errors.As(err, &dbusErr) || dbusErr.Name != remoteErr.Name {
		t.Fatalf("expected remote error to pass through, got %v", err)
	}
	if len(obj.calls) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(obj.calls))
	}
}

func TestProxy_Properties(t *testing.T) {
	obj := &fakeObject{props: runningProps()}
	p := newProxy(obj, nil, Options{})
	ctx := context.Background()

	state, err := p.State(ctx)
	if err != nil || state != "running" {
		t.Errorf("State() = %q, %v", state, err)
	}
	elapsed, err := p.Elapsed(ctx)
	if err != nil || elapsed != 42.5 {
		t.Errorf("Elapsed() = %v, %v", elapsed, err)
	}
	duration, err := p.StateDuration(ctx)
	if err != nil || duration != 1500 {
		t.Errorf("StateDuration() = %v, %v", duration, err)
	}
	paused, err := p.IsPaused(ctx)
	if err != nil || paused {
		t.Errorf("IsPaused() = %v, %v", paused, err)
	}
	version, err := p.Version(ctx)
	if err != nil || version != "0.26.0" {
		t.Errorf("Version() = %q, %v", version, err)
	}

	get := obj.last()
	if get.method != dbustypes.PropertiesInterface+".Get" {
		t.Errorf("method = %q", get.method)
	}
	if get.args[0] != dbustypes.TimerInterface || get.args[1] != dbustypes.PropVersion {
		t.Errorf("args = %v", get.args)
	}
}

func TestProxy_PropertyReadIsNotCached(t *testing.T) {
	obj := &fakeObject{props: runningProps()}
	p := newProxy(obj, nil, Options{})
	ctx := context.Background()

	if _, err := p.State(ctx); err != nil {
		t.Fatal(err)
	}
	obj.props[dbustypes.PropState] = "short-break"

	state, err := p.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != "short-break" {
		t.Errorf("State() = %q after update, want short-break", state)
	}
}

func TestProxy_PropertyWrongType(t *testing.T) {
	props := runningProps()
	props[dbustypes.PropElapsed] = "not a number"
	p := newProxy(&fakeObject{props: props}, nil, Options{})

	if _, err := p.Elapsed(context.Background()); err == nil {
		t.Fatal("expected error for mistyped property")
	}
}

func TestProxy_CancelledContext(t *testing.T) {
	p := newProxy(&fakeObject{props: runningProps()}, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.State(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProxy_Snapshot(t *testing.T) {
	p := newProxy(&fakeObject{props: runningProps()}, nil, Options{})

	s, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := Snapshot{Elapsed: 42.5, State: "running", StateDuration: 1500, Version: "0.26.0"}
	if s != want {
		t.Errorf("Snapshot = %+v, want %+v", s, want)
	}
}

func TestProxy_SnapshotMissingProperty(t *testing.T) {
	props := runningProps()
	delete(props, dbustypes.PropIsPaused)
	p := newProxy(&fakeObject{props: props}, nil, Options{})

	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error when a property is missing")
	}
}

func TestProxy_WatchWithoutConnection(t *testing.T) {
	p := newProxy(&fakeObject{}, nil, Options{})
	if err := p.Watch(context.Background(), func(Change) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestParseChange(t *testing.T) {
	sig := &dbus.Signal{
		Path: dbustypes.TimerPath,
		Name: dbustypes.PropertiesChanged,
		Body: []interface{}{
			dbustypes.TimerInterface,
			map[string]dbus.Variant{dbustypes.PropState: dbus.MakeVariant("pomodoro")},
			[]string{dbustypes.PropElapsed},
		},
	}

	c, ok := parseChange(sig)
	if !ok {
		t.Fatal("expected change to parse")
	}
	if c.Changed[dbustypes.PropState] != "pomodoro" {
		t.Errorf("changed = %v", c.Changed)
	}
	if len(c.Invalidated) != 1 || c.Invalidated[0] != dbustypes.PropElapsed {
		t.Errorf("invalidated = %v", c.Invalidated)
	}

	other := *sig
	other.Body = []interface{}{"org.example.Other", map[string]dbus.Variant{}, []string{}}
	if _, ok := parseChange(&other); ok {
		t.Error("expected other interface to be ignored")
	}

	wrongPath := *sig
	wrongPath.Path = "/org/example"
	if _, ok := parseChange(&wrongPath); ok {
		t.Error("expected other path to be ignored")
	}
}

func TestSnapshot_Apply(t *testing.T) {
	s := Snapshot{State: "null"}
	s.Apply(Change{Changed: map[string]any{
		dbustypes.PropState:    "pomodoro",
		dbustypes.PropElapsed:  3.0,
		dbustypes.PropIsPaused: true,
		"Unknown":              1,
	}})

	if s.State != "pomodoro" || s.Elapsed != 3 || !s.IsPaused {
		t.Errorf("Apply result = %+v", s)
	}
}

func TestParseOwnerChange(t *testing.T) {
	sig := &dbus.Signal{
		Sender: dbustypes.BusDaemonName,
		Path:   dbustypes.BusDaemonPath,
		Name:   dbustypes.NameOwnerChanged,
		Body:   []interface{}{dbustypes.TimerBusName, ":1.4", ":1.9"},
	}
	owner, ok := parseOwnerChange(sig)
	if !ok || owner != ":1.9" {
		t.Fatalf("parseOwnerChange = %q, %v; want :1.9, true", owner, ok)
	}

	gone := *sig
	gone.Body = []interface{}{dbustypes.TimerBusName, ":1.9", ""}
	if owner, ok := parseOwnerChange(&gone); !ok || owner != "" {
		t.Errorf("owner after exit = %q, %v; want empty, true", owner, ok)
	}

	otherName := *sig
	otherName.Body = []interface{}{"org.example.Other", "", ":1.5"}
	if _, ok := parseOwnerChange(&otherName); ok {
		t.Error("expected other bus names to be ignored")
	}

	forged := *sig
	forged.Sender = ":1.7"
	if _, ok := parseOwnerChange(&forged); ok {
		t.Error("expected NameOwnerChanged not sent by the bus daemon to be ignored")
	}
}
