// Package testutil provides test utilities including a mock ExTimer service.
package testutil

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

// Timer states used by the pomodoro application.
const (
	StateNull       = "null"
	StatePomodoro   = "pomodoro"
	StateShortBreak = "short-break"
	StateLongBreak  = "long-break"
)

// Call is a method invocation received by MockTimer.
type Call struct {
	Method string
	Args   []interface{}
}

// MockTimer is a minimal org.gnome.ExTimer implementation for testing.
type MockTimer struct {
	conn  *dbus.Conn
	props *prop.Properties

	mu    sync.Mutex
	calls []Call
}

// NewMockTimer creates a new mock timer.
func NewMockTimer() *MockTimer {
	return &MockTimer{}
}

// Register exports the mock timer on conn with the given initial state and
// elapsed time, and takes the org.gnome.ExTimer bus name.
func (m *MockTimer) Register(conn *dbus.Conn, state string, elapsed float64) error {
	m.conn = conn

	obj := &timerObject{mock: m}
	if err := conn.Export(obj, dbustypes.TimerPath, dbustypes.TimerInterface); err != nil {
		return fmt.Errorf("export Timer: %w", err)
	}

	props, err := prop.Export(conn, dbustypes.TimerPath, prop.Map{
		dbustypes.TimerInterface: {
			dbustypes.PropElapsed:       {Value: elapsed, Emit: prop.EmitTrue},
			dbustypes.PropState:         {Value: state, Emit: prop.EmitTrue},
			dbustypes.PropStateDuration: {Value: float64(25 * 60), Emit: prop.EmitTrue},
			dbustypes.PropIsPaused:      {Value: false, Emit: prop.EmitTrue},
			dbustypes.PropVersion:       {Value: "0.0.0-mock", Emit: prop.EmitTrue},
		},
	})
	if err != nil {
		return fmt.Errorf("export Properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(dbustypes.TimerPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			dbustypes.TimerIntrospection(),
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), dbustypes.TimerPath, dbustypes.IntrospectableInterface); err != nil {
		return fmt.Errorf("export Introspectable: %w", err)
	}

	reply, err := conn.RequestName(dbustypes.TimerBusName, dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("not primary owner (reply=%d)", reply)
	}

	return nil
}

// SetProperty updates a property and emits PropertiesChanged.
func (m *MockTimer) SetProperty(name string, value interface{}) {
	m.props.SetMust(dbustypes.TimerInterface, name, value)
}

// Property returns the current value of a property.
func (m *MockTimer) Property(name string) interface{} {
	return m.props.GetMust(dbustypes.TimerInterface, name)
}

// Calls returns a copy of the recorded method calls.
func (m *MockTimer) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall returns the most recent call, or a zero Call.
func (m *MockTimer) LastCall() Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}
	}
	return m.calls[len(m.calls)-1]
}

func (m *MockTimer) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	m.mu.Unlock()
}

// timerObject is the exported org.gnome.ExTimer method set.
type timerObject struct {
	mock *MockTimer
}

func (o *timerObject) SetState(state string, timestamp float64) *dbus.Error {
	o.mock.record("SetState", state, timestamp)
	o.mock.SetProperty(dbustypes.PropState, state)
	o.mock.SetProperty(dbustypes.PropElapsed, 0.0)
	return nil
}

func (o *timerObject) SetStateDuration(state string, duration float64) *dbus.Error {
	o.mock.record("SetStateDuration", state, duration)
	if o.mock.Property(dbustypes.PropState) == state {
		o.mock.SetProperty(dbustypes.PropStateDuration, duration)
	}
	return nil
}

func (o *timerObject) ShowMainWindow(mode string, timestamp uint32) *dbus.Error {
	o.mock.record("ShowMainWindow", mode, timestamp)
	return nil
}

func (o *timerObject) ShowPreferences(timestamp uint32) *dbus.Error {
	o.mock.record("ShowPreferences", timestamp)
	return nil
}

func (o *timerObject) Start() *dbus.Error {
	o.mock.record("Start")
	if o.mock.Property(dbustypes.PropState) == StateNull {
		o.mock.SetProperty(dbustypes.PropState, StatePomodoro)
	}
	return nil
}

func (o *timerObject) Stop() *dbus.Error {
	o.mock.record("Stop")
	o.mock.SetProperty(dbustypes.PropState, StateNull)
	o.mock.SetProperty(dbustypes.PropIsPaused, false)
	return nil
}

func (o *timerObject) Reset() *dbus.Error {
	o.mock.record("Reset")
	o.mock.SetProperty(dbustypes.PropElapsed, 0.0)
	return nil
}

func (o *timerObject) Pause() *dbus.Error {
	o.mock.record("Pause")
	o.mock.SetProperty(dbustypes.PropIsPaused, true)
	return nil
}

func (o *timerObject) Resume() *dbus.Error {
	o.mock.record("Resume")
	o.mock.SetProperty(dbustypes.PropIsPaused, false)
	return nil
}

func (o *timerObject) Skip() *dbus.Error {
	o.mock.record("Skip")
	next := StateShortBreak
	if o.mock.Property(dbustypes.PropState) != StatePomodoro {
		next = StatePomodoro
	}
	o.mock.SetProperty(dbustypes.PropState, next)
	o.mock.SetProperty(dbustypes.PropElapsed, 0.0)
	return nil
}

func (o *timerObject) Quit() *dbus.Error {
	o.mock.record("Quit")
	return nil
}
