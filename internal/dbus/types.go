// Package dbus provides D-Bus names and interface schemas for the ExTimer API.
package dbus

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Remote timer object owned by the pomodoro application.
const (
	TimerBusName   = "org.gnome.ExTimer"
	TimerPath      = dbus.ObjectPath("/org/gnome/ExTimer")
	TimerInterface = "org.gnome.ExTimer"
)

// Capabilities object exported by the shell extension side.
const (
	ExtensionBusName   = "org.gnome.ExTimer.Extension"
	ExtensionPath      = dbus.ObjectPath("/org/gnome/ExTimer/Extension")
	ExtensionInterface = "org.gnome.ExTimer.Extension"
)

// Standard freedesktop interfaces.
const (
	PropertiesInterface     = "org.freedesktop.DBus.Properties"
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"
	PropertiesChanged       = PropertiesInterface + ".PropertiesChanged"
)

// Message bus daemon.
const (
	BusDaemonName      = "org.freedesktop.DBus"
	BusDaemonPath      = dbus.ObjectPath("/org/freedesktop/DBus")
	BusDaemonInterface = "org.freedesktop.DBus"
	NameOwnerChanged   = BusDaemonInterface + ".NameOwnerChanged"
)

// Timer property names.
const (
	PropElapsed       = "Elapsed"
	PropState         = "State"
	PropStateDuration = "StateDuration"
	PropIsPaused      = "IsPaused"
	PropVersion       = "Version"
	PropCapabilities  = "Capabilities"
)

// TimerIntrospection describes org.gnome.ExTimer. It must match the remote
// service exactly or every property read and method call fails.
func TimerIntrospection() introspect.Interface {
	return introspect.Interface{
		Name: TimerInterface,
		Methods: []introspect.Method{
			{
				Name: "SetState",
				Args: []introspect.Arg{
					{Name: "state", Type: "s", Direction: "in"},
					{Name: "timestamp", Type: "d", Direction: "in"},
				},
			},
			{
				Name: "SetStateDuration",
				Args: []introspect.Arg{
					{Name: "state", Type: "s", Direction: "in"},
					{Name: "duration", Type: "d", Direction: "in"},
				},
			},
			{
				Name: "ShowMainWindow",
				Args: []introspect.Arg{
					{Name: "mode", Type: "s", Direction: "in"},
					{Name: "timestamp", Type: "u", Direction: "in"},
				},
			},
			{
				Name: "ShowPreferences",
				Args: []introspect.Arg{
					{Name: "timestamp", Type: "u", Direction: "in"},
				},
			},
			{Name: "Start"},
			{Name: "Stop"},
			{Name: "Reset"},
			{Name: "Pause"},
			{Name: "Resume"},
			{Name: "Skip"},
			{Name: "Quit"},
		},
		Properties: []introspect.Property{
			{Name: PropElapsed, Type: "d", Access: "read"},
			{Name: PropState, Type: "s", Access: "read"},
			{Name: PropStateDuration, Type: "d", Access: "read"},
			{Name: PropIsPaused, Type: "b", Access: "read"},
			{Name: PropVersion, Type: "s", Access: "read"},
		},
	}
}

// ExtensionIntrospection describes org.gnome.ExTimer.Extension.
func ExtensionIntrospection() introspect.Interface {
	return introspect.Interface{
		Name: ExtensionInterface,
		Properties: []introspect.Property{
			{Name: PropCapabilities, Type: "as", Access: "read"},
		},
	}
}

// Error names used by exported objects.
const (
	ErrUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrPropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrNameHasNoOwner   = "org.freedesktop.DBus.Error.NameHasNoOwner"
)

// NewDBusError creates a D-Bus error with the given name and message.
func NewDBusError(name, message string) *dbus.Error {
	return &dbus.Error{
		Name: name,
		Body: []interface{}{message},
	}
}

// ErrInterfaceNotFound returns an UnknownInterface error.
func ErrInterfaceNotFound(iface string) *dbus.Error {
	return NewDBusError(ErrUnknownInterface, "Interface "+iface+" is not implemented")
}

// ErrPropertyNotFound returns an UnknownProperty error.
func ErrPropertyNotFound(iface, property string) *dbus.Error {
	return NewDBusError(ErrUnknownProperty, "Property "+iface+"."+property+" does not exist")
}

// ErrReadOnly returns a PropertyReadOnly error.
func ErrReadOnly(property string) *dbus.Error {
	return NewDBusError(ErrPropertyReadOnly, "Property "+property+" is read-only")
}
