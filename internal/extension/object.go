package extension

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

// object implements org.freedesktop.DBus.Properties for the Extension
// interface. Capabilities is fixed at construction.
type object struct {
	capabilities []string
}

// Get implements org.freedesktop.DBus.Properties.Get
func (o *object) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	if iface != dbustypes.ExtensionInterface {
		return dbus.Variant{}, dbustypes.ErrInterfaceNotFound(iface)
	}
	if property != dbustypes.PropCapabilities {
		return dbus.Variant{}, dbustypes.ErrPropertyNotFound(iface, property)
	}
	return dbus.MakeVariant(o.capabilities), nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll
func (o *object) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != dbustypes.ExtensionInterface {
		return nil, dbustypes.ErrInterfaceNotFound(iface)
	}
	return map[string]dbus.Variant{
		dbustypes.PropCapabilities: dbus.MakeVariant(o.capabilities),
	}, nil
}

// Set implements org.freedesktop.DBus.Properties.Set
func (o *object) Set(iface, property string, value dbus.Variant) *dbus.Error {
	if iface != dbustypes.ExtensionInterface {
		return dbustypes.ErrInterfaceNotFound(iface)
	}
	if property != dbustypes.PropCapabilities {
		return dbustypes.ErrPropertyNotFound(iface, property)
	}
	return dbustypes.ErrReadOnly(property)
}

func introspection() introspect.Introspectable {
	return introspect.NewIntrospectable(&introspect.Node{
		Name: string(dbustypes.ExtensionPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			dbustypes.ExtensionIntrospection(),
		},
	})
}
