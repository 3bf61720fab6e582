package bluetooth

import (
	"context"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezName    = "org.bluez"
	device1Iface = "org.bluez.Device1"

	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"

	interfacesAddedSignal   = objectManagerIface + ".InterfacesAdded"
	interfacesRemovedSignal = objectManagerIface + ".InterfacesRemoved"
	propertiesChangedSignal = propertiesIface + ".PropertiesChanged"

	// aapServiceUUID advertises the accessory protocol channel; its
	// presence marks a device as supported hardware regardless of the
	// configured address list.
	aapServiceUUID = "74ec2172-0bad-4d01-8f77-997b2be0722a"
)

// deviceProps is the subset of org.bluez.Device1 this daemon reads.
type deviceProps struct {
	Address   string
	Alias     string
	Connected bool
	UUIDs     []string
}

func parseDeviceProps(raw map[string]dbus.Variant) deviceProps {
	var p deviceProps
	p.Address, _ = variantString(raw, "Address")
	p.Alias, _ = variantString(raw, "Alias")
	if p.Alias == "" {
		p.Alias, _ = variantString(raw, "Name")
	}
	p.Connected, _ = variantBool(raw, "Connected")
	p.UUIDs, _ = variantStrings(raw, "UUIDs")
	return p
}

func variantString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func variantBool(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func variantStrings(props map[string]dbus.Variant, key string) ([]string, bool) {
	v, ok := props[key]
	if !ok {
		return nil, false
	}
	s, ok := v.Value().([]string)
	return s, ok
}

// subscribe installs the match rules for BlueZ device discovery and
// property tracking.
func (m *Manager) subscribe() error {
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezName),
		dbus.WithMatchInterface(objectManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return err
	}
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezName),
		dbus.WithMatchInterface(objectManagerIface),
		dbus.WithMatchMember("InterfacesRemoved"),
	); err != nil {
		return err
	}
	return m.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezName),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace("/org/bluez"),
	)
}

// scan walks the current BlueZ object tree and registers every
// recognized device.
func (m *Manager) scan(ctx context.Context) error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := m.conn.Object(bluezName, "/").CallWithContext(
		ctx, objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return err
	}
	for path, ifaces := range objects {
		if raw, ok := ifaces[device1Iface]; ok {
			m.handleDevice(ctx, path, parseDeviceProps(raw))
		}
	}
	return nil
}

// watch consumes BlueZ signals until the lifecycle context ends.
func (m *Manager) watch(ctx context.Context) {
	signals := make(chan *dbus.Signal, 32)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.handleSignal(ctx, sig)
		}
	}
}

func (m *Manager) handleSignal(ctx context.Context, sig *dbus.Signal) {
	switch sig.Name {
	case interfacesAddedSignal:
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		if raw, ok := ifaces[device1Iface]; ok {
			m.handleDevice(ctx, path, parseDeviceProps(raw))
		}

	case interfacesRemovedSignal:
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, ok := sig.Body[1].([]string)
		if !ok {
			return
		}
		for _, iface := range ifaces {
			if iface == device1Iface {
				m.handleDeviceRemoved(path)
				return
			}
		}

	case propertiesChangedSignal:
		if len(sig.Body) < 2 {
			return
		}
		iface, ok := sig.Body[0].(string)
		if !ok || iface != device1Iface {
			return
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		m.handlePropertiesChanged(ctx, sig.Path, changed)
	}
}

// recognizes decides whether a BlueZ device is tracked hardware:
// either the accessory service UUID is advertised or the address is
// configured as a known device.
func (m *Manager) recognizes(p deviceProps) bool {
	if m.knownAddrs[strings.ToUpper(p.Address)] {
		return true
	}
	for _, u := range p.UUIDs {
		if strings.EqualFold(u, aapServiceUUID) {
			return true
		}
	}
	return false
}
