package server

import (
	"context"
	"encoding/hex"

	"github.com/godbus/dbus/v5"

	"github.com/kairpods/kairpodsd/internal/bluetooth"
)

// handler carries the exported methods of the manager interface. It is
// a separate type so that only these methods become callable over the
// bus.
type handler struct {
	srv *Server
	ctx context.Context
}

// GetDevices returns every tracked device as a JSON array.
func (h *handler) GetDevices() (string, *dbus.Error) {
	return h.srv.devices.DevicesJSON(), nil
}

// GetDevice returns one tracked device as JSON.
func (h *handler) GetDevice(address string) (string, *dbus.Error) {
	addr, derr := checkAddress(address)
	if derr != nil {
		return "", derr
	}
	payload, err := h.srv.devices.DeviceJSON(addr)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return payload, nil
}

// SendCommand decodes and applies one typed command. On success the
// Devices property is refreshed immediately so clients never observe
// the pre-command state after the reply.
func (h *handler) SendCommand(address, action string, params map[string]dbus.Variant) (bool, *dbus.Error) {
	addr, derr := checkAddress(address)
	if derr != nil {
		return false, derr
	}
	cmd, err := decodeCommand(action, params)
	if err != nil {
		return false, invalidArgsError(err)
	}

	switch c := cmd.(type) {
	case setNoiseModeCommand:
		if err := h.srv.devices.SetNoiseMode(h.ctx, addr, c.mode); err != nil {
			return false, dbus.MakeFailedError(err)
		}
		h.srv.logger.Printf("[Server] %s: noise mode set to %s", addr, c.mode)
	case setFeatureCommand:
		if err := h.srv.devices.SetFeature(h.ctx, addr, c.feature, c.enabled); err != nil {
			return false, dbus.MakeFailedError(err)
		}
		h.srv.logger.Printf("[Server] %s: feature %s set to %t", addr, c.feature, c.enabled)
	}

	if err := h.srv.DevicesChanged(); err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return true, nil
}

// ConnectDevice establishes the accessory session for a device.
func (h *handler) ConnectDevice(address string) (bool, *dbus.Error) {
	addr, derr := checkAddress(address)
	if derr != nil {
		return false, derr
	}
	if err := h.srv.devices.ConnectDevice(h.ctx, addr); err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return true, nil
}

// DisconnectDevice closes the accessory session for a device.
func (h *handler) DisconnectDevice(address string) (bool, *dbus.Error) {
	addr, derr := checkAddress(address)
	if derr != nil {
		return false, derr
	}
	if err := h.srv.devices.DisconnectDevice(h.ctx, addr); err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return true, nil
}

// Passthrough writes a raw hex-encoded frame to a device's accessory
// channel.
func (h *handler) Passthrough(address, packet string) (bool, *dbus.Error) {
	addr, derr := checkAddress(address)
	if derr != nil {
		return false, derr
	}
	raw, err := hex.DecodeString(packet)
	if err != nil {
		return false, invalidArgsError(err)
	}
	if err := h.srv.devices.Passthrough(h.ctx, addr, raw); err != nil {
		return false, dbus.MakeFailedError(err)
	}
	return true, nil
}

// SetAutoPlayPause toggles automatic media control.
func (h *handler) SetAutoPlayPause(enabled bool) (bool, *dbus.Error) {
	h.srv.media.SetEnabled(enabled)
	h.srv.logger.Printf("[Server] auto play/pause set to %t", enabled)
	return true, nil
}

// GetAutoPlayPause reports whether automatic media control is active.
func (h *handler) GetAutoPlayPause() (bool, *dbus.Error) {
	return h.srv.media.Enabled(), nil
}

// propsHandler serves org.freedesktop.DBus.Properties. Values are
// computed from the registry on every read, so Get and GetAll can
// never go stale.
type propsHandler struct {
	srv *Server
}

func (p *propsHandler) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	if iface != Interface {
		return dbus.Variant{}, unknownInterfaceError(iface)
	}
	switch property {
	case "Devices":
		return dbus.MakeVariant(p.srv.devices.DevicesJSON()), nil
	case "ConnectedCount":
		return dbus.MakeVariant(p.srv.devices.ConnectedCount()), nil
	}
	return dbus.Variant{}, unknownPropertyError(property)
}

func (p *propsHandler) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != Interface {
		return nil, unknownInterfaceError(iface)
	}
	return map[string]dbus.Variant{
		"Devices":        dbus.MakeVariant(p.srv.devices.DevicesJSON()),
		"ConnectedCount": dbus.MakeVariant(p.srv.devices.ConnectedCount()),
	}, nil
}

func (p *propsHandler) Set(iface, property string, value dbus.Variant) *dbus.Error {
	if iface != Interface {
		return unknownInterfaceError(iface)
	}
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []any{property})
}

// checkAddress validates and canonicalizes a caller-supplied Bluetooth
// address.
func checkAddress(address string) (string, *dbus.Error) {
	addr, err := bluetooth.NormalizeAddress(address)
	if err != nil {
		return "", invalidArgsError(err)
	}
	return addr, nil
}

func invalidArgsError(err error) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []any{err.Error()})
}

func unknownInterfaceError(iface string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []any{iface})
}

func unknownPropertyError(property string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []any{property})
}
