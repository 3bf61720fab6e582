package server

import (
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

func introspectNode() *introspect.Node {
	return &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: Interface,
				Methods: []introspect.Method{
					{Name: "GetDevices", Args: []introspect.Arg{
						{Name: "devices", Type: "s", Direction: "out"},
					}},
					{Name: "GetDevice", Args: []introspect.Arg{
						{Name: "address", Type: "s", Direction: "in"},
						{Name: "device", Type: "s", Direction: "out"},
					}},
					{Name: "SendCommand", Args: []introspect.Arg{
						{Name: "address", Type: "s", Direction: "in"},
						{Name: "action", Type: "s", Direction: "in"},
						{Name: "params", Type: "a{sv}", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "ConnectDevice", Args: []introspect.Arg{
						{Name: "address", Type: "s", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "DisconnectDevice", Args: []introspect.Arg{
						{Name: "address", Type: "s", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "Passthrough", Args: []introspect.Arg{
						{Name: "address", Type: "s", Direction: "in"},
						{Name: "packet", Type: "s", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "SetAutoPlayPause", Args: []introspect.Arg{
						{Name: "enabled", Type: "b", Direction: "in"},
						{Name: "ok", Type: "b", Direction: "out"},
					}},
					{Name: "GetAutoPlayPause", Args: []introspect.Arg{
						{Name: "enabled", Type: "b", Direction: "out"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "DeviceConnected", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
					}},
					{Name: "DeviceDisconnected", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
					}},
					{Name: "BatteryUpdated", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
						{Name: "battery", Type: "s"},
					}},
					{Name: "NoiseControlChanged", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
						{Name: "mode", Type: "s"},
					}},
					{Name: "EarDetectionChanged", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
						{Name: "ear_detection", Type: "s"},
					}},
					{Name: "DeviceNameChanged", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
						{Name: "name", Type: "s"},
					}},
					{Name: "DeviceError", Args: []introspect.Arg{
						{Name: "address", Type: "s"},
					}},
				},
				Properties: []introspect.Property{
					{Name: "Devices", Type: "s", Access: "read"},
					{Name: "ConnectedCount", Type: "u", Access: "read"},
				},
			},
		},
	}
}
