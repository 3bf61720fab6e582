package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/kairpods/kairpodsd/internal/dispatch"
)

const (
	// BusName is the well-known name the daemon claims on the session
	// bus. Clients resolve the service through it.
	BusName = "org.kairpods"

	// Path is the single managed object.
	Path dbus.ObjectPath = "/org/kairpods/manager"

	// Interface carries the device manager methods, signals and
	// properties.
	Interface = "org.kairpods.manager"

	propertiesIface     = "org.freedesktop.DBus.Properties"
	introspectableIface = "org.freedesktop.DBus.Introspectable"
)

// emitter is the narrow slice of the bus connection used for outbound
// signals, so emission side effects are testable without a bus.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Server exports the manager interface on the session bus. It is also
// the dispatcher's publisher: dispatched events leave the process here,
// as bus signals and property-change emissions.
type Server struct {
	conn    *dbus.Conn
	signals emitter
	devices DeviceService
	media   MediaToggle
	logger  *log.Logger
}

var _ dispatch.Publisher = (*Server)(nil)
var _ emitter = (*dbus.Conn)(nil)

// Options groups the dependencies of a Server.
type Options struct {
	Conn    *dbus.Conn // session bus
	Devices DeviceService
	Media   MediaToggle
	Logger  *log.Logger
}

// New constructs a server. Start must be called to claim the bus name
// and begin serving.
func New(opts Options) (*Server, error) {
	if opts.Conn == nil {
		return nil, errors.New("server: bus connection is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("server: device service is required")
	}
	if opts.Media == nil {
		return nil, errors.New("server: media toggle is required")
	}
	s := &Server{
		conn:    opts.Conn,
		signals: opts.Conn,
		devices: opts.Devices,
		media:   opts.Media,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s, nil
}

// Start exports the object and claims the well-known name. A name
// collision means another daemon instance is running and is a fatal
// startup error.
func (s *Server) Start(ctx context.Context) error {
	h := &handler{srv: s, ctx: ctx}
	if err := s.conn.Export(h, Path, Interface); err != nil {
		return fmt.Errorf("server: export %s: %w", Interface, err)
	}
	if err := s.conn.Export(&propsHandler{srv: s}, Path, propertiesIface); err != nil {
		return fmt.Errorf("server: export properties: %w", err)
	}
	if err := s.conn.Export(introspect.NewIntrospectable(introspectNode()), Path, introspectableIface); err != nil {
		return fmt.Errorf("server: export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("server: request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("server: name %s is already owned, is another daemon running?", BusName)
	}
	s.logger.Printf("[Server] serving %s at %s", BusName, Path)
	return nil
}

// Stop releases the bus name and unregisters the object.
func (s *Server) Stop() {
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		s.logger.Printf("[Server] release name: %v", err)
	}
	s.conn.Export(nil, Path, Interface)
	s.conn.Export(nil, Path, propertiesIface)
	s.conn.Export(nil, Path, introspectableIface)
}

// DeviceConnected emits the DeviceConnected signal.
func (s *Server) DeviceConnected(addr string) error {
	return s.emit("DeviceConnected", addr)
}

// DeviceDisconnected emits the DeviceDisconnected signal.
func (s *Server) DeviceDisconnected(addr string) error {
	return s.emit("DeviceDisconnected", addr)
}

// BatteryUpdated emits the BatteryUpdated signal with the battery
// payload serialized as JSON.
func (s *Server) BatteryUpdated(addr, battery string) error {
	return s.emit("BatteryUpdated", addr, battery)
}

// NoiseControlChanged emits the NoiseControlChanged signal with the
// mode's textual name.
func (s *Server) NoiseControlChanged(addr, mode string) error {
	return s.emit("NoiseControlChanged", addr, mode)
}

// EarDetectionChanged emits the EarDetectionChanged signal with the
// worn state serialized as JSON.
func (s *Server) EarDetectionChanged(addr, ear string) error {
	return s.emit("EarDetectionChanged", addr, ear)
}

// DeviceNameChanged emits the DeviceNameChanged signal.
func (s *Server) DeviceNameChanged(addr, name string) error {
	return s.emit("DeviceNameChanged", addr, name)
}

// DeviceError emits the DeviceError signal.
func (s *Server) DeviceError(addr string) error {
	return s.emit("DeviceError", addr)
}

// DevicesChanged publishes a fresh Devices property value.
func (s *Server) DevicesChanged() error {
	return s.emitPropertiesChanged("Devices", dbus.MakeVariant(s.devices.DevicesJSON()))
}

// ConnectedCountChanged publishes a fresh ConnectedCount property
// value.
func (s *Server) ConnectedCountChanged() error {
	return s.emitPropertiesChanged("ConnectedCount", dbus.MakeVariant(s.devices.ConnectedCount()))
}

func (s *Server) emit(member string, args ...any) error {
	return s.signals.Emit(Path, Interface+"."+member, args...)
}

func (s *Server) emitPropertiesChanged(property string, value dbus.Variant) error {
	return s.signals.Emit(Path, propertiesIface+".PropertiesChanged",
		Interface, map[string]dbus.Variant{property: value}, []string{})
}
