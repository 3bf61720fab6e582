package bluetooth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/kairpods/kairpodsd/internal/airpods"
	"github.com/kairpods/kairpodsd/internal/batterystudy"
	"github.com/kairpods/kairpodsd/internal/config"
	"github.com/kairpods/kairpodsd/internal/eventbus"
)

// ErrUnknownDevice reports a command addressed to a device this
// manager has never seen.
var ErrUnknownDevice = errors.New("bluetooth: unknown device")

// ErrNotConnected reports a command that needs an open accessory
// session against a device without one.
var ErrNotConnected = errors.New("bluetooth: device has no open session")

// knownDevice ties a tracked device handle to its BlueZ object path.
type knownDevice struct {
	dev  *airpods.Device
	path dbus.ObjectPath
}

// Manager owns the device registry and the producer side of the event
// bus. It watches BlueZ for earbud devices, opens the accessory
// channel per connected device and runs one monitor per session, each
// with its own event producer.
type Manager struct {
	bus        *eventbus.Bus
	cfg        config.Config
	study      *batterystudy.Study
	conn       *dbus.Conn
	dial       DialFunc
	logger     *log.Logger
	debug      bool
	knownAddrs map[string]bool

	// producer carries watcher-driven events (name changes); session
	// events travel on per-session producers.
	producer  *eventbus.Producer
	lifecycle eventbus.SessionLifecycle

	mu       sync.Mutex
	known    map[string]*knownDevice
	paths    map[dbus.ObjectPath]string
	sessions map[string]*aapSession
}

// ManagerOptions groups the dependencies of a Manager.
type ManagerOptions struct {
	Bus    *eventbus.Bus
	Config config.Config
	Study  *batterystudy.Study // optional; nil disables persistence
	Conn   *dbus.Conn          // system bus
	Logger *log.Logger
	Dial   DialFunc // optional; defaults to the L2CAP dialer
}

// NewManager constructs a manager. Start must be called before it
// tracks anything.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Bus == nil {
		return nil, errors.New("bluetooth: event bus is required")
	}
	m := &Manager{
		bus:        opts.Bus,
		cfg:        opts.Config,
		study:      opts.Study,
		conn:       opts.Conn,
		dial:       opts.Dial,
		logger:     opts.Logger,
		debug:      strings.EqualFold(opts.Config.LogFilter, "debug"),
		knownAddrs: make(map[string]bool, len(opts.Config.KnownDevices)),
		known:      make(map[string]*knownDevice),
		paths:      make(map[dbus.ObjectPath]string),
		sessions:   make(map[string]*aapSession),
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	if m.dial == nil {
		m.dial = dialL2CAP
	}
	for _, addr := range opts.Config.KnownDevices {
		m.knownAddrs[strings.ToUpper(addr)] = true
	}
	m.producer = m.bus.Producer()
	m.lifecycle.AddProducers(m.producer)
	return m, nil
}

// Start subscribes to BlueZ, scans the existing object tree and runs
// the signal watcher.
func (m *Manager) Start(ctx context.Context) error {
	if m.conn == nil {
		return errors.New("bluetooth: system bus connection is required")
	}
	m.lifecycle.Start(ctx)

	if err := m.subscribe(); err != nil {
		return fmt.Errorf("bluetooth: subscribe to BlueZ signals: %w", err)
	}
	if err := m.scan(m.lifecycle.Context()); err != nil {
		return fmt.Errorf("bluetooth: scan BlueZ objects: %w", err)
	}
	m.lifecycle.Go(m.watch)

	m.logger.Printf("[Bluetooth] manager started, %d device(s) known", m.DeviceCount())
	return nil
}

// Stop closes every accessory session and the manager's own producer,
// then waits for the monitors to finish. After Stop returns no further
// events are emitted, so the dispatcher drains and exits on its own.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*aapSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close(true)
	}
	m.lifecycle.Stop()

	for _, s := range sessions {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.lifecycle.Wait(ctx)
}

// handleDevice registers a recognized device and opens its session if
// the Bluetooth link is already up.
func (m *Manager) handleDevice(ctx context.Context, path dbus.ObjectPath, p deviceProps) {
	if p.Address == "" || !m.recognizes(p) {
		return
	}
	addr := strings.ToUpper(p.Address)

	m.mu.Lock()
	kd, ok := m.known[addr]
	if !ok {
		name := p.Alias
		if name == "" {
			name = addr
		}
		kd = &knownDevice{dev: airpods.NewDevice(addr, name), path: path}
		m.known[addr] = kd
		m.logger.Printf("[Bluetooth] tracking device %s (%s)", addr, name)
	} else {
		kd.path = path
	}
	m.paths[path] = addr
	m.mu.Unlock()

	if p.Alias != "" && kd.dev.SetName(p.Alias) {
		m.producer.Emit(kd.dev, eventbus.DeviceNameChanged{Name: p.Alias})
	}
	if p.Connected {
		if err := m.ensureSession(ctx, addr); err != nil {
			m.logger.Printf("[Bluetooth] %s: open session: %v", addr, err)
		}
	}
}

func (m *Manager) handleDeviceRemoved(path dbus.ObjectPath) {
	m.mu.Lock()
	addr, ok := m.paths[path]
	if ok {
		delete(m.paths, path)
	}
	s := m.sessions[addr]
	m.mu.Unlock()

	if !ok {
		return
	}
	m.logger.Printf("[Bluetooth] device %s removed from BlueZ", addr)
	if s != nil {
		s.close(true)
	}
}

func (m *Manager) handlePropertiesChanged(ctx context.Context, path dbus.ObjectPath, changed map[string]dbus.Variant) {
	m.mu.Lock()
	addr, ok := m.paths[path]
	var kd *knownDevice
	if ok {
		kd = m.known[addr]
	}
	m.mu.Unlock()
	if kd == nil {
		return
	}

	if alias, ok := variantString(changed, "Alias"); ok {
		if kd.dev.SetName(alias) {
			m.producer.Emit(kd.dev, eventbus.DeviceNameChanged{Name: alias})
		}
	}

	if connected, ok := variantBool(changed, "Connected"); ok {
		if connected {
			if err := m.ensureSession(ctx, addr); err != nil {
				m.logger.Printf("[Bluetooth] %s: open session: %v", addr, err)
			}
		} else {
			// BT link is gone; close so the monitor winds down now
			// instead of waiting out a read error
			m.mu.Lock()
			s := m.sessions[addr]
			m.mu.Unlock()
			if s != nil {
				s.close(true)
			}
		}
	}
}

// ensureSession opens the accessory channel for addr unless one is
// already running.
func (m *Manager) ensureSession(ctx context.Context, addr string) error {
	m.mu.Lock()
	kd := m.known[addr]
	if kd == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, addr)
	}
	if _, running := m.sessions[addr]; running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	tr, err := m.dial(dialCtx, addr)
	cancel()
	if err != nil {
		return err
	}

	sctx, scancel := context.WithCancel(m.lifecycle.Context())
	s := &aapSession{
		device:   kd.dev,
		producer: m.bus.Producer(),
		tr:       tr,
		cancel:   scancel,
		done:     make(chan struct{}),
	}
	if err := s.handshake(); err != nil {
		s.producer.Close()
		scancel()
		tr.Close()
		return fmt.Errorf("bluetooth: handshake with %s: %w", addr, err)
	}

	m.mu.Lock()
	if _, running := m.sessions[addr]; running {
		m.mu.Unlock()
		s.producer.Close()
		scancel()
		tr.Close()
		return nil
	}
	m.sessions[addr] = s
	m.mu.Unlock()

	m.logger.Printf("[Bluetooth] %s: accessory session open", addr)
	m.lifecycle.Go(func(context.Context) { m.runSession(sctx, s) })
	return nil
}

// dropSession clears the registry entry once a monitor has exited.
func (m *Manager) dropSession(addr string, s *aapSession) {
	m.mu.Lock()
	if m.sessions[addr] == s {
		delete(m.sessions, addr)
	}
	m.mu.Unlock()
	m.logger.Printf("[Bluetooth] %s: accessory session closed", addr)
}

// scheduleReconnect retries a dropped session after the configured
// delay, provided the device still shows a Bluetooth link.
func (m *Manager) scheduleReconnect(addr string) {
	ctx := m.lifecycle.Context()
	m.lifecycle.Go(func(context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}
		if !m.linkUp(ctx, addr) {
			return
		}
		if err := m.ensureSession(ctx, addr); err != nil {
			m.logger.Printf("[Bluetooth] %s: reconnect: %v", addr, err)
		}
	})
}

// linkUp asks BlueZ whether the device's Bluetooth link is currently
// established. Without a bus connection it assumes yes.
func (m *Manager) linkUp(ctx context.Context, addr string) bool {
	m.mu.Lock()
	kd := m.known[addr]
	m.mu.Unlock()
	if kd == nil {
		return false
	}
	if m.conn == nil {
		return true
	}
	var v dbus.Variant
	err := m.conn.Object(bluezName, kd.path).CallWithContext(
		ctx, propertiesIface+".Get", 0, device1Iface, "Connected").Store(&v)
	if err != nil {
		return false
	}
	connected, _ := v.Value().(bool)
	return connected
}

// ConnectDevice establishes the accessory session for addr, asking
// BlueZ to bring the Bluetooth link up first when necessary.
func (m *Manager) ConnectDevice(ctx context.Context, addr string) error {
	addr = strings.ToUpper(addr)
	m.mu.Lock()
	kd := m.known[addr]
	m.mu.Unlock()
	if kd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, addr)
	}

	if m.conn != nil && !m.linkUp(ctx, addr) {
		call := m.conn.Object(bluezName, kd.path).CallWithContext(ctx, device1Iface+".Connect", 0)
		if call.Err != nil {
			return fmt.Errorf("bluetooth: connect %s: %w", addr, call.Err)
		}
	}
	return m.ensureSession(ctx, addr)
}

// DisconnectDevice closes the accessory session for addr. The
// Bluetooth link itself stays up.
func (m *Manager) DisconnectDevice(_ context.Context, addr string) error {
	addr = strings.ToUpper(addr)
	m.mu.Lock()
	s := m.sessions[addr]
	m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, addr)
	}
	s.close(true)
	<-s.done
	return nil
}

// SetNoiseMode selects the listening mode on the device. The state is
// updated optimistically; the device's own confirmation notification
// follows through the session monitor.
func (m *Manager) SetNoiseMode(_ context.Context, addr string, mode airpods.NoiseControlMode) error {
	s, err := m.session(addr)
	if err != nil {
		return err
	}
	if _, err := s.tr.Write(airpods.SetNoiseModePacket(mode)); err != nil {
		return fmt.Errorf("bluetooth: set noise mode on %s: %w", addr, err)
	}
	s.device.UpdateNoiseControl(mode)
	return nil
}

// SetFeature toggles a firmware feature on the device.
func (m *Manager) SetFeature(_ context.Context, addr string, f airpods.Feature, enabled bool) error {
	s, err := m.session(addr)
	if err != nil {
		return err
	}
	if _, err := s.tr.Write(airpods.SetFeaturePacket(f, enabled)); err != nil {
		return fmt.Errorf("bluetooth: set feature on %s: %w", addr, err)
	}
	return nil
}

// Passthrough writes a raw frame to the device's accessory channel.
func (m *Manager) Passthrough(_ context.Context, addr string, packet []byte) error {
	s, err := m.session(addr)
	if err != nil {
		return err
	}
	if _, err := s.tr.Write(packet); err != nil {
		return fmt.Errorf("bluetooth: passthrough to %s: %w", addr, err)
	}
	return nil
}

func (m *Manager) session(addr string) (*aapSession, error) {
	addr = strings.ToUpper(addr)
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[addr]; s != nil {
		return s, nil
	}
	if _, known := m.known[addr]; !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, addr)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotConnected, addr)
}

// Device returns the handle for addr.
func (m *Manager) Device(addr string) (*airpods.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kd := m.known[strings.ToUpper(addr)]; kd != nil {
		return kd.dev, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, addr)
}

// DeviceCount reports how many devices the registry tracks.
func (m *Manager) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.known)
}

// ConnectedCount reports how many tracked devices have an open
// accessory session.
func (m *Manager) ConnectedCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint32
	for _, kd := range m.known {
		if kd.dev.Connected() {
			n++
		}
	}
	return n
}

// DevicesJSON renders every tracked device as a JSON array, sorted by
// address for stable output.
func (m *Manager) DevicesJSON() string {
	m.mu.Lock()
	devices := make([]*airpods.Device, 0, len(m.known))
	for _, kd := range m.known {
		devices = append(devices, kd.dev)
	}
	m.mu.Unlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address() < devices[j].Address()
	})
	snaps := make([]airpods.Snapshot, len(devices))
	for i, dev := range devices {
		snaps[i] = dev.Snapshot()
	}
	buf, err := json.Marshal(snaps)
	if err != nil {
		return "[]"
	}
	return string(buf)
}

// DeviceJSON renders one tracked device.
func (m *Manager) DeviceJSON(addr string) (string, error) {
	dev, err := m.Device(addr)
	if err != nil {
		return "", err
	}
	return dev.Snapshot().JSON(), nil
}
