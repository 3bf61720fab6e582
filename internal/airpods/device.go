package airpods

import (
	"encoding/json"
	"sync"
	"time"
)

// Device is the shared handle for one tracked earbud set. The address
// is immutable and serves as the correlation key on the bus; the rest
// of the state is mutex-guarded so the session monitor, the event
// dispatcher and method-call handlers can hold the same pointer.
type Device struct {
	address string

	mu        sync.RWMutex
	name      string
	connected bool
	battery   Battery
	ear       EarDetection
	noiseMode NoiseControlMode
	lastSeen  time.Time
	history   *BatteryHistory
}

// NewDevice constructs a handle for the given Bluetooth address.
func NewDevice(address, name string) *Device {
	return &Device{
		address:   address,
		name:      name,
		battery:   UnknownBattery(),
		noiseMode: NoiseControlOff,
		lastSeen:  time.Now(),
		history:   NewBatteryHistory(0),
	}
}

// Address returns the immutable Bluetooth address.
func (d *Device) Address() string {
	return d.address
}

func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// SetName records a new display name and reports whether it changed.
func (d *Device) SetName(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == "" || name == d.name {
		return false
	}
	d.name = name
	d.lastSeen = time.Now()
	return true
}

func (d *Device) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Device) SetConnected(connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = connected
	d.lastSeen = time.Now()
}

func (d *Device) Battery() Battery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.battery
}

// UpdateBattery stores a fresh reading and appends it to the retained
// history.
func (d *Device) UpdateBattery(b Battery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	d.battery = b
	d.lastSeen = now
	d.history.Record(now, b)
}

func (d *Device) EarDetection() EarDetection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ear
}

func (d *Device) UpdateEarDetection(e EarDetection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ear = e
	d.lastSeen = time.Now()
}

func (d *Device) NoiseControl() NoiseControlMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.noiseMode
}

func (d *Device) UpdateNoiseControl(m NoiseControlMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noiseMode = m
	d.lastSeen = time.Now()
}

// DrainRate estimates battery percent drained per hour over the most
// recent window of history.
func (d *Device) DrainRate(window time.Duration) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history.DrainRate(window)
}

// Snapshot is a point-in-time copy of the device state, shaped for the
// devices property and GetDevice payloads.
type Snapshot struct {
	Address      string           `json:"address"`
	Name         string           `json:"name"`
	Connected    bool             `json:"connected"`
	Battery      Battery          `json:"battery"`
	EarDetection EarDetection     `json:"ear_detection"`
	NoiseMode    NoiseControlMode `json:"noise_control_mode"`
	LastSeen     time.Time        `json:"last_seen"`
}

func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		Address:      d.address,
		Name:         d.name,
		Connected:    d.connected,
		Battery:      d.battery,
		EarDetection: d.ear,
		NoiseMode:    d.noiseMode,
		LastSeen:     d.lastSeen,
	}
}

// JSON renders the snapshot as one element of the devices payload.
func (s Snapshot) JSON() string {
	buf, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(buf)
}
