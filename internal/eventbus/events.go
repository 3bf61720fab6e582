package eventbus

import "github.com/kairpods/kairpodsd/internal/airpods"

// Event is one state transition reported by a device session. The set
// is closed; payloads are immutable values and never carry the device
// identity, which travels alongside in the envelope.
type Event interface {
	// Kind names the event for logs.
	Kind() string

	isEvent()
}

// DeviceConnected reports a completed accessory session handshake.
type DeviceConnected struct{}

// DeviceDisconnected reports a closed accessory session.
type DeviceDisconnected struct{}

// BatteryUpdated carries fresh charge levels.
type BatteryUpdated struct {
	Battery airpods.Battery
}

// NoiseControlChanged carries the new listening mode.
type NoiseControlChanged struct {
	Mode airpods.NoiseControlMode
}

// EarDetectionChanged carries the new worn state.
type EarDetectionChanged struct {
	Ear airpods.EarDetection
}

// DeviceNameChanged carries the new display name.
type DeviceNameChanged struct {
	Name string
}

// DeviceError reports a session fault on the device.
type DeviceError struct{}

func (DeviceConnected) Kind() string     { return "device_connected" }
func (DeviceDisconnected) Kind() string  { return "device_disconnected" }
func (BatteryUpdated) Kind() string      { return "battery_updated" }
func (NoiseControlChanged) Kind() string { return "noise_control_changed" }
func (EarDetectionChanged) Kind() string { return "ear_detection_changed" }
func (DeviceNameChanged) Kind() string   { return "device_name_changed" }
func (DeviceError) Kind() string         { return "device_error" }

func (DeviceConnected) isEvent()     {}
func (DeviceDisconnected) isEvent()  {}
func (BatteryUpdated) isEvent()      {}
func (NoiseControlChanged) isEvent() {}
func (EarDetectionChanged) isEvent() {}
func (DeviceNameChanged) isEvent()   {}
func (DeviceError) isEvent()         {}

// Envelope pairs an event with the device handle it concerns.
type Envelope struct {
	Device *airpods.Device
	Event  Event
}
