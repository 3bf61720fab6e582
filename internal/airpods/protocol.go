package airpods

import (
	"bytes"
	"errors"
	"fmt"
)

// The accessory protocol runs over an L2CAP SEQPACKET channel on PSM
// 0x1001. Frames carry a fixed per-type prefix; the layouts below come
// from public captures of the protocol.

// ProtocolPSM is the L2CAP protocol/service multiplexer of the
// accessory channel.
const ProtocolPSM = 0x1001

var (
	handshakePacket     = []byte{0x00, 0x00, 0x04, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	notificationsPacket = []byte{0x04, 0x00, 0x04, 0x00, 0x0F, 0x00, 0xFF, 0xFF, 0xFE, 0xFF}

	batteryPrefix = []byte{0x04, 0x00, 0x04, 0x00, 0x04, 0x00}
	earPrefix     = []byte{0x04, 0x00, 0x04, 0x00, 0x06, 0x00}
	controlPrefix = []byte{0x04, 0x00, 0x04, 0x00, 0x09, 0x00}
)

// controlNoiseMode is the control identifier for listening modes.
const controlNoiseMode = 0x0D

// Battery component identifiers.
const (
	componentRight = 0x02
	componentLeft  = 0x04
	componentCase  = 0x08
)

// Battery charging states.
const (
	chargingActive       = 0x01
	chargingInactive     = 0x02
	chargingDisconnected = 0x04
)

// Feature toggle values.
const (
	featureEnabled  = 0x01
	featureDisabled = 0x02
)

// HandshakePacket returns the frame that opens an accessory session.
func HandshakePacket() []byte {
	return append([]byte(nil), handshakePacket...)
}

// NotificationsRequestPacket returns the frame that subscribes to all
// state notifications.
func NotificationsRequestPacket() []byte {
	return append([]byte(nil), notificationsPacket...)
}

// SetNoiseModePacket builds the control frame selecting a listening
// mode.
func SetNoiseModePacket(m NoiseControlMode) []byte {
	p := append([]byte(nil), controlPrefix...)
	return append(p, controlNoiseMode, byte(m), 0x00, 0x00, 0x00)
}

// SetFeaturePacket builds the control frame toggling a feature.
func SetFeaturePacket(f Feature, enabled bool) []byte {
	v := byte(featureDisabled)
	if enabled {
		v = featureEnabled
	}
	p := append([]byte(nil), controlPrefix...)
	return append(p, byte(f), v, 0x00, 0x00, 0x00)
}

// Notification is a decoded inbound state frame.
type Notification interface {
	notification()
}

// BatteryNotification reports fresh charge levels.
type BatteryNotification struct {
	Battery Battery
}

// EarDetectionNotification reports the worn state of both buds.
type EarDetectionNotification struct {
	Ear EarDetection
}

// NoiseControlNotification reports the active listening mode.
type NoiseControlNotification struct {
	Mode NoiseControlMode
}

func (BatteryNotification) notification()      {}
func (EarDetectionNotification) notification() {}
func (NoiseControlNotification) notification() {}

// ErrUnknownPacket marks well-formed frames of a type this decoder
// does not track. Callers skip them.
var ErrUnknownPacket = errors.New("airpods: unrecognized packet")

// DecodeNotification parses one inbound accessory frame.
func DecodeNotification(payload []byte) (Notification, error) {
	switch {
	case bytes.HasPrefix(payload, batteryPrefix):
		return decodeBattery(payload)
	case bytes.HasPrefix(payload, earPrefix):
		if len(payload) < 8 {
			return nil, fmt.Errorf("airpods: short ear detection packet (%d bytes)", len(payload))
		}
		return EarDetectionNotification{Ear: EarDetection{
			LeftInEar:  payload[6] == 0x00,
			RightInEar: payload[7] == 0x00,
		}}, nil
	case bytes.HasPrefix(payload, controlPrefix):
		if len(payload) < 8 {
			return nil, fmt.Errorf("airpods: short control packet (%d bytes)", len(payload))
		}
		if payload[6] != controlNoiseMode {
			return nil, ErrUnknownPacket
		}
		m := NoiseControlMode(payload[7])
		if !m.Valid() {
			return nil, fmt.Errorf("airpods: noise control mode byte %#x out of range", payload[7])
		}
		return NoiseControlNotification{Mode: m}, nil
	}
	return nil, ErrUnknownPacket
}

// decodeBattery parses the component list of a battery frame: a count
// byte followed by five bytes per component.
func decodeBattery(payload []byte) (Notification, error) {
	if len(payload) < 7 {
		return nil, fmt.Errorf("airpods: short battery packet (%d bytes)", len(payload))
	}
	count := int(payload[6])
	b := UnknownBattery()
	off := 7
	for i := 0; i < count; i++ {
		if off+5 > len(payload) {
			return nil, fmt.Errorf("airpods: battery packet truncated at component %d", i)
		}
		component := payload[off]
		level := int(payload[off+2])
		state := payload[off+3]
		c := Component{Level: level, Charging: state == chargingActive}
		if level > 100 || state == chargingDisconnected {
			c = Component{Level: LevelUnknown}
		}
		switch component {
		case componentLeft:
			b.Left = c
		case componentRight:
			b.Right = c
		case componentCase:
			b.Case = c
		}
		off += 5
	}
	return BatteryNotification{Battery: b}, nil
}
