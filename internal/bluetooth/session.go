package bluetooth

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/kairpods/kairpodsd/internal/airpods"
	"github.com/kairpods/kairpodsd/internal/eventbus"
)

// maxFrameSize bounds one inbound accessory frame. Real notification
// frames are tens of bytes; anything larger is a protocol violation.
const maxFrameSize = 1024

// aapSession is one open accessory channel with its monitor goroutine.
// The session owns its event producer, so the per-device event order
// is exactly the order the monitor decoded the notifications in.
type aapSession struct {
	device   *airpods.Device
	producer *eventbus.Producer
	tr       io.ReadWriteCloser
	cancel   context.CancelFunc
	done     chan struct{}
	studyID  string

	// explicit marks a requested disconnect, which suppresses the
	// reconnect attempt the monitor otherwise schedules.
	explicit bool
}

func (s *aapSession) close(explicit bool) {
	if explicit {
		s.explicit = true
	}
	s.cancel()
	s.tr.Close()
}

// handshake opens the accessory dialogue: the hello frame, then the
// subscription to all state notifications.
func (s *aapSession) handshake() error {
	if _, err := s.tr.Write(airpods.HandshakePacket()); err != nil {
		return err
	}
	_, err := s.tr.Write(airpods.NotificationsRequestPacket())
	return err
}

// runSession drives one accessory session to completion: emit the
// connect event, decode notifications until the channel drops, then
// emit the disconnect event. The producer handle closes with the
// session, which is what lets the dispatcher observe daemon shutdown.
func (m *Manager) runSession(ctx context.Context, s *aapSession) {
	defer close(s.done)
	defer s.producer.Close()
	defer s.tr.Close()

	addr := s.device.Address()
	started := time.Now()

	s.device.SetConnected(true)
	s.producer.Emit(s.device, eventbus.DeviceConnected{})
	m.startStudySession(ctx, s)

	faulted := m.monitor(ctx, s)

	s.device.SetConnected(false)
	if faulted {
		s.producer.Emit(s.device, eventbus.DeviceError{})
	}
	s.producer.Emit(s.device, eventbus.DeviceDisconnected{})
	m.endStudySession(s)
	if rate, ok := s.device.DrainRate(time.Since(started)); ok {
		m.logger.Printf("[Bluetooth] %s: drained about %.1f%%/h over this session", addr, rate)
	}
	m.dropSession(addr, s)

	if !s.explicit && ctx.Err() == nil {
		m.scheduleReconnect(addr)
	}
}

// monitor reads and applies notifications until the channel closes.
// It reports whether the session ended on a fault rather than a clean
// shutdown.
func (m *Manager) monitor(ctx context.Context, s *aapSession) bool {
	buf := make([]byte, maxFrameSize)
	for {
		n, err := s.tr.Read(buf)
		if err != nil {
			if ctx.Err() != nil || isClosedTransport(err) {
				return false
			}
			m.logger.Printf("[Bluetooth] %s: session read: %v", s.device.Address(), err)
			return true
		}
		if n == 0 {
			continue
		}
		m.applyNotification(ctx, s, buf[:n])
	}
}

// applyNotification decodes one frame, folds it into the device state
// and emits the matching event. Unknown frames are skipped, dumped
// only under the debug filter; malformed ones are logged and skipped.
func (m *Manager) applyNotification(ctx context.Context, s *aapSession, frame []byte) {
	note, err := airpods.DecodeNotification(frame)
	if err != nil {
		if !errors.Is(err, airpods.ErrUnknownPacket) {
			m.logger.Printf("[Bluetooth] %s: decode: %v", s.device.Address(), err)
		} else if m.debug {
			m.logger.Printf("[Bluetooth] %s: skipping unrecognized frame % x", s.device.Address(), frame)
		}
		return
	}

	switch n := note.(type) {
	case airpods.BatteryNotification:
		s.device.UpdateBattery(n.Battery)
		s.producer.Emit(s.device, eventbus.BatteryUpdated{Battery: n.Battery})
		m.recordStudySample(ctx, s, n.Battery)
	case airpods.EarDetectionNotification:
		s.device.UpdateEarDetection(n.Ear)
		s.producer.Emit(s.device, eventbus.EarDetectionChanged{Ear: n.Ear})
	case airpods.NoiseControlNotification:
		s.device.UpdateNoiseControl(n.Mode)
		s.producer.Emit(s.device, eventbus.NoiseControlChanged{Mode: n.Mode})
	}
}

func (m *Manager) startStudySession(ctx context.Context, s *aapSession) {
	if m.study == nil {
		return
	}
	session, err := m.study.StartSession(ctx, s.device.Address())
	if err != nil {
		m.logger.Printf("[Bluetooth] %s: start study session: %v", s.device.Address(), err)
		return
	}
	s.studyID = session.ID
}

func (m *Manager) recordStudySample(ctx context.Context, s *aapSession, b airpods.Battery) {
	if m.study == nil || s.studyID == "" {
		return
	}
	if err := m.study.RecordSample(ctx, s.studyID, s.device.Address(), time.Now(), b); err != nil {
		m.logger.Printf("[Bluetooth] %s: record study sample: %v", s.device.Address(), err)
	}
}

func (m *Manager) endStudySession(s *aapSession) {
	if m.study == nil || s.studyID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.study.EndSession(ctx, s.studyID); err != nil {
		m.logger.Printf("[Bluetooth] %s: end study session: %v", s.device.Address(), err)
	}
}

// isClosedTransport matches the errors a Read returns once Close has
// been called from another goroutine.
func isClosedTransport(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
