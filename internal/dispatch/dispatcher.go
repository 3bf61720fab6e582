package dispatch

import (
	"context"
	"log"

	"github.com/kairpods/kairpodsd/internal/eventbus"
)

// Publisher receives the bus-facing effects of dispatched events:
// signal emissions and property refreshes. Calls arrive strictly
// serialized.
type Publisher interface {
	DeviceConnected(addr string) error
	DeviceDisconnected(addr string) error
	BatteryUpdated(addr, battery string) error
	NoiseControlChanged(addr, mode string) error
	EarDetectionChanged(addr, ear string) error
	DeviceNameChanged(addr, name string) error
	DeviceError(addr string) error
	DevicesChanged() error
	ConnectedCountChanged() error
}

// MediaController reacts to worn-state transitions. Implementations
// swallow their own failures; playback control must never stall
// dispatch.
type MediaController interface {
	Play(ctx context.Context)
	Pause(ctx context.Context)
}

// Dispatcher is the single consumer of the event bus. Because it alone
// drains the queue, every downstream effect of one event completes
// before the next event is looked at.
type Dispatcher struct {
	bus    *eventbus.Bus
	pub    Publisher
	media  MediaController
	logger *log.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New constructs a dispatcher draining bus into pub and media.
func New(bus *eventbus.Bus, pub Publisher, media MediaController, opts ...Option) *Dispatcher {
	d := &Dispatcher{bus: bus, pub: pub, media: media, logger: log.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drains the bus until every producer handle is gone. A publish
// failure abandons the remaining effects of that one event, is
// logged, and the loop moves on.
func (d *Dispatcher) Run() {
	for {
		env, ok := d.bus.Recv()
		if !ok {
			return
		}
		if err := d.dispatch(env); err != nil {
			d.logger.Printf("[dispatch] %s for %s: %v", env.Event.Kind(), env.Device.Address(), err)
		}
	}
}

func (d *Dispatcher) dispatch(env eventbus.Envelope) error {
	addr := env.Device.Address()
	switch ev := env.Event.(type) {
	case eventbus.DeviceConnected:
		if err := d.pub.DeviceConnected(addr); err != nil {
			return err
		}
		if err := d.pub.DevicesChanged(); err != nil {
			return err
		}
		return d.pub.ConnectedCountChanged()
	case eventbus.DeviceDisconnected:
		if err := d.pub.DeviceDisconnected(addr); err != nil {
			return err
		}
		if err := d.pub.DevicesChanged(); err != nil {
			return err
		}
		return d.pub.ConnectedCountChanged()
	case eventbus.BatteryUpdated:
		if err := d.pub.BatteryUpdated(addr, ev.Battery.JSON()); err != nil {
			return err
		}
		return d.pub.DevicesChanged()
	case eventbus.NoiseControlChanged:
		if err := d.pub.NoiseControlChanged(addr, ev.Mode.String()); err != nil {
			return err
		}
		return d.pub.DevicesChanged()
	case eventbus.EarDetectionChanged:
		if err := d.pub.EarDetectionChanged(addr, ev.Ear.JSON()); err != nil {
			return err
		}
		if err := d.pub.DevicesChanged(); err != nil {
			return err
		}
		// resume only with both buds worn, pause the moment either
		// comes out
		if ev.Ear.BothInEar() {
			d.media.Play(context.Background())
		} else {
			d.media.Pause(context.Background())
		}
		return nil
	case eventbus.DeviceNameChanged:
		if err := d.pub.DeviceNameChanged(addr, ev.Name); err != nil {
			return err
		}
		return d.pub.DevicesChanged()
	case eventbus.DeviceError:
		if err := d.pub.DeviceError(addr); err != nil {
			return err
		}
		return d.pub.DevicesChanged()
	default:
		d.logger.Printf("[dispatch] unhandled event kind %s", env.Event.Kind())
		return nil
	}
}
