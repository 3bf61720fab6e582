package daemon

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/kairpods/kairpodsd/internal/batterystudy"
	"github.com/kairpods/kairpodsd/internal/bluetooth"
	"github.com/kairpods/kairpodsd/internal/config"
	"github.com/kairpods/kairpodsd/internal/dispatch"
	"github.com/kairpods/kairpodsd/internal/eventbus"
	"github.com/kairpods/kairpodsd/internal/mediacontrol"
	"github.com/kairpods/kairpodsd/internal/server"
)

// stopTimeout bounds the orderly shutdown of the bluetooth manager and
// the dispatcher drain.
const stopTimeout = 5 * time.Second

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Config config.Config
	Study  *batterystudy.Study // optional; nil disables persistence
}

// Daemon owns the full pipeline: the bluetooth manager producing
// events, the single dispatcher consuming them, and the bus surface
// they meet at.
type Daemon struct {
	cfg config.Config

	sessionBus *dbus.Conn
	systemBus  *dbus.Conn

	bus        *eventbus.Bus
	manager    *bluetooth.Manager
	media      *mediacontrol.Controller
	server     *server.Server
	dispatcher *dispatch.Dispatcher

	cancel context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
}

// New connects both buses and wires the daemon's components. Either
// bus being unreachable is fatal: without the session bus there is no
// service surface, without the system bus no BlueZ.
func New(opts Options) (*Daemon, error) {
	sessionBus, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("daemon: connect session bus: %w", err)
	}
	systemBus, err := dbus.SystemBus()
	if err != nil {
		sessionBus.Close()
		return nil, fmt.Errorf("daemon: connect system bus: %w", err)
	}

	bus := eventbus.New()

	media := mediacontrol.New(sessionBus)
	media.SetEnabled(opts.Config.AutoPlayPause)

	manager, err := bluetooth.NewManager(bluetooth.ManagerOptions{
		Bus:    bus,
		Config: opts.Config,
		Study:  opts.Study,
		Conn:   systemBus,
	})
	if err != nil {
		sessionBus.Close()
		systemBus.Close()
		return nil, err
	}

	srv, err := server.New(server.Options{
		Conn:    sessionBus,
		Devices: manager,
		Media:   media,
	})
	if err != nil {
		sessionBus.Close()
		systemBus.Close()
		return nil, err
	}

	return &Daemon{
		cfg:        opts.Config,
		sessionBus: sessionBus,
		systemBus:  systemBus,
		bus:        bus,
		manager:    manager,
		media:      media,
		server:     srv,
		dispatcher: dispatch.New(bus, srv, media),
		done:       make(chan struct{}),
	}, nil
}

// Start claims the bus name, starts the bluetooth manager and runs the
// dispatcher. It blocks until Shutdown is called, then winds the
// pipeline down in producer-first order and reports any startup or
// shutdown error.
func (d *Daemon) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	defer cancel()

	// the name must be ours before devices start reporting
	if err := d.server.Start(ctx); err != nil {
		d.closeBuses()
		return err
	}
	if err := d.manager.Start(ctx); err != nil {
		d.server.Stop()
		d.closeBuses()
		return err
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		d.dispatcher.Run()
	}()
	log.Printf("[Daemon] running")

	<-d.done

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	// closing the manager closes every producer handle, which is what
	// the dispatcher's exit condition observes
	if err := d.manager.Stop(stopCtx); err != nil {
		log.Printf("[Daemon] bluetooth manager stop: %v", err)
	}
	select {
	case <-dispatchDone:
	case <-stopCtx.Done():
		log.Printf("[Daemon] dispatcher did not drain in time")
	}

	d.server.Stop()
	d.closeBuses()
	log.Printf("[Daemon] stopped")
	return nil
}

// Shutdown signals Start to wind down. Safe to call more than once and
// from any goroutine.
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Daemon) closeBuses() {
	if err := d.sessionBus.Close(); err != nil {
		log.Printf("[Daemon] close session bus: %v", err)
	}
	if err := d.systemBus.Close(); err != nil {
		log.Printf("[Daemon] close system bus: %v", err)
	}
}
