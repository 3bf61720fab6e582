package mediacontrol

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
)

// sweepTimeout bounds one full pause or resume pass so a hung player
// cannot stall the event loop driving us.
const sweepTimeout = 5 * time.Second

const statusPlaying = "Playing"

// Controller drives MPRIS players in response to worn-state changes.
// It remembers exactly which players it paused so a later Play resumes
// those and nothing else. The record mutex is held only to snapshot or
// swap the set, never across a bus call.
type Controller struct {
	players mpris
	logger  *log.Logger
	enabled atomic.Bool

	mu     sync.Mutex
	paused []string
}

// Option configures the controller.
type Option func(*Controller)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a controller talking MPRIS over the given session bus
// connection. Automatic play/pause starts enabled.
func New(conn *dbus.Conn, opts ...Option) *Controller {
	return newController(dbusMPRIS{conn: conn}, opts...)
}

func newController(players mpris, opts ...Option) *Controller {
	c := &Controller{players: players, logger: log.Default()}
	c.enabled.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEnabled toggles automatic play/pause.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled reports whether automatic play/pause is active.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// Pause pauses every player currently playing and records the set for
// the next Play. When nothing is playing any previous record is kept.
// All failures are logged and swallowed.
func (c *Controller) Pause(ctx context.Context) {
	if !c.enabled.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	names, err := c.players.ListNames(ctx)
	if err != nil {
		c.logger.Printf("[mediacontrol] list bus names: %v", err)
		return
	}

	var paused []string
	for _, name := range names {
		if !isMediaPlayer(name) {
			continue
		}
		status, err := c.players.PlaybackStatus(ctx, name)
		if err != nil {
			c.logger.Printf("[mediacontrol] %s: playback status: %v", name, err)
			continue
		}
		if status != statusPlaying {
			continue
		}
		if err := c.players.Call(ctx, name, "Pause"); err != nil {
			c.logger.Printf("[mediacontrol] pause %s: %v", name, err)
			continue
		}
		paused = append(paused, name)
	}

	if len(paused) == 0 {
		return
	}
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// Play resumes exactly the players recorded by the previous Pause and
// clears the record. Players paused by the user themselves are left
// alone.
func (c *Controller) Play(ctx context.Context) {
	if !c.enabled.Load() {
		return
	}
	c.mu.Lock()
	paused := c.paused
	c.paused = nil
	c.mu.Unlock()
	if len(paused) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	for _, name := range paused {
		if err := c.players.Call(ctx, name, "Play"); err != nil {
			c.logger.Printf("[mediacontrol] resume %s: %v", name, err)
		}
	}
}

// isMediaPlayer keeps real MPRIS players and drops KDE Connect's
// remote-control mirrors of phone players.
func isMediaPlayer(name string) bool {
	return strings.HasPrefix(name, mprisPrefix) &&
		!strings.Contains(name, "kdeconnect") &&
		!strings.Contains(name, "KDEConnect")
}
