package mediacontrol

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix = "org.mpris.MediaPlayer2."
	mprisPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// mpris abstracts the player-facing bus calls so the pause/resume
// bookkeeping stays testable without a session bus.
type mpris interface {
	ListNames(ctx context.Context) ([]string, error)
	PlaybackStatus(ctx context.Context, player string) (string, error)
	Call(ctx context.Context, player, method string) error
}

// dbusMPRIS talks to players over the session bus.
type dbusMPRIS struct {
	conn *dbus.Conn
}

func (m dbusMPRIS) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := m.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (m dbusMPRIS) PlaybackStatus(ctx context.Context, player string) (string, error) {
	call := m.conn.Object(player, mprisPath).CallWithContext(
		ctx, "org.freedesktop.DBus.Properties.Get", 0, playerIface, "PlaybackStatus")
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("playback status is %T, not a string", v.Value())
	}
	return s, nil
}

func (m dbusMPRIS) Call(ctx context.Context, player, method string) error {
	return m.conn.Object(player, mprisPath).CallWithContext(ctx, playerIface+"."+method, 0).Err
}
