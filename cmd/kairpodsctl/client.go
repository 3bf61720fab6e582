package main

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/server"
)

// managerClient wraps the daemon's manager object on the session bus.
// The connection is private so closing it never disturbs other D-Bus
// users in the process.
type managerClient struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func newManagerClient() (*managerClient, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &managerClient{
		conn: conn,
		obj:  conn.Object(server.BusName, server.Path),
	}, nil
}

func (c *managerClient) Close() error {
	return c.conn.Close()
}

// call invokes one manager method and stores the single return value
// into ret when ret is non-nil.
func (c *managerClient) call(ctx context.Context, method string, ret any, args ...any) error {
	call := c.obj.CallWithContext(ctx, server.Interface+"."+method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if ret == nil {
		return nil
	}
	return call.Store(ret)
}

// withManager connects to the daemon, runs fn under a call deadline and
// cleans up the connection afterwards.
func withManager(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, c *managerClient, out *OutputFormatter) error) error {
	out := newOutputFormatter(cmd)

	c, err := newManagerClient()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return fn(ctx, c, out)
}
