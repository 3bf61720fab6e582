package bluetooth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

// DialFunc opens an accessory channel to the device at the given
// Bluetooth address. The production dialer returns an L2CAP SEQPACKET
// socket; tests substitute an in-memory transport.
type DialFunc func(ctx context.Context, address string) (io.ReadWriteCloser, error)

// dialL2CAP opens the accessory L2CAP channel on PSM 0x1001. The
// returned file is in non-blocking mode so Close unblocks a pending
// Read through the runtime poller.
func dialL2CAP(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	bdaddr, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("bluetooth: l2cap socket: %w", err)
	}

	sa := &unix.SockaddrL2{
		PSM:      airpods.ProtocolPSM,
		Addr:     bdaddr,
		AddrType: unix.BDADDR_BREDR,
	}

	// connect in a helper goroutine so ctx bounds the kernel's own
	// connection timeout
	errc := make(chan error, 1)
	go func() { errc <- unix.Connect(fd, sa) }()
	select {
	case err = <-errc:
	case <-ctx.Done():
		unix.Close(fd)
		return nil, fmt.Errorf("bluetooth: connect %s: %w", address, ctx.Err())
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluetooth: connect %s: %w", address, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluetooth: set nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), "l2cap:"+address), nil
}

// NormalizeAddress validates a colon-separated Bluetooth address and
// returns its canonical upper-case form.
func NormalizeAddress(address string) (string, error) {
	if _, err := parseBDAddr(address); err != nil {
		return "", err
	}
	return strings.ToUpper(address), nil
}

// parseBDAddr converts "AA:BB:CC:DD:EE:FF" to the kernel's
// little-endian byte order.
func parseBDAddr(address string) ([6]uint8, error) {
	var addr [6]uint8
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("bluetooth: malformed address %q", address)
	}
	for i, part := range parts {
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("bluetooth: malformed address %q: %w", address, err)
		}
		addr[5-i] = uint8(b)
	}
	return addr, nil
}
