package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Listen opens an IPv4 TCP listener on addr with SO_REUSEADDR set before
// bind, so restarts do not trip over sockets in TIME_WAIT.
func Listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	listener, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, bindError(addr, err)
	}
	return listener, nil
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}

// bindError wraps a bind failure with the address and the usual cause.
func bindError(addr string, err error) error {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return fmt.Errorf("http: bind %s: port already in use: %w", addr, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, os.ErrPermission):
		return fmt.Errorf("http: bind %s: permission denied (privileged port?): %w", addr, err)
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return fmt.Errorf("http: bind %s: address not available: %w", addr, err)
	default:
		return fmt.Errorf("http: bind %s: invalid address or listen failure: %w", addr, err)
	}
}
