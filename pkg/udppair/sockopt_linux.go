//go:build linux

package udppair

import (
	"net"

	"golang.org/x/sys/unix"
)

func setPriority(c *net.UDPConn, prio int) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, prio)
	})
	if err != nil {
		return err
	}
	return serr
}
