//go:build !linux

package udppair

import "net"

func setPriority(c *net.UDPConn, prio int) error {
	return ErrUnsupported
}
