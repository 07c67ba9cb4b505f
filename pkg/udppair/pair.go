// Package udppair binds the even/odd UDP port pair that carries one RTP
// session and its RTCP companion (RFC 3550 section 11).
package udppair

import (
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ephemeralAttempts bounds the search for an even ephemeral port.
const ephemeralAttempts = 32

var (
	ErrOddPort     = errors.New("RTP port must be even")
	ErrInvalidDSCP = errors.New("DSCP must be in 0..63")
	ErrUnsupported = errors.New("not supported on this platform")
	ErrExhausted   = errors.New("no free port pair")
)

// Pair is a bound RTP socket and the RTCP socket on the next port.
type Pair struct {
	RTP  *net.UDPConn
	RTCP *net.UDPConn
}

// Bind binds ip:port for RTP and ip:port+1 for RTCP. Port 0 picks a free
// even ephemeral port. Either both sockets are returned or neither is left
// open.
func Bind(ip net.IP, port int) (*Pair, error) {
	if port == 0 {
		return bindEphemeral(ip)
	}
	if port%2 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrOddPort, port)
	}
	return bindAt(ip, port)
}

func bindAt(ip net.IP, port int) (*Pair, error) {
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind RTP socket: %w", err)
	}
	rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port + 1})
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("failed to bind RTCP socket: %w", err)
	}

	p := &Pair{RTP: rtpConn, RTCP: rtcpConn}
	logrus.WithFields(logrus.Fields{
		"function": "udppair.Bind",
		"rtp":      rtpConn.LocalAddr().String(),
		"rtcp":     rtcpConn.LocalAddr().String(),
	}).Debug("Bound RTP/RTCP socket pair")
	return p, nil
}

func bindEphemeral(ip net.IP) (*Pair, error) {
	for i := 0; i < ephemeralAttempts; i++ {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip})
		if err != nil {
			return nil, fmt.Errorf("failed to bind RTP socket: %w", err)
		}
		port := rtpConn.LocalAddr().(*net.UDPAddr).Port
		if port%2 != 0 {
			rtpConn.Close()
			continue
		}
		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}
		return &Pair{RTP: rtpConn, RTCP: rtcpConn}, nil
	}
	return nil, fmt.Errorf("%w: no even ephemeral port after %d attempts", ErrExhausted, ephemeralAttempts)
}

// Close closes both sockets and returns the first error.
func (p *Pair) Close() error {
	err := p.RTP.Close()
	if cerr := p.RTCP.Close(); err == nil {
		err = cerr
	}
	return err
}

// LocalAddr is the address of the RTP socket.
func (p *Pair) LocalAddr() *net.UDPAddr {
	return p.RTP.LocalAddr().(*net.UDPAddr)
}

// SetDSCP sets the DiffServ code point on both sockets. The RTP socket is
// done first; an error there leaves the RTCP socket untouched.
func (p *Pair) SetDSCP(dscp int) error {
	if dscp < 0 || dscp > 63 {
		return fmt.Errorf("%w: %d", ErrInvalidDSCP, dscp)
	}
	if err := setDSCP(p.RTP, dscp); err != nil {
		return fmt.Errorf("failed to set DSCP on RTP socket: %w", err)
	}
	if err := setDSCP(p.RTCP, dscp); err != nil {
		return fmt.Errorf("failed to set DSCP on RTCP socket: %w", err)
	}
	return nil
}

// SetPriority sets the socket priority (SO_PRIORITY) on both sockets, RTP
// first.
func (p *Pair) SetPriority(prio int) error {
	if err := setPriority(p.RTP, prio); err != nil {
		return fmt.Errorf("failed to set priority on RTP socket: %w", err)
	}
	if err := setPriority(p.RTCP, prio); err != nil {
		return fmt.Errorf("failed to set priority on RTCP socket: %w", err)
	}
	return nil
}

func setDSCP(c *net.UDPConn, dscp int) error {
	tos := dscp << 2
	if addr, ok := c.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() == nil && addr.IP != nil {
		return ipv6.NewConn(c).SetTrafficClass(tos)
	}
	return ipv4.NewConn(c).SetTOS(tos)
}
