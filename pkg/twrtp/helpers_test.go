package twrtp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/channel-io/go-twjit/pkg/rtphdr"
	"github.com/channel-io/go-twjit/pkg/udppair"
)

var loopback = net.IPv4(127, 0, 0, 1)

const (
	testSSRC   = 0x11223344
	remoteSSRC = 0xa1b2c3d4
	initSeq    = 100
	initTS     = 1000
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedSSRC uint32

func (f fixedSSRC) GenerateSSRC() (uint32, error) {
	return uint32(f), nil
}

func testConfig() Config {
	conf := DefaultConfig()
	conf.AutoRTCPInterval = 0
	return conf
}

func newTestEndpoint(t *testing.T, conf Config, clock Clock, opts ...Option) *Endpoint {
	t.Helper()
	opts = append([]Option{
		WithClock(clock),
		WithSSRCProvider(fixedSSRC(testSSRC)),
		WithInitialSeqTS(initSeq, initTS),
	}, opts...)
	e, err := New(conf, opts...)
	require.NoError(t, err)
	return e
}

// newBoundPeer binds e on loopback plus a bare socket pair standing in for
// the remote side, and points e at it.
func newBoundPeer(t *testing.T, e *Endpoint) *udppair.Pair {
	t.Helper()
	require.NoError(t, e.Bind(loopback, 0))
	peer, err := udppair.Bind(loopback, 0)
	require.NoError(t, err)
	require.NoError(t, e.SetRemote(peer.LocalAddr()))
	t.Cleanup(func() {
		peer.Close()
		e.Close()
	})
	return peer
}

func readDatagram(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, maxDatagram)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func rtpFrame(t *testing.T, ssrc uint32, seq uint16, ts uint32, payload []byte) []byte {
	t.Helper()
	buf, err := rtphdr.BuildRTP(rtphdr.Header{
		PayloadType:    3,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
	}, payload)
	require.NoError(t, err)
	return buf
}
