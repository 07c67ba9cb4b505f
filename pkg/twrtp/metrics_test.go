package twrtp

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	e := newTestEndpoint(t, testConfig(), newFakeClock())
	remote := &net.UDPAddr{IP: loopback, Port: 4000}
	require.NoError(t, e.SetRemote(remote))

	e.HandleRTP(rtpFrame(t, remoteSSRC, 1, 0, []byte{1, 2}), remote, time.Now())
	e.HandleRTP(rtpFrame(t, remoteSSRC, 2, 160, []byte{3, 4}), remote, time.Now())
	e.HandleRTP(rtpFrame(t, remoteSSRC, 3, 320, []byte{5}), &net.UDPAddr{IP: loopback, Port: 5000}, time.Now())
	_, ok := e.Pull()
	require.True(t, ok)

	c := NewCollector("twjit")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 0, testutil.CollectAndCount(c))

	c.Add("ts0", e)
	assert.Equal(t, 18, testutil.CollectAndCount(c))

	expected := `
# HELP twjit_rtp_rx_packets_total RTP packets accepted
# TYPE twjit_rtp_rx_packets_total counter
twjit_rtp_rx_packets_total{channel="ts0"} 2
# HELP twjit_rtp_rx_bad_source_total RTP packets from an unexpected address
# TYPE twjit_rtp_rx_bad_source_total counter
twjit_rtp_rx_bad_source_total{channel="ts0"} 1
# HELP twjit_jitter_delivered frames handed to the consumer since the last stream reset
# TYPE twjit_jitter_delivered gauge
twjit_jitter_delivered{channel="ts0"} 1
# HELP twjit_jitter_depth frames queued in the read sub-buffer
# TYPE twjit_jitter_depth gauge
twjit_jitter_depth{channel="ts0"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"twjit_rtp_rx_packets_total",
		"twjit_rtp_rx_bad_source_total",
		"twjit_jitter_delivered",
		"twjit_jitter_depth",
	))

	e.Reset()
	afterReset := `
# HELP twjit_rtp_rx_packets_total RTP packets accepted
# TYPE twjit_rtp_rx_packets_total counter
twjit_rtp_rx_packets_total{channel="ts0"} 2
# HELP twjit_jitter_delivered frames handed to the consumer since the last stream reset
# TYPE twjit_jitter_delivered gauge
twjit_jitter_delivered{channel="ts0"} 0
# HELP twjit_jitter_depth frames queued in the read sub-buffer
# TYPE twjit_jitter_depth gauge
twjit_jitter_depth{channel="ts0"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(afterReset),
		"twjit_rtp_rx_packets_total",
		"twjit_jitter_delivered",
		"twjit_jitter_depth",
	))

	c.Remove("ts0")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestCollectorWithoutJitter(t *testing.T) {
	conf := testConfig()
	conf.Jitter = nil
	e := newTestEndpoint(t, conf, newFakeClock())

	c := NewCollector("twjit")
	c.Add("ts1", e)
	assert.Equal(t, 12, testutil.CollectAndCount(c))
}
