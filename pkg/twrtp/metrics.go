package twrtp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/channel-io/go-twjit/pkg/jitter"
)

type metricDesc struct {
	desc  *prometheus.Desc
	vtype prometheus.ValueType
	value func(s Stats) uint64
}

type jitterDesc struct {
	desc  *prometheus.Desc
	value func(j *jitter.Jitter) float64
}

// Collector exports endpoint and jitter buffer statistics for a set of named
// endpoints. Each endpoint is labelled by its channel name.
type Collector struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint

	endpoint []metricDesc
	jitter   []jitterDesc
}

func NewCollector(namespace string) *Collector {
	labels := []string{"channel"}
	counter := func(name, help string, f func(s Stats) uint64) metricDesc {
		return metricDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "rtp", name), help, labels, nil),
			vtype: prometheus.CounterValue,
			value: f,
		}
	}
	jitterMetric := func(name, help string, f func(j *jitter.Jitter) float64) jitterDesc {
		return jitterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "jitter", name), help, labels, nil),
			value: f,
		}
	}

	return &Collector{
		endpoints: make(map[string]*Endpoint),
		endpoint: []metricDesc{
			counter("rx_packets_total", "RTP packets accepted", func(s Stats) uint64 { return s.RxRTPPackets }),
			counter("rx_octets_total", "RTP payload octets accepted", func(s Stats) uint64 { return s.RxRTPOctets }),
			counter("rx_bad_source_total", "RTP packets from an unexpected address", func(s Stats) uint64 { return s.RxRTPBadSrc }),
			counter("rx_invalid_total", "RTP packets that failed to parse", func(s Stats) uint64 { return s.RxRTPInvalid }),
			counter("rtcp_rx_packets_total", "RTCP reports accepted", func(s Stats) uint64 { return s.RxRTCPPackets }),
			counter("rtcp_rx_bad_source_total", "RTCP packets from an unexpected address", func(s Stats) uint64 { return s.RxRTCPBadSrc }),
			counter("rtcp_rx_invalid_total", "RTCP packets that failed to parse", func(s Stats) uint64 { return s.RxRTCPInvalid }),
			counter("rtcp_rx_wrong_ssrc_total", "RTCP report blocks about another SSRC", func(s Stats) uint64 { return s.RxRTCPWrongSSRC }),
			counter("tx_packets_total", "RTP packets sent", func(s Stats) uint64 { return s.TxRTPPackets }),
			counter("tx_octets_total", "RTP payload octets sent", func(s Stats) uint64 { return s.TxRTPOctets }),
			counter("rtcp_tx_packets_total", "RTCP reports sent", func(s Stats) uint64 { return s.TxRTCPPackets }),
			counter("tx_errors_total", "socket send failures", func(s Stats) uint64 { return s.TxErrors }),
		},
		// the jitter buffer zeroes its statistics on Reset, so they are
		// gauges rather than counters
		jitter: []jitterDesc{
			jitterMetric("delivered", "frames handed to the consumer since the last stream reset", func(j *jitter.Jitter) float64 { return float64(j.Stats().DeliveredPkt) }),
			jitterMetric("output_gaps", "ticks with no frame while flowing since the last stream reset", func(j *jitter.Jitter) float64 { return float64(j.Stats().OutputGaps) }),
			jitterMetric("thinning_drops", "frames dropped to shrink the buffer since the last stream reset", func(j *jitter.Jitter) float64 { return float64(j.Stats().ThinningDrops) }),
			jitterMetric("underruns", "times the buffer ran dry since the last stream reset", func(j *jitter.Jitter) float64 { return float64(j.Stats().Underruns) }),
			jitterMetric("handovers", "completed stream handovers since the last stream reset", func(j *jitter.Jitter) float64 { return float64(j.Stats().HandoversOut) }),
			jitterMetric("depth", "frames queued in the read sub-buffer", func(j *jitter.Jitter) float64 { return float64(j.Depth()) }),
		},
	}
}

// Add registers ep under channel, replacing any endpoint already there.
func (c *Collector) Add(channel string, ep *Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[channel] = ep
}

func (c *Collector) Remove(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.endpoints, channel)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.endpoint {
		ch <- m.desc
	}
	for _, m := range c.jitter {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for channel, ep := range c.endpoints {
		stats := ep.Stats()
		for _, m := range c.endpoint {
			ch <- prometheus.MustNewConstMetric(m.desc, m.vtype, float64(m.value(stats)), channel)
		}
		j := ep.Jitter()
		if j == nil {
			continue
		}
		for _, m := range c.jitter {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, m.value(j), channel)
		}
	}
}
