package twrtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/rtcp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/channel-io/go-twjit/pkg/jitter"
	"github.com/channel-io/go-twjit/pkg/rtphdr"
)

const (
	maxDatagram = 1500

	maxDropout    = 3000
	maxMisorder   = 100
	seqMod        = 1 << 16
	maxTotalLost  = 0x7fffff
	jitterShift   = 4
	jitterRounder = 1 << (jitterShift - 1)
)

// rxState is the RFC 3550 appendix A.1/A.8 receive accounting for the
// current remote source.
type rxState struct {
	started bool
	ssrc    uint32

	baseSeq uint16
	maxSeq  uint16
	cycles  uint32

	received      uint32
	expectedPrior uint32
	receivedPrior uint32

	haveTransit bool
	transit     int32
	// interarrival jitter scaled by 16
	jitter uint32
}

func (r *rxState) reset(ssrc uint32, seq uint16) {
	*r = rxState{
		started: true,
		ssrc:    ssrc,
		baseSeq: seq,
		maxSeq:  seq,
	}
}

func (r *rxState) update(ssrc uint32, seq uint16, ts, arrival uint32) {
	if !r.started || ssrc != r.ssrc {
		r.reset(ssrc, seq)
	} else {
		udelta := seq - r.maxSeq
		switch {
		case udelta < maxDropout:
			if seq < r.maxSeq {
				r.cycles += seqMod
			}
			r.maxSeq = seq
		case udelta <= seqMod-maxMisorder:
			// sender restarted its sequence space
			r.reset(ssrc, seq)
		}
	}
	r.received++

	transit := int32(arrival - ts)
	if r.haveTransit {
		d := transit - r.transit
		if d < 0 {
			d = -d
		}
		r.jitter += uint32(d) - ((r.jitter + jitterRounder) >> jitterShift)
	}
	r.transit = transit
	r.haveTransit = true
}

func (r *rxState) extendedMax() uint32 {
	return r.cycles + uint32(r.maxSeq)
}

// block builds a reception report and advances the interval counters.
func (r *rxState) block(lsr, dlsr uint32) rtcp.ReceptionReport {
	extMax := r.extendedMax()
	expected := extMax - uint32(r.baseSeq) + 1
	lost := lo.Min([]int64{lo.Max([]int64{int64(expected) - int64(r.received), 0}), maxTotalLost})

	expectedInterval := expected - r.expectedPrior
	receivedInterval := r.received - r.receivedPrior
	r.expectedPrior = expected
	r.receivedPrior = r.received

	var fraction uint8
	lostInterval := int64(expectedInterval) - int64(receivedInterval)
	if expectedInterval != 0 && lostInterval > 0 {
		fraction = uint8((lostInterval << 8) / int64(expectedInterval))
	}

	return rtcp.ReceptionReport{
		SSRC:               r.ssrc,
		FractionLost:       fraction,
		TotalLost:          uint32(lost),
		LastSequenceNumber: extMax,
		Jitter:             r.jitter >> jitterShift,
		LastSenderReport:   lsr,
		Delay:              dlsr,
	}
}

// rtcpRxState keeps what the peer last told us over RTCP.
type rtcpRxState struct {
	gotSR     bool
	lastSR    rtphdr.SenderInfo
	srArrival time.Time

	gotReport    bool
	remoteReport rtcp.ReceptionReport
}

var errBadSource = errors.New("datagram from unexpected source")

// warnDrop logs a dropped datagram, at most a few times per second.
func (e *Endpoint) warnDrop(function string, from *net.UDPAddr, err error) {
	if !e.dropLog.Allow() {
		return
	}
	e.log.WithFields(logrus.Fields{
		"function": function,
		"from":     from.String(),
		"error":    err.Error(),
	}).Warn("Dropped datagram")
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a != nil && b != nil && a.Port == b.Port && a.IP.Equal(b.IP)
}

// arrivalTS converts a wall-clock instant into RTP timestamp units.
func (e *Endpoint) arrivalTS(t time.Time) uint32 {
	us := t.UnixNano() / int64(time.Microsecond)
	return uint32(us * int64(e.conf.ClockKHz) / 1000)
}

func (e *Endpoint) readLoop(ctx context.Context, name string, conn *net.UDPConn, handle func([]byte, *net.UDPAddr, time.Time)) error {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			e.log.WithFields(logrus.Fields{
				"function": "Endpoint.readLoop",
				"socket":   name,
				"error":    err.Error(),
			}).Warn("Receive loop failed")
			return fmt.Errorf("%s receive: %w", name, err)
		}
		handle(buf[:n], from, e.clock.Now())
	}
}

// HandleRTP processes one datagram received on the RTP socket. Packets from
// a source other than the configured remote, and packets that do not parse,
// are counted and dropped.
func (e *Endpoint) HandleRTP(buf []byte, from *net.UDPAddr, arrival time.Time) {
	e.Lock()

	if e.remoteSet && !sameAddr(from, e.remoteRTP) {
		e.stats.RxRTPBadSrc++
		e.Unlock()
		e.warnDrop("Endpoint.HandleRTP", from, errBadSource)
		return
	}

	pkt, err := rtphdr.ParseRTP(buf)
	if err != nil {
		e.stats.RxRTPInvalid++
		e.Unlock()
		e.warnDrop("Endpoint.HandleRTP", from, err)
		return
	}

	e.stats.RxRTPPackets++
	e.stats.RxRTPOctets += uint64(len(pkt.Payload))
	e.rx.update(pkt.SSRC, pkt.SequenceNumber, pkt.Timestamp, e.arrivalTS(arrival))

	rxFunc := e.rxFunc
	e.Unlock()

	payload := append([]byte(nil), pkt.Payload...)
	if rxFunc != nil {
		rxFunc(payload, pkt.SequenceNumber, pkt.Timestamp, pkt.Marker)
	}
	if e.jitter != nil {
		e.jitter.Put(&jitter.Packet{
			Data:           payload,
			Timestamp:      pkt.Timestamp,
			SequenceNumber: pkt.SequenceNumber,
			SSRC:           pkt.SSRC,
			Marker:         pkt.Marker,
		})
	}
}

// HandleRTCP processes one datagram received on the RTCP socket. Only SR and
// RR are interpreted.
func (e *Endpoint) HandleRTCP(buf []byte, from *net.UDPAddr, arrival time.Time) {
	e.Lock()
	defer e.Unlock()

	if e.remoteSet && !sameAddr(from, e.remoteRTCP) {
		e.stats.RxRTCPBadSrc++
		e.warnDrop("Endpoint.HandleRTCP", from, errBadSource)
		return
	}

	rep, err := rtphdr.ParseReport(buf)
	if err != nil {
		e.stats.RxRTCPInvalid++
		e.warnDrop("Endpoint.HandleRTCP", from, err)
		return
	}
	e.stats.RxRTCPPackets++

	if rep.IsSR() {
		e.rtcpRx.gotSR = true
		e.rtcpRx.lastSR = *rep.Sender
		e.rtcpRx.srArrival = arrival
	}

	for _, b := range rep.Blocks {
		if b.SSRC != e.tx.ssrc {
			e.stats.RxRTCPWrongSSRC++
			continue
		}
		e.rtcpRx.gotReport = true
		e.rtcpRx.remoteReport = b
		e.log.WithFields(logrus.Fields{
			"function":      "Endpoint.HandleRTCP",
			"fraction_lost": b.FractionLost,
			"total_lost":    b.TotalLost,
			"jitter":        b.Jitter,
		}).Debug("Peer reception report")
	}
}

// RemoteReport returns the last reception report the peer sent about our
// stream.
func (e *Endpoint) RemoteReport() (rtcp.ReceptionReport, bool) {
	e.Lock()
	defer e.Unlock()
	return e.rtcpRx.remoteReport, e.rtcpRx.gotReport
}

// LastSR returns the sender info of the last SR received and when it
// arrived.
func (e *Endpoint) LastSR() (rtphdr.SenderInfo, time.Time, bool) {
	e.Lock()
	defer e.Unlock()
	return e.rtcpRx.lastSR, e.rtcpRx.srArrival, e.rtcpRx.gotSR
}
