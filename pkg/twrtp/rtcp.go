package twrtp

import (
	"fmt"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"

	"github.com/channel-io/go-twjit/pkg/rtphdr"
)

// SetSDES rebuilds the SDES block appended to every report. Passing items
// without CNAME is an error and keeps the previous block.
func (e *Endpoint) SetSDES(items rtphdr.SDESItems) error {
	e.Lock()
	defer e.Unlock()

	sdes, err := rtphdr.BuildSDES(e.tx.ssrc, items)
	if err != nil {
		return err
	}
	e.sdes = sdes
	return nil
}

// SendRTCP sends a compound report now: an SR once an RTP packet has been
// sent successfully and rrOnly is false, otherwise an RR.
func (e *Endpoint) SendRTCP(rrOnly bool) error {
	e.Lock()
	defer e.Unlock()
	return e.sendRTCP(rrOnly)
}

// rtcpTick runs once per transmit tick and sends a report when forced or when
// the automatic interval has elapsed.
func (e *Endpoint) rtcpTick(force bool) error {
	if e.conf.AutoRTCPInterval != 0 {
		e.autoRTCPCount++
		if e.autoRTCPCount >= e.conf.AutoRTCPInterval {
			e.autoRTCPCount = 0
			force = true
		}
	}
	if !force {
		return nil
	}
	return e.sendRTCP(false)
}

func (e *Endpoint) sendRTCP(rrOnly bool) error {
	if e.pair == nil {
		return ErrNotBound
	}
	if !e.remoteSet {
		return ErrRemoteNotSet
	}

	buf, err := rtphdr.Compound(e.buildReport(rrOnly), e.sdes)
	if err != nil {
		return fmt.Errorf("failed to build RTCP packet: %w", err)
	}
	if _, err := e.pair.RTCP.WriteToUDP(buf, e.remoteRTCP); err != nil {
		e.stats.TxErrors++
		return fmt.Errorf("failed to send RTCP packet: %w", err)
	}
	e.stats.TxRTCPPackets++

	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.sendRTCP",
		"size":     len(buf),
	}).Debug("Sent RTCP report")
	return nil
}

func (e *Endpoint) buildReport(rrOnly bool) rtcp.Packet {
	now := e.clock.Now()

	var block *rtcp.ReceptionReport
	if e.rx.started {
		var lsr, dlsr uint32
		if e.rtcpRx.gotSR {
			lsr = rtphdr.NTPMiddle32(e.rtcpRx.lastSR.NTPTime)
			dlsr = rtphdr.DLSR(now.Sub(e.rtcpRx.srArrival))
		}
		b := e.rx.block(lsr, dlsr)
		block = &b
	}

	if rrOnly || !e.tx.sent {
		return rtphdr.BuildRR(e.tx.ssrc, block)
	}

	// RTP time of "now", extrapolated from the last packet sent
	elapsedMs := now.Sub(e.tx.lastTime).Milliseconds()
	rtpTime := e.tx.lastTS + uint32(elapsedMs)*uint32(e.conf.ClockKHz)

	return rtphdr.BuildSR(e.tx.ssrc, rtphdr.SenderInfo{
		NTPTime:     rtphdr.ToNTP(now),
		RTPTime:     rtpTime,
		PacketCount: e.tx.packets,
		OctetCount:  e.tx.octets,
	}, block)
}
