package twrtp

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/channel-io/go-twjit/pkg/rtphdr"
)

type txState struct {
	ssrc uint32
	seq  uint16
	ts   uint32

	started bool
	restart bool
	// a packet has actually left the socket; lastTS and lastTime are valid
	sent bool

	packets uint32
	octets  uint32

	lastTS   uint32
	lastTime time.Time
}

// TxQuantum sends one RTP packet carrying payload that covers durQuanta
// quanta. With autoMarker the marker bit is also set on the first packet of
// the stream and on the first packet after a TxSkip or Reset. sendRTCP sends
// a report right after the packet.
func (e *Endpoint) TxQuantum(payload []byte, durQuanta uint32, marker, autoMarker, sendRTCP bool) error {
	if durQuanta == 0 {
		return fmt.Errorf("%w: zero duration", ErrInvalidArgument)
	}

	e.Lock()
	defer e.Unlock()

	if e.pair == nil {
		return ErrNotBound
	}
	if !e.remoteSet {
		return ErrRemoteNotSet
	}

	if autoMarker && (!e.tx.started || e.tx.restart) {
		marker = true
	}

	buf, err := rtphdr.BuildRTP(rtphdr.Header{
		PayloadType:    e.conf.PayloadType,
		Marker:         marker,
		SequenceNumber: e.tx.seq,
		Timestamp:      e.tx.ts,
		SSRC:           e.tx.ssrc,
	}, payload)
	if err != nil {
		return fmt.Errorf("failed to build RTP packet: %w", err)
	}

	sentTS := e.tx.ts
	e.tx.seq++
	e.tx.ts += durQuanta * e.tsQuantum
	e.tx.started = true
	e.tx.restart = false

	if _, err := e.pair.RTP.WriteToUDP(buf, e.remoteRTP); err != nil {
		e.stats.TxErrors++
		return fmt.Errorf("failed to send RTP packet: %w", err)
	}

	e.tx.packets++
	e.tx.octets += uint32(len(payload))
	e.tx.sent = true
	e.tx.lastTS = sentTS
	e.tx.lastTime = e.clock.Now()
	e.stats.TxRTPPackets++
	e.stats.TxRTPOctets += uint64(len(payload))

	return e.rtcpTick(sendRTCP)
}

// TxSkip accounts for one quantum with nothing to send. The timestamp moves
// on so the next packet stays on the stream's clock, and that packet gets the
// marker under auto-marker. Before the first TxQuantum it does nothing.
func (e *Endpoint) TxSkip() {
	e.Lock()
	defer e.Unlock()

	if !e.tx.started {
		return
	}
	e.tx.ts += e.tsQuantum
	e.tx.restart = true

	if err := e.rtcpTick(false); err != nil {
		e.log.WithFields(logrus.Fields{
			"function": "Endpoint.TxSkip",
			"error":    err.Error(),
		}).Warn("Automatic RTCP report failed")
	}
}

// NextSeqTS returns the sequence number and timestamp the next packet will
// carry.
func (e *Endpoint) NextSeqTS() (uint16, uint32) {
	e.Lock()
	defer e.Unlock()
	return e.tx.seq, e.tx.ts
}
