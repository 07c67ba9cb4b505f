// Package rtphdr encodes and decodes the subset of RTP and RTCP used by the
// twrtp endpoint: the fixed 12-byte RTP header without CSRC list or
// extension, RTCP SR and RR with at most one reception report block, and
// SDES with the RFC 3550 item types.
package rtphdr

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

const (
	// HeaderSize is the size of the fixed RTP header.
	HeaderSize = 12

	rtpVersion = 2
)

var (
	ErrTruncated       = errors.New("packet truncated")
	ErrBadVersion      = errors.New("bad RTP/RTCP version")
	ErrUnsupported     = errors.New("CSRC list or header extension not supported")
	ErrNotReport       = errors.New("RTCP packet is not SR or RR")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Header is the part of the RTP header the sender controls.
type Header struct {
	PayloadType    uint8
	Marker         bool
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// ParseRTP decodes buf as an RTP packet. Packets carrying a CSRC list or a
// header extension are refused with ErrUnsupported. Padding is stripped from
// the returned payload.
func ParseRTP(buf []byte) (*rtp.Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	if buf[0]>>6 != rtpVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, buf[0]>>6)
	}
	if buf[0]&0x0f != 0 || buf[0]&0x10 != 0 {
		return nil, ErrUnsupported
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return pkt, nil
}

// BuildRTP encodes a version 2 RTP packet with no padding, CSRC or
// extension.
func BuildRTP(h Header, payload []byte) ([]byte, error) {
	if h.PayloadType > 0x7f {
		return nil, fmt.Errorf("%w: payload type %d", ErrInvalidArgument, h.PayloadType)
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			Marker:         h.Marker,
			PayloadType:    h.PayloadType,
			SequenceNumber: h.SequenceNumber,
			Timestamp:      h.Timestamp,
			SSRC:           h.SSRC,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// HeaderOf extracts the sender-controlled fields of a parsed packet.
func HeaderOf(pkt *rtp.Packet) Header {
	return Header{
		PayloadType:    pkt.PayloadType,
		Marker:         pkt.Marker,
		SequenceNumber: pkt.SequenceNumber,
		Timestamp:      pkt.Timestamp,
		SSRC:           pkt.SSRC,
	}
}
