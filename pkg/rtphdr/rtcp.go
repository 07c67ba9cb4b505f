package rtphdr

import (
	"fmt"

	"github.com/pion/rtcp"
)

// SenderInfo is the sender information block of an SR.
type SenderInfo struct {
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
}

// Report is the first SR or RR of a compound RTCP packet.
type Report struct {
	SSRC   uint32
	Sender *SenderInfo
	Blocks []rtcp.ReceptionReport
	// SDES chunks that followed the report, if any.
	SDES []rtcp.SourceDescriptionChunk
}

func (r *Report) IsSR() bool {
	return r.Sender != nil
}

// rtcpHeaderLength mirrors pion/rtcp's unexported headerLength.
const rtcpHeaderLength = 4

// ParseRTCPHeader decodes the common header of the first RTCP packet in buf.
func ParseRTCPHeader(buf []byte) (rtcp.Header, error) {
	var h rtcp.Header
	if len(buf) < rtcpHeaderLength+4 {
		return h, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	if buf[0]>>6 != rtpVersion {
		return h, fmt.Errorf("%w: %d", ErrBadVersion, buf[0]>>6)
	}
	if err := h.Unmarshal(buf); err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return h, nil
}

// ParseReport decodes a compound RTCP packet whose first element must be an
// SR or RR. Anything else yields ErrNotReport.
func ParseReport(buf []byte) (*Report, error) {
	h, err := ParseRTCPHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Type != rtcp.TypeSenderReport && h.Type != rtcp.TypeReceiverReport {
		return nil, fmt.Errorf("%w: type %d", ErrNotReport, h.Type)
	}

	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	rep := &Report{}
	switch p := pkts[0].(type) {
	case *rtcp.SenderReport:
		rep.SSRC = p.SSRC
		rep.Sender = &SenderInfo{
			NTPTime:     p.NTPTime,
			RTPTime:     p.RTPTime,
			PacketCount: p.PacketCount,
			OctetCount:  p.OctetCount,
		}
		rep.Blocks = p.Reports
	case *rtcp.ReceiverReport:
		rep.SSRC = p.SSRC
		rep.Blocks = p.Reports
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotReport, p)
	}

	for _, p := range pkts[1:] {
		if sdes, ok := p.(*rtcp.SourceDescription); ok {
			rep.SDES = append(rep.SDES, sdes.Chunks...)
		}
	}
	return rep, nil
}

// BuildSR returns a sender report with an optional reception block.
func BuildSR(ssrc uint32, info SenderInfo, block *rtcp.ReceptionReport) *rtcp.SenderReport {
	sr := &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     info.NTPTime,
		RTPTime:     info.RTPTime,
		PacketCount: info.PacketCount,
		OctetCount:  info.OctetCount,
	}
	if block != nil {
		sr.Reports = []rtcp.ReceptionReport{*block}
	}
	return sr
}

// BuildRR returns a receiver report with an optional reception block.
func BuildRR(ssrc uint32, block *rtcp.ReceptionReport) *rtcp.ReceiverReport {
	rr := &rtcp.ReceiverReport{SSRC: ssrc}
	if block != nil {
		rr.Reports = []rtcp.ReceptionReport{*block}
	}
	return rr
}

// Compound marshals report followed by sdes (which may be nil), the order
// RFC 3550 section 6.1 requires.
func Compound(report rtcp.Packet, sdes *rtcp.SourceDescription) ([]byte, error) {
	pkts := []rtcp.Packet{report}
	if sdes != nil {
		pkts = append(pkts, sdes)
	}
	return rtcp.Marshal(pkts)
}
