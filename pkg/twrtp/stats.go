package twrtp

// Stats are cumulative over the life of the endpoint; Reset does not clear
// them.
type Stats struct {
	RxRTPPackets uint64
	RxRTPOctets  uint64
	RxRTPBadSrc  uint64
	RxRTPInvalid uint64

	RxRTCPPackets   uint64
	RxRTCPBadSrc    uint64
	RxRTCPInvalid   uint64
	RxRTCPWrongSSRC uint64

	TxRTPPackets  uint64
	TxRTPOctets   uint64
	TxRTCPPackets uint64
	TxErrors      uint64
}
