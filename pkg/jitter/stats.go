package jitter

// Stats are monotonic counters, cleared only by Reset.
type Stats struct {
	RxPackets uint64

	DeliveredPkt uint64
	OutputGaps   uint64

	ThinningDrops uint64
	HandoversIn   uint64
	HandoversOut  uint64
	HoUnderruns   uint64
	Underruns     uint64

	TooOld        uint64
	FutureRejects uint64
	Duplicates    uint64

	SSRCChanges       uint64
	TSDiscontinuities uint64

	StartMaxDeltaExceeded uint64
}
