package rtphdr

import (
	"math"
	"time"
)

// seconds between 1900-01-01 and 1970-01-01
const ntpEpochOffset = 2208988800

// ToNTP converts t to a 64-bit NTP timestamp (32.32 fixed point).
func ToNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}

// NTPMiddle32 returns the middle 32 bits of an NTP timestamp, the form used
// in the LSR field of a reception report.
func NTPMiddle32(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

// DLSR expresses d in units of 1/65536 seconds, saturating at the field's
// maximum.
func DLSR(d time.Duration) uint32 {
	if d < 0 {
		return 0
	}
	if d >= 65536*time.Second {
		return math.MaxUint32
	}
	return uint32(d * 65536 / time.Second)
}
