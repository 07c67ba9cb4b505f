package twrtp

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Clock supplies arrival and report times; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SSRCProvider picks the transmit SSRC.
type SSRCProvider interface {
	GenerateSSRC() (uint32, error)
}

type randomSSRC struct{}

func (randomSSRC) GenerateSSRC() (uint32, error) {
	return randomUint32()
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
