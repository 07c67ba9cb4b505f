package twrtp

import (
	"fmt"

	"github.com/channel-io/go-twjit/pkg/jitter"
	"github.com/channel-io/go-twjit/pkg/rtphdr"
)

// Config describes one endpoint. Jitter may be nil, in which case received
// RTP is only handed to the raw receive callback.
type Config struct {
	ClockKHz    uint16 `yaml:"clock_khz"`
	QuantumMs   uint16 `yaml:"quantum_ms"`
	PayloadType uint8  `yaml:"payload_type"`
	// AutoRTCPInterval sends RTCP every N transmit ticks; 0 disables.
	AutoRTCPInterval uint16 `yaml:"auto_rtcp_interval"`

	Jitter *jitter.Config     `yaml:"jitter"`
	SDES   *rtphdr.SDESItems `yaml:"sdes"`
}

// DefaultConfig is GSM full rate over an 8 kHz clock with 20 ms frames and
// an RTCP report every 5 s.
func DefaultConfig() Config {
	jc := jitter.DefaultConfig()
	return Config{
		ClockKHz:         8,
		QuantumMs:        20,
		PayloadType:      3,
		AutoRTCPInterval: 250,
		Jitter:           &jc,
	}
}

func (c Config) Validate() error {
	if c.ClockKHz == 0 || c.QuantumMs == 0 || 1000%c.QuantumMs != 0 {
		return fmt.Errorf("%w: clock %d kHz, quantum %d ms", ErrInvalidArgument, c.ClockKHz, c.QuantumMs)
	}
	if c.PayloadType > 0x7f {
		return fmt.Errorf("%w: payload type %d", ErrInvalidArgument, c.PayloadType)
	}
	if c.Jitter != nil {
		if err := c.Jitter.Validate(); err != nil {
			return err
		}
	}
	if c.SDES != nil && c.SDES.CNAME == "" {
		return fmt.Errorf("%w: SDES requires CNAME", ErrInvalidArgument)
	}
	return nil
}
