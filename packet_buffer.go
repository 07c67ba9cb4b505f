// Package twjit adapts already-parsed RTP packets to the twjit playout
// buffer, for callers that run their own transport.
package twjit

import (
	"github.com/pion/rtp"

	"github.com/channel-io/go-twjit/pkg/jitter"
)

type PacketBuffer struct {
	factory jitter.BufferFactory
	buffer  jitter.Buffer
}

func NewPacketBuffer(factory jitter.BufferFactory) (*PacketBuffer, error) {
	p := &PacketBuffer{factory: factory}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PacketBuffer) init() error {
	buffer, err := p.factory.CreateBuffer()
	if err != nil {
		return err
	}
	p.buffer = buffer
	return nil
}

// Put queues a copy of packet's payload, so the caller may reuse its read
// buffer. Packets without payload carry no audio and are ignored.
func (p *PacketBuffer) Put(packet *rtp.Packet) {
	if packet == nil || len(packet.Payload) == 0 {
		return
	}

	p.buffer.Put(&jitter.Packet{
		Data:           append([]byte(nil), packet.Payload...),
		Timestamp:      packet.Timestamp,
		SequenceNumber: packet.SequenceNumber,
		SSRC:           packet.SSRC,
		Marker:         packet.Marker,
	})
}

// Get returns the payload for the current tick; false means the tick has no
// audio and the caller should conceal.
func (p *PacketBuffer) Get() ([]byte, bool) {
	packet, ok := p.buffer.Get()
	if !ok {
		return nil, false
	}
	return packet.Data, true
}

// Reset discards everything queued, as on call setup.
func (p *PacketBuffer) Reset() {
	p.buffer.Reset()
}

// Buffer exposes the underlying jitter buffer.
func (p *PacketBuffer) Buffer() jitter.Buffer {
	return p.buffer
}
