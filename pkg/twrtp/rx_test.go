package twrtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRxStateSequenceWrap(t *testing.T) {
	var r rxState
	r.update(remoteSSRC, 65534, 0, 0)
	r.update(remoteSSRC, 65535, 160, 160)
	// 0 is lost
	r.update(remoteSSRC, 1, 480, 480)

	assert.Equal(t, uint32(65536+1), r.extendedMax())

	b := r.block(0, 0)
	assert.Equal(t, uint32(remoteSSRC), b.SSRC)
	assert.Equal(t, uint32(1), b.TotalLost)
	assert.Equal(t, uint8(64), b.FractionLost)
	assert.Equal(t, uint32(65537), b.LastSequenceNumber)
	assert.Zero(t, b.Jitter, "constant transit means no jitter")

	// next interval without loss
	r.update(remoteSSRC, 2, 640, 640)
	b = r.block(0, 0)
	assert.Zero(t, b.FractionLost)
	assert.Equal(t, uint32(1), b.TotalLost)
}

func TestRxStateDuplicatesDoNotCountAsLoss(t *testing.T) {
	var r rxState
	r.update(remoteSSRC, 10, 0, 0)
	r.update(remoteSSRC, 11, 160, 160)
	r.update(remoteSSRC, 11, 160, 160)

	b := r.block(0, 0)
	assert.Zero(t, b.TotalLost)
	assert.Zero(t, b.FractionLost)
}

func TestRxStateJitter(t *testing.T) {
	var r rxState
	r.update(remoteSSRC, 1, 0, 1000)
	// arrives 32 units late relative to the first packet
	r.update(remoteSSRC, 2, 160, 1192)

	assert.Equal(t, uint32(32), r.jitter, "first step adds |D| to the scaled estimate")
	assert.Equal(t, uint32(2), r.block(0, 0).Jitter)
}

func TestRxStateNewSource(t *testing.T) {
	var r rxState
	r.update(remoteSSRC, 500, 0, 0)
	r.update(remoteSSRC, 501, 160, 160)
	r.update(0x01020304, 7, 0, 0)

	b := r.block(0, 0)
	assert.Equal(t, uint32(0x01020304), b.SSRC)
	assert.Equal(t, uint32(7), b.LastSequenceNumber)
	assert.Zero(t, b.TotalLost)
}

func TestRxStateSequenceRestart(t *testing.T) {
	var r rxState
	r.update(remoteSSRC, 100, 0, 0)
	r.update(remoteSSRC, 30000, 160, 160)

	b := r.block(0, 0)
	assert.Equal(t, uint32(30000), b.LastSequenceNumber)
	assert.Zero(t, b.TotalLost)
}
