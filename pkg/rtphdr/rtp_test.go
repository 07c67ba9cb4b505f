package rtphdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRTPRoundTrip(t *testing.T) {
	h := Header{
		PayloadType:    98,
		Marker:         true,
		SequenceNumber: 1000,
		Timestamp:      0xAABBCCDD,
		SSRC:           0x11223344,
	}
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	buf, err := BuildRTP(h, payload)
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize+len(payload))

	pkt, err := ParseRTP(buf)
	require.NoError(t, err)
	assert.Equal(t, h, HeaderOf(pkt))
	assert.Equal(t, payload, pkt.Payload)
}

func TestParseRTPRejects(t *testing.T) {
	valid, err := BuildRTP(Header{PayloadType: 3, SequenceNumber: 1, Timestamp: 160, SSRC: 7}, []byte{1, 2})
	require.NoError(t, err)

	withCSRC := append([]byte{}, valid...)
	withCSRC[0] |= 0x01

	withExt := append([]byte{}, valid...)
	withExt[0] |= 0x10

	badVersion := append([]byte{}, valid...)
	badVersion[0] = 0x40

	tests := []struct {
		name string
		buf  []byte
		err  error
	}{
		{"Truncated header", valid[:5], ErrTruncated},
		{"Empty", nil, ErrTruncated},
		{"Version 1", badVersion, ErrBadVersion},
		{"CSRC count set", withCSRC, ErrUnsupported},
		{"Extension bit set", withExt, ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := ParseRTP(tt.buf)
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, pkt)
		})
	}
}

func TestParseRTPStripsPadding(t *testing.T) {
	buf, err := BuildRTP(Header{PayloadType: 0, SequenceNumber: 9, Timestamp: 320, SSRC: 1}, []byte("ab"))
	require.NoError(t, err)

	buf[0] |= 0x20
	buf = append(buf, 0x00, 0x02)

	pkt, err := ParseRTP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), pkt.Payload)
}

func TestBuildRTPInvalidPayloadType(t *testing.T) {
	_, err := BuildRTP(Header{PayloadType: 200}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
