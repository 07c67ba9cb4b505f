package udppair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRangeValidation(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		ok         bool
	}{
		{"Valid", 16384, 16483, true},
		{"Odd start", 16385, 16483, false},
		{"Inverted", 16484, 16384, false},
		{"Zero start", 0, 100, false},
		{"Beyond 65535", 65000, 70000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRange(tt.start, tt.end)
			if tt.ok {
				assert.NoError(t, err)
				assert.NotNil(t, r)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRangeRotation(t *testing.T) {
	r, err := NewRange(16000, 16005)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Size())

	var got []int
	for i := 0; i < 4; i++ {
		got = append(got, r.take())
	}
	assert.Equal(t, []int{16000, 16002, 16004, 16000}, got)
}

func TestBindRangeSkipsBusyPair(t *testing.T) {
	busy, err := Bind(loopback, 0)
	require.NoError(t, err)
	defer busy.Close()

	start := busy.LocalAddr().Port
	r, err := NewRange(start, start+3)
	require.NoError(t, err)

	p, err := BindRange(loopback, r)
	if err != nil {
		// the neighbouring pair happened to be taken by someone else
		assert.ErrorIs(t, err, ErrExhausted)
		return
	}
	defer p.Close()
	assert.Equal(t, start+2, p.LocalAddr().Port)
}

func TestBindRangeExhausted(t *testing.T) {
	busy, err := Bind(loopback, 0)
	require.NoError(t, err)
	defer busy.Close()

	start := busy.LocalAddr().Port
	r, err := NewRange(start, start+1)
	require.NoError(t, err)

	_, err = BindRange(loopback, r)
	assert.ErrorIs(t, err, ErrExhausted)
}
