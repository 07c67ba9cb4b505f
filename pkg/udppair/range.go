package udppair

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// Range hands out even RTP ports from [Start, End] round-robin, the way a
// BTS allocates one port pair per activated channel.
type Range struct {
	mu    sync.Mutex
	start int
	end   int
	next  int
}

func NewRange(start, end int) (*Range, error) {
	if start <= 0 || end > 65535 || start%2 != 0 || end <= start {
		return nil, fmt.Errorf("invalid RTP port range %d-%d", start, end)
	}
	return &Range{start: start, end: end, next: start}, nil
}

func (r *Range) take() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	port := r.next
	r.next += 2
	if r.next+1 > r.end {
		r.next = r.start
	}
	return port
}

// Size is the number of port pairs in the range.
func (r *Range) Size() int {
	return (r.end - r.start + 1) / 2
}

// BindRange tries each pair of the range at most once, starting after the
// last pair handed out.
func BindRange(ip net.IP, r *Range) (*Pair, error) {
	var lastErr error
	for i := 0; i < r.Size(); i++ {
		p, err := bindAt(ip, r.take())
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, errors.Join(ErrExhausted, lastErr)
}
