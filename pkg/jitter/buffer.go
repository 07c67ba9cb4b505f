package jitter

import (
	"github.com/huandu/skiplist"
	"github.com/samber/lo"
)

// subBuffer is one half of the ping-pong pair. Frames are keyed by their
// timestamp extended to 64 bits relative to headTS, so the skiplist order
// survives 32-bit timestamp wraparound.
type subBuffer struct {
	list *skiplist.SkipList

	ssrc    uint32
	headTS  uint32
	headExt int64
	// key of the frame that started the run; rewinds are bounded by it
	firstExt int64

	minExt  int64
	maxExt  int64
	deltaMs uint32

	dropIntCount uint16

	conf Config
}

func newSubBuffer() subBuffer {
	return subBuffer{list: skiplist.New(skiplist.Int64)}
}

func (sb *subBuffer) init(p *Packet, conf Config) {
	sb.list.Init()
	sb.ssrc = p.SSRC
	sb.headTS = p.Timestamp
	sb.headExt = int64(p.Timestamp)
	sb.firstExt = sb.headExt
	sb.minExt = sb.headExt
	sb.maxExt = sb.headExt
	sb.deltaMs = 0
	sb.dropIntCount = 0
	sb.conf = conf
}

func (sb *subBuffer) free() {
	sb.list.Init()
}

func (sb *subBuffer) depth() int {
	return sb.list.Len()
}

func (sb *subBuffer) ext(ts uint32) int64 {
	return sb.headExt + int64(int32(ts-sb.headTS))
}

func (sb *subBuffer) contains(ts uint32) bool {
	return sb.list.Get(sb.ext(ts)) != nil
}

func (sb *subBuffer) insert(p *Packet) int64 {
	key := sb.ext(p.Timestamp)
	sb.list.Set(key, p)
	return key
}

// rewind moves the head back to ts; only valid while the sub-buffer has not
// started playing out.
func (sb *subBuffer) rewind(ts uint32) {
	sb.headExt = sb.ext(ts)
	sb.headTS = ts
}

func (sb *subBuffer) trackSpan(key int64, unitsPerMs uint32) {
	sb.minExt = lo.Min([]int64{sb.minExt, key})
	sb.maxExt = lo.Max([]int64{sb.maxExt, key})
	sb.deltaMs = uint32((sb.maxExt - sb.minExt) / int64(unitsPerMs))
}

func (sb *subBuffer) ready() bool {
	if sb.depth() < int(sb.conf.BdStart) {
		return false
	}
	return sb.deltaMs >= uint32(sb.conf.StartMinDelta)
}

// pull returns the frame for the current head slot, if present, and moves the
// head forward by one quantum either way.
func (sb *subBuffer) pull(quantum uint32) (*Packet, bool) {
	defer func() {
		sb.headTS += quantum
		sb.headExt += int64(quantum)
	}()

	removeLessThan(sb.list, sb.headExt)

	front := sb.list.Front()
	if front != nil && front.Key() != nil && front.Key().(int64) == sb.headExt {
		sb.list.RemoveFront()
		return front.Value.(*Packet), true
	}
	return nil, false
}

func removeLessThan(list *skiplist.SkipList, key int64) {
	for {
		front := list.Front()
		if front == nil || front.Key() == nil || front.Key().(int64) >= key {
			break
		}
		list.RemoveFront()
	}
}
