package jitter

// Packet is one buffered audio frame. Timestamp is the matching key for
// playout; SequenceNumber and Marker are carried through for the consumer.
type Packet struct {
	Data           []byte
	Timestamp      uint32
	SequenceNumber uint16
	SSRC           uint32
	Marker         bool
}

type Buffer interface {
	Put(p *Packet)
	Get() (*Packet, bool)
	Reset()
}

type BufferFactory interface {
	CreateBuffer() (Buffer, error)
}

// State of the playout state machine.
type State int

const (
	StateEmpty State = iota
	StateHunt
	StateFlowing
	StateHandover
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHunt:
		return "hunt"
	case StateFlowing:
		return "flowing"
	case StateHandover:
		return "handover"
	}
	return "unknown"
}

// DropReason tells why an input packet was not queued.
type DropReason int

const (
	DropTooOld DropReason = iota
	DropFuture
	DropDuplicate
)

func (r DropReason) String() string {
	switch r {
	case DropTooOld:
		return "too_old"
	case DropFuture:
		return "future"
	case DropDuplicate:
		return "duplicate"
	}
	return "unknown"
}
