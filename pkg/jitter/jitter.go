package jitter

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrInvalidTiming = errors.New("invalid clock rate or quantum duration")

// timestamp deltas are compared as signed 32-bit values
const maxFutureLimit = math.MaxInt32

type Factory struct {
	conf      Config
	clockKHz  uint16
	quantumMs uint16
	opts      []Option
}

func NewFactory(conf Config, clockKHz, quantumMs uint16, opts ...Option) *Factory {
	return &Factory{
		conf:      conf,
		clockKHz:  clockKHz,
		quantumMs: quantumMs,
		opts:      opts,
	}
}

func (f *Factory) CreateBuffer() (Buffer, error) {
	j, err := New(f.conf, f.clockKHz, f.quantumMs, f.opts...)
	if err != nil {
		return nil, err
	}
	return j, nil
}

type Option func(j *Jitter)

func WithListener(l Listener) Option {
	return func(j *Jitter) {
		j.listener = l
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(j *Jitter) {
		j.log = log
	}
}

// Jitter is the twjit playout buffer: frames go in with Put at whatever time
// they arrive, and Get hands out exactly one slot per fixed-duration tick.
//
// Two sub-buffers alternate roles. While flowing, one sub-buffer is both
// written and read. When the incoming stream changes (new SSRC or a timestamp
// that is off the quantum grid) the other sub-buffer starts collecting the new
// stream while the old one keeps draining; output switches over once the new
// sub-buffer is ready.
type Jitter struct {
	sync.Mutex

	conf Config

	clockKHz     uint32
	tsQuantum    uint32
	quantaPerSec uint32
	maxFutureTS  int64

	state          State
	sb             [2]subBuffer
	readSB         int
	writeSB        int
	gotFirstPacket bool

	// last slot handed out, kept across underruns so a late copy of a frame
	// already played cannot restart the run behind it
	played     bool
	playedTS   uint32
	playedSSRC uint32

	stats Stats

	listener Listener
	log      *logrus.Entry
}

func New(conf Config, clockKHz, quantumMs uint16, opts ...Option) (*Jitter, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if clockKHz == 0 || quantumMs == 0 || 1000%quantumMs != 0 {
		return nil, fmt.Errorf("%w: clock %d kHz, quantum %d ms", ErrInvalidTiming, clockKHz, quantumMs)
	}

	j := &Jitter{
		conf:         conf,
		clockKHz:     uint32(clockKHz),
		tsQuantum:    uint32(clockKHz) * uint32(quantumMs),
		quantaPerSec: 1000 / uint32(quantumMs),
		sb:           [2]subBuffer{newSubBuffer(), newSubBuffer()},
	}
	maxFuture, err := j.futureLimit(conf)
	if err != nil {
		return nil, err
	}
	j.maxFutureTS = maxFuture

	for _, o := range opts {
		o(j)
	}
	if j.log == nil {
		j.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if j.listener == nil {
		j.listener = LogListener{Log: j.log}
	}

	j.log.WithFields(logrus.Fields{
		"function":   "jitter.New",
		"ts_quantum": j.tsQuantum,
		"bd_start":   conf.BdStart,
		"bd_hiwat":   conf.BdHiwat,
	}).Debug("Created jitter buffer")

	return j, nil
}

func (j *Jitter) futureLimit(conf Config) (int64, error) {
	limit := int64(conf.MaxFutureSec) * int64(j.quantaPerSec) * int64(j.tsQuantum)
	if limit > maxFutureLimit {
		return 0, fmt.Errorf("%w: max_future_sec %d exceeds the 32-bit timestamp range at %d kHz",
			ErrInvalidConfig, conf.MaxFutureSec, j.clockKHz)
	}
	return limit, nil
}

// SetConfig replaces the configuration. Sub-buffers that are already running
// keep their depth settings; the future guard applies immediately.
func (j *Jitter) SetConfig(conf Config) error {
	if err := conf.Validate(); err != nil {
		return err
	}
	maxFuture, err := j.futureLimit(conf)
	if err != nil {
		return err
	}

	j.Lock()
	defer j.Unlock()

	j.conf = conf
	j.maxFutureTS = maxFuture
	return nil
}

func (j *Jitter) Put(p *Packet) {
	j.Lock()
	defer j.Unlock()

	j.stats.RxPackets++

	if j.state == StateEmpty {
		if j.replayed(p, int64(j.conf.BdHiwat)*int64(j.tsQuantum)) {
			j.stats.TooOld++
			j.listener.OnPacketDropped(p, DropTooOld)
			return
		}
		j.startWriteSB(p)
		j.gotFirstPacket = true
		j.setState(StateHunt)
		return
	}

	sb := &j.sb[j.writeSB]
	if j.streamChanged(sb, p) {
		if j.state == StateFlowing {
			j.writeSB = j.readSB ^ 1
			j.startWriteSB(p)
			j.stats.HandoversIn++
			j.setState(StateHandover)
		} else {
			j.startWriteSB(p)
		}
		return
	}

	delta := int64(int32(p.Timestamp - sb.headTS))
	if delta > j.maxFutureTS {
		j.stats.FutureRejects++
		j.listener.OnPacketDropped(p, DropFuture)
		return
	}
	if delta < 0 {
		if !j.starting() || !j.canRewind(sb, p) {
			j.stats.TooOld++
			j.listener.OnPacketDropped(p, DropTooOld)
			return
		}
		sb.rewind(p.Timestamp)
	}
	if sb.contains(p.Timestamp) {
		j.stats.Duplicates++
		j.listener.OnPacketDropped(p, DropDuplicate)
		return
	}

	key := sb.insert(p)
	if j.starting() {
		j.trackStart(sb, key)
	}
}

func (j *Jitter) startWriteSB(p *Packet) {
	sb := &j.sb[j.writeSB]
	sb.init(p, j.conf)
	sb.insert(p)
}

// starting reports whether the write sub-buffer is still accumulating its
// start run rather than playing out.
func (j *Jitter) starting() bool {
	return j.state == StateHunt || j.state == StateHandover
}

// canRewind allows an early frame of the start run to move the head back,
// by fewer than BdHiwat quanta from the run's first frame and never onto a
// slot already played out.
func (j *Jitter) canRewind(sb *subBuffer, p *Packet) bool {
	back := sb.firstExt - sb.ext(p.Timestamp)
	if back >= int64(sb.conf.BdHiwat)*int64(j.tsQuantum) {
		return false
	}
	return !j.replayed(p, j.maxFutureTS+1)
}

// replayed reports whether p belongs to the stream last played out and is for
// a slot at most window units at or behind the last one handed out.
func (j *Jitter) replayed(p *Packet, window int64) bool {
	if !j.played || p.SSRC != j.playedSSRC {
		return false
	}
	back := int64(int32(j.playedTS - p.Timestamp))
	return back >= 0 && back < window
}

func (j *Jitter) streamChanged(sb *subBuffer, p *Packet) bool {
	if p.SSRC != sb.ssrc {
		j.stats.SSRCChanges++
		return true
	}
	delta := int64(int32(p.Timestamp - sb.headTS))
	if delta%int64(j.tsQuantum) != 0 {
		j.stats.TSDiscontinuities++
		return true
	}
	return false
}

func (j *Jitter) trackStart(sb *subBuffer, key int64) {
	before := sb.deltaMs
	sb.trackSpan(key, j.clockKHz)

	maxDelta := uint32(sb.conf.StartMaxDelta)
	if maxDelta == 0 || sb.deltaMs <= maxDelta || before > maxDelta {
		return
	}
	j.stats.StartMaxDeltaExceeded++
	j.log.WithFields(logrus.Fields{
		"function":        "Jitter.Put",
		"delta_ms":        sb.deltaMs,
		"start_max_delta": maxDelta,
		"depth":           sb.depth(),
	}).Warn("Starting sub-buffer spans more than start_max_delta")
}

func (j *Jitter) Get() (*Packet, bool) {
	j.Lock()
	defer j.Unlock()

	switch j.state {
	case StateHunt:
		if !j.sb[j.writeSB].ready() {
			return nil, false
		}
		j.readSB = j.writeSB
		j.setState(StateFlowing)
		return j.pullOne()

	case StateFlowing:
		if j.sb[j.readSB].depth() == 0 {
			j.stats.Underruns++
			j.setState(StateEmpty)
			return nil, false
		}
		j.thinning()
		return j.pullOne()

	case StateHandover:
		if j.sb[j.writeSB].ready() {
			j.sb[j.readSB].free()
			j.stats.HandoversOut++
			j.readSB = j.writeSB
			j.setState(StateFlowing)
			return j.pullOne()
		}
		if j.sb[j.readSB].depth() == 0 {
			j.stats.HoUnderruns++
			j.setState(StateHunt)
			return nil, false
		}
		j.thinning()
		return j.pullOne()
	}

	return nil, false
}

func (j *Jitter) pullOne() (*Packet, bool) {
	sb := &j.sb[j.readSB]
	head := sb.headTS

	j.played = true
	j.playedTS = head
	j.playedSSRC = sb.ssrc

	p, ok := sb.pull(j.tsQuantum)
	if ok {
		j.stats.DeliveredPkt++
		return p, true
	}
	j.stats.OutputGaps++
	j.listener.OnPacketLoss(head)
	return nil, false
}

// thinning drops one slot in every ThinningInt while the read sub-buffer
// stands above its high watermark.
func (j *Jitter) thinning() {
	sb := &j.sb[j.readSB]
	if sb.dropIntCount > 0 {
		sb.dropIntCount--
		return
	}
	if sb.depth() <= int(sb.conf.BdHiwat) {
		return
	}

	// the slot is skipped either way; only a removed frame counts as a drop
	if p, ok := sb.pull(j.tsQuantum); ok {
		j.stats.ThinningDrops++
		j.listener.OnThinningDrop(p)
	}
	sb.dropIntCount = sb.conf.ThinningInt - 2
}

func (j *Jitter) setState(s State) {
	if j.state == s {
		return
	}
	from := j.state
	j.state = s
	j.listener.OnStateChanged(from, s)
}

// Reset drops all buffered frames and statistics and returns to the empty
// state, as on stream activation.
func (j *Jitter) Reset() {
	j.Lock()
	defer j.Unlock()

	j.sb[0].free()
	j.sb[1].free()
	j.readSB = 0
	j.writeSB = 0
	j.gotFirstPacket = false
	j.played = false
	j.stats = Stats{}
	j.setState(StateEmpty)
}

func (j *Jitter) State() State {
	j.Lock()
	defer j.Unlock()
	return j.state
}

func (j *Jitter) Stats() Stats {
	j.Lock()
	defer j.Unlock()
	return j.stats
}

func (j *Jitter) Config() Config {
	j.Lock()
	defer j.Unlock()
	return j.conf
}

// Depth is the number of frames queued in the read sub-buffer.
func (j *Jitter) Depth() int {
	j.Lock()
	defer j.Unlock()
	return j.sb[j.readSB].depth()
}

// WriteDepth is the number of frames queued in the write sub-buffer.
func (j *Jitter) WriteDepth() int {
	j.Lock()
	defer j.Unlock()
	return j.sb[j.writeSB].depth()
}

// HeadTS is the timestamp the next Get will look for. While hunting that is
// the head of the starting sub-buffer.
func (j *Jitter) HeadTS() uint32 {
	j.Lock()
	defer j.Unlock()
	if j.state == StateHunt {
		return j.sb[j.writeSB].headTS
	}
	return j.sb[j.readSB].headTS
}

func (j *Jitter) GotFirstPacket() bool {
	j.Lock()
	defer j.Unlock()
	return j.gotFirstPacket
}

func (j *Jitter) TSQuantum() uint32 {
	return j.tsQuantum
}

func (j *Jitter) QuantaPerSec() uint32 {
	return j.quantaPerSec
}
