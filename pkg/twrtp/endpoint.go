// Package twrtp implements an RTP/RTCP endpoint for one audio stream. It owns
// the RTP and RTCP sockets, feeds received RTP into a twjit jitter buffer,
// stamps outgoing frames with sequence numbers and timestamps, and exchanges
// RTCP sender/receiver reports with the peer.
//
// The caller drives the transmit side once per audio quantum through
// TxQuantum or TxSkip, and pulls received audio with Pull at the same rate.
package twrtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/channel-io/go-twjit/pkg/jitter"
	"github.com/channel-io/go-twjit/pkg/rtphdr"
	"github.com/channel-io/go-twjit/pkg/udppair"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotBound        = errors.New("endpoint has no sockets")
	ErrAlreadyBound    = errors.New("endpoint is already bound")
	ErrRemoteNotSet    = errors.New("remote address not set")
)

// RxFunc receives every accepted RTP packet before it enters the jitter
// buffer. The payload is owned by the callee.
type RxFunc func(payload []byte, seq uint16, ts uint32, marker bool)

type Option func(e *Endpoint)

func WithClock(c Clock) Option {
	return func(e *Endpoint) {
		e.clock = c
	}
}

func WithSSRCProvider(p SSRCProvider) Option {
	return func(e *Endpoint) {
		e.ssrcProvider = p
	}
}

// WithInitialSeqTS fixes the first transmitted sequence number and timestamp
// instead of drawing them at random.
func WithInitialSeqTS(seq uint16, ts uint32) Option {
	return func(e *Endpoint) {
		e.tx.seq = seq
		e.tx.ts = ts
		e.fixedSeqTS = true
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Endpoint) {
		e.log = log
	}
}

func WithRxCallback(f RxFunc) Option {
	return func(e *Endpoint) {
		e.rxFunc = f
	}
}

// WithJitterListener forwards jitter buffer events to l.
func WithJitterListener(l jitter.Listener) Option {
	return func(e *Endpoint) {
		e.jitterListener = l
	}
}

type Endpoint struct {
	sync.Mutex

	conf      Config
	tsQuantum uint32

	pair      *udppair.Pair
	closeOnce sync.Once

	remoteRTP  *net.UDPAddr
	remoteRTCP *net.UDPAddr
	remoteSet  bool

	jitter         *jitter.Jitter
	jitterListener jitter.Listener

	tx     txState
	rx     rxState
	rtcpRx rtcpRxState

	sdes          *rtcp.SourceDescription
	autoRTCPCount uint16

	stats Stats

	rxFunc       RxFunc
	clock        Clock
	ssrcProvider SSRCProvider
	fixedSeqTS   bool
	log          *logrus.Entry
	// throttles warnings about dropped datagrams
	dropLog *rate.Limiter

	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

func New(conf Config, opts ...Option) (*Endpoint, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	e := &Endpoint{
		conf:      conf,
		tsQuantum: uint32(conf.ClockKHz) * uint32(conf.QuantumMs),
		dropLog:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, o := range opts {
		o(e)
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.ssrcProvider == nil {
		e.ssrcProvider = randomSSRC{}
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := e.initTx(); err != nil {
		return nil, err
	}

	if conf.Jitter != nil {
		jopts := []jitter.Option{jitter.WithLogger(e.log)}
		if e.jitterListener != nil {
			jopts = append(jopts, jitter.WithListener(e.jitterListener))
		}
		j, err := jitter.New(*conf.Jitter, conf.ClockKHz, conf.QuantumMs, jopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create jitter buffer: %w", err)
		}
		e.jitter = j
	}

	if conf.SDES != nil {
		sdes, err := rtphdr.BuildSDES(e.tx.ssrc, *conf.SDES)
		if err != nil {
			return nil, err
		}
		e.sdes = sdes
	}

	e.log = e.log.WithField("ssrc", fmt.Sprintf("0x%08x", e.tx.ssrc))
	e.log.WithFields(logrus.Fields{
		"function":   "twrtp.New",
		"clock_khz":  conf.ClockKHz,
		"quantum_ms": conf.QuantumMs,
		"jitter":     e.jitter != nil,
	}).Info("Created RTP endpoint")

	return e, nil
}

func (e *Endpoint) initTx() error {
	ssrc, err := e.ssrcProvider.GenerateSSRC()
	if err != nil {
		return fmt.Errorf("failed to generate SSRC: %w", err)
	}
	e.tx.ssrc = ssrc

	if e.fixedSeqTS {
		return nil
	}
	seqTS, err := randomUint32()
	if err != nil {
		return fmt.Errorf("failed to draw initial sequence number: %w", err)
	}
	ts, err := randomUint32()
	if err != nil {
		return fmt.Errorf("failed to draw initial timestamp: %w", err)
	}
	e.tx.seq = uint16(seqTS)
	e.tx.ts = ts
	return nil
}

// Bind binds the RTP/RTCP socket pair on ip:port (port even, or 0 for any).
func (e *Endpoint) Bind(ip net.IP, port int) error {
	e.Lock()
	defer e.Unlock()

	if e.pair != nil {
		return ErrAlreadyBound
	}
	pair, err := udppair.Bind(ip, port)
	if err != nil {
		return err
	}
	e.attach(pair)
	return nil
}

// BindRange binds the next free pair from r.
func (e *Endpoint) BindRange(ip net.IP, r *udppair.Range) error {
	e.Lock()
	defer e.Unlock()

	if e.pair != nil {
		return ErrAlreadyBound
	}
	pair, err := udppair.BindRange(ip, r)
	if err != nil {
		return err
	}
	e.attach(pair)
	return nil
}

// AttachPair hands already bound sockets to the endpoint, which then owns
// them.
func (e *Endpoint) AttachPair(pair *udppair.Pair) error {
	if pair == nil {
		return ErrInvalidArgument
	}

	e.Lock()
	defer e.Unlock()

	if e.pair != nil {
		return ErrAlreadyBound
	}
	e.attach(pair)
	return nil
}

func (e *Endpoint) attach(pair *udppair.Pair) {
	e.pair = pair
	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.Bind",
		"local":    pair.LocalAddr().String(),
	}).Info("RTP endpoint bound")
}

// LocalAddr is the local RTP address, or nil before Bind.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	e.Lock()
	defer e.Unlock()

	if e.pair == nil {
		return nil
	}
	return e.pair.LocalAddr()
}

// Start launches the RTP and RTCP receive loops. Calling it again while
// running does nothing. If either loop fails, both sockets are closed and the
// error is reported by Wait.
func (e *Endpoint) Start(ctx context.Context) error {
	e.Lock()
	defer e.Unlock()

	if e.pair == nil {
		return ErrNotBound
	}
	if e.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	pair := e.pair

	g.Go(func() error {
		return e.readLoop(gctx, "rtp", pair.RTP, e.HandleRTP)
	})
	g.Go(func() error {
		return e.readLoop(gctx, "rtcp", pair.RTCP, e.HandleRTCP)
	})
	g.Go(func() error {
		<-gctx.Done()
		e.closePair()
		return nil
	})

	e.running = true
	e.cancel = cancel
	e.group = g

	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.Start",
		"local":    pair.LocalAddr().String(),
	}).Info("Started RTP endpoint receive loops")
	return nil
}

// Wait blocks until the receive loops have stopped and returns the first
// loop error.
func (e *Endpoint) Wait() error {
	e.Lock()
	g := e.group
	e.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// Close stops the receive loops and closes both sockets.
func (e *Endpoint) Close() error {
	e.Lock()
	cancel := e.cancel
	g := e.group
	hasPair := e.pair != nil
	e.Unlock()

	if cancel != nil {
		cancel()
	}
	if hasPair {
		e.closePair()
	}

	var err error
	if g != nil {
		err = g.Wait()
	}

	e.Lock()
	e.running = false
	e.Unlock()

	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.Close",
	}).Info("Closed RTP endpoint")
	return err
}

func (e *Endpoint) closePair() {
	e.closeOnce.Do(func() {
		if err := e.pair.Close(); err != nil {
			e.log.WithFields(logrus.Fields{
				"function": "Endpoint.closePair",
				"error":    err.Error(),
			}).Warn("Error closing RTP sockets")
		}
	})
}

// SetRemote sets the RTP destination; RTCP goes to the same host on the
// next port up.
func (e *Endpoint) SetRemote(addr *net.UDPAddr) error {
	if addr == nil || addr.IP == nil || addr.Port <= 0 || addr.Port >= 65535 {
		return fmt.Errorf("%w: remote address %v", ErrInvalidArgument, addr)
	}

	e.Lock()
	defer e.Unlock()

	e.remoteRTP = &net.UDPAddr{IP: addr.IP, Port: addr.Port, Zone: addr.Zone}
	e.remoteRTCP = &net.UDPAddr{IP: addr.IP, Port: addr.Port + 1, Zone: addr.Zone}
	e.remoteSet = true

	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.SetRemote",
		"rtp":      e.remoteRTP.String(),
		"rtcp":     e.remoteRTCP.String(),
	}).Info("Set RTP remote")
	return nil
}

func (e *Endpoint) SetDSCP(dscp int) error {
	e.Lock()
	defer e.Unlock()

	if e.pair == nil {
		return ErrNotBound
	}
	return e.pair.SetDSCP(dscp)
}

func (e *Endpoint) SetSocketPriority(prio int) error {
	e.Lock()
	defer e.Unlock()

	if e.pair == nil {
		return ErrNotBound
	}
	return e.pair.SetPriority(prio)
}

// Jitter returns the receive jitter buffer, or nil if the endpoint was
// configured without one.
func (e *Endpoint) Jitter() *jitter.Jitter {
	return e.jitter
}

// Pull takes one quantum of received audio from the jitter buffer. It must be
// called once per tick.
func (e *Endpoint) Pull() (*jitter.Packet, bool) {
	if e.jitter == nil {
		return nil, false
	}
	return e.jitter.Get()
}

// Reset prepares for a restarted stream: the jitter buffer and receive
// accounting start over and the next transmitted frame carries the marker
// when auto-marker is requested.
func (e *Endpoint) Reset() {
	if e.jitter != nil {
		e.jitter.Reset()
	}

	e.Lock()
	defer e.Unlock()

	e.rx = rxState{}
	e.rtcpRx = rtcpRxState{}
	if e.tx.started {
		e.tx.restart = true
	}

	e.log.WithFields(logrus.Fields{
		"function": "Endpoint.Reset",
	}).Info("Reset RTP endpoint")
}

// SSRC is the transmit SSRC.
func (e *Endpoint) SSRC() uint32 {
	e.Lock()
	defer e.Unlock()
	return e.tx.ssrc
}

func (e *Endpoint) Stats() Stats {
	e.Lock()
	defer e.Unlock()
	return e.stats
}
