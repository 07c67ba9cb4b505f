package jitter

import "github.com/sirupsen/logrus"

// Listener observes buffer events. Callbacks run with the buffer locked and
// must not call back into it.
type Listener interface {
	OnStateChanged(from, to State)
	OnPacketLoss(headTS uint32)
	OnPacketDropped(p *Packet, reason DropReason)
	OnThinningDrop(p *Packet)
}

type NullListener struct {
}

func (n NullListener) OnStateChanged(from, to State) {}

func (n NullListener) OnPacketLoss(headTS uint32) {}

func (n NullListener) OnPacketDropped(p *Packet, reason DropReason) {}

func (n NullListener) OnThinningDrop(p *Packet) {}

// LogListener reports state transitions at info level and per-packet events
// at debug level.
type LogListener struct {
	Log *logrus.Entry
}

func (l LogListener) OnStateChanged(from, to State) {
	l.Log.WithFields(logrus.Fields{
		"function": "Jitter.setState",
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Jitter buffer state changed")
}

func (l LogListener) OnPacketLoss(headTS uint32) {
	l.Log.WithFields(logrus.Fields{
		"function": "Jitter.Get",
		"head_ts":  headTS,
	}).Debug("No frame for output slot")
}

func (l LogListener) OnPacketDropped(p *Packet, reason DropReason) {
	l.Log.WithFields(logrus.Fields{
		"function":  "Jitter.Put",
		"timestamp": p.Timestamp,
		"sequence":  p.SequenceNumber,
		"reason":    reason.String(),
	}).Debug("Dropped input frame")
}

func (l LogListener) OnThinningDrop(p *Packet) {
	l.Log.WithFields(logrus.Fields{
		"function":  "Jitter.thinning",
		"timestamp": p.Timestamp,
	}).Debug("Thinned standing queue")
}
