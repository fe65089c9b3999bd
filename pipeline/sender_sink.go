package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// SenderSink is the sender half of the toolkit: one written PCM stream
// fanned out to a set of slots, each encoding and emitting packets on
// its own endpoints, with all slot management funneled through the loop
// as tasks.
type SenderSink struct {
	config   SenderConfig
	registry *audio.Registry
	fanout   *audio.Fanout
	time     TimeProvider

	loop  *Loop
	sched *timerScheduler

	slots    map[SlotID]*SenderSlot
	nextSlot SlotID
}

// NewSenderSink creates a sender with no slots. tp may be nil, selecting
// the system clock.
func NewSenderSink(config SenderConfig, loopConfig LoopConfig, registry *audio.Registry, tp TimeProvider) (*SenderSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = RealTimeProvider{}
	}

	ss := &SenderSink{
		config:   config,
		registry: registry,
		fanout:   audio.NewFanout(config.SampleSpec),
		time:     tp,
		sched:    newTimerScheduler(tp),
		slots:    make(map[SlotID]*SenderSlot),
	}

	loop, err := NewLoop(loopConfig, config.SampleSpec, ss, ss.sched, tp)
	if err != nil {
		return nil, err
	}
	ss.loop = loop

	logrus.WithFields(logrus.Fields{
		"spec":          config.SampleSpec.String(),
		"packet_length": config.PacketLength,
	}).Info("sender sink: created")
	return ss, nil
}

// SampleSpec returns the spec of the written input.
func (ss *SenderSink) SampleSpec() audio.SampleSpec {
	return ss.config.SampleSpec
}

// Loop exposes the scheduling loop, for stats and direct task access.
func (ss *SenderSink) Loop() *Loop {
	return ss.loop
}

// ProcessSubframe fans one sub-frame out to every slot and advances the
// control sessions. Runs under the loop's processing lock.
func (ss *SenderSink) ProcessSubframe(frame *audio.Frame) error {
	if err := ss.fanout.Write(frame); err != nil {
		return err
	}

	now := ss.time.Now().UnixNano()
	for _, slot := range ss.slots {
		if slot.Broken() {
			continue
		}
		if err := slot.Refresh(now); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Warn("sender sink: slot refresh failed")
		}
	}
	return nil
}

// Write consumes one frame of audio, interleaving queued tasks per the
// loop configuration. Called from the real-time goroutine.
func (ss *SenderSink) Write(frame *audio.Frame) error {
	return ss.loop.ProcessSubframesAndTasks(frame)
}

// CreateSlot adds an empty slot and returns its id.
func (ss *SenderSink) CreateSlot() (SlotID, error) {
	var id SlotID
	err := ss.loop.ScheduleAndWait(func() error {
		slot, err := NewSenderSlot(ss.config, ss.registry)
		if err != nil {
			return err
		}
		id = ss.nextSlot
		ss.nextSlot++
		ss.slots[id] = slot
		ss.fanout.AddOutput(slot)
		return nil
	})
	return id, err
}

// DeleteSlot flushes and tears down a slot.
func (ss *SenderSink) DeleteSlot(id SlotID) error {
	return ss.loop.ScheduleAndWait(func() error {
		slot, ok := ss.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		if !slot.Broken() {
			if err := slot.Flush(); err != nil {
				logrus.WithFields(logrus.Fields{
					"error": err.Error(),
				}).Warn("sender sink: flush on slot delete failed")
			}
		}
		ss.fanout.RemoveOutput(slot)
		delete(ss.slots, id)
		return nil
	})
}

// AddEndpoint binds an interface of a slot to a protocol. out receives
// the packets the slot emits there; for control endpoints the returned
// writer accepts inbound RTCP from the network goroutine.
func (ss *SenderSink) AddEndpoint(id SlotID, iface EndpointInterface, proto EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	var w packet.Writer
	err := ss.loop.ScheduleAndWait(func() error {
		slot, ok := ss.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		var err error
		w, err = slot.AddEndpoint(iface, proto, out)
		return err
	})
	return w, err
}

// RemoveEndpoint unbinds an interface of a slot.
func (ss *SenderSink) RemoveEndpoint(id SlotID, iface EndpointInterface) error {
	return ss.loop.ScheduleAndWait(func() error {
		slot, ok := ss.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		return slot.RemoveEndpoint(iface)
	})
}

// SlotMetrics queries the observable state of a slot.
func (ss *SenderSink) SlotMetrics(id SlotID) (SenderSlotMetrics, error) {
	var m SenderSlotMetrics
	err := ss.loop.ScheduleAndWait(func() error {
		slot, ok := ss.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		m = slot.Metrics()
		return nil
	})
	return m, err
}

// Close flushes every slot and shuts the loop. Pending tasks complete
// first; frames and tasks submitted afterwards fail with ErrLoopClosed.
func (ss *SenderSink) Close() error {
	err := ss.loop.ScheduleAndWait(func() error {
		for id, slot := range ss.slots {
			if !slot.Broken() {
				if err := slot.Flush(); err != nil {
					logrus.WithFields(logrus.Fields{
						"error": err.Error(),
					}).Warn("sender sink: flush on close failed")
				}
			}
			ss.fanout.RemoveOutput(slot)
			delete(ss.slots, id)
		}
		return nil
	})
	ss.loop.Close()
	ss.sched.stop()
	logrus.Info("sender sink: closed")
	return err
}
