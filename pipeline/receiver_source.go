package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// SlotID identifies one slot within a receiver or sender. Slots live in
// an index-keyed table so children can refer to their owner without
// back-pointers.
type SlotID int

// ReceiverSource is the receiver half of the toolkit: a set of slots
// mixed into one PCM stream, pulled frame by frame from the real-time
// goroutine, with all slot management funneled through the loop as
// tasks.
type ReceiverSource struct {
	config   ReceiverConfig
	registry *audio.Registry
	mixer    *audio.Mixer
	time     TimeProvider

	loop  *Loop
	sched *timerScheduler

	slots    map[SlotID]*ReceiverSlot
	nextSlot SlotID
}

// NewReceiverSource creates a receiver with no slots. tp may be nil,
// selecting the system clock.
func NewReceiverSource(config ReceiverConfig, loopConfig LoopConfig, registry *audio.Registry, tp TimeProvider) (*ReceiverSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = RealTimeProvider{}
	}

	rs := &ReceiverSource{
		config:   config,
		registry: registry,
		mixer:    audio.NewMixer(config.SampleSpec, config.MaxFrameSize),
		time:     tp,
		sched:    newTimerScheduler(tp),
		slots:    make(map[SlotID]*ReceiverSlot),
	}

	loop, err := NewLoop(loopConfig, config.SampleSpec, rs, rs.sched, tp)
	if err != nil {
		return nil, err
	}
	rs.loop = loop

	logrus.WithFields(logrus.Fields{
		"spec":           config.SampleSpec.String(),
		"target_latency": config.TargetLatency,
	}).Info("receiver source: created")
	return rs, nil
}

// SampleSpec returns the spec of the mixed output.
func (rs *ReceiverSource) SampleSpec() audio.SampleSpec {
	return rs.config.SampleSpec
}

// Loop exposes the scheduling loop, for stats and direct task access.
func (rs *ReceiverSource) Loop() *Loop {
	return rs.loop
}

// ProcessSubframe refreshes every slot and mixes one sub-frame. Runs
// under the loop's processing lock.
func (rs *ReceiverSource) ProcessSubframe(frame *audio.Frame) error {
	now := rs.time.Now().UnixNano()

	for _, slot := range rs.slots {
		if slot.Broken() {
			continue
		}
		if err := slot.Refresh(now); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Warn("receiver source: slot refresh failed")
		}
	}

	if err := rs.mixer.Read(frame); err != nil {
		return err
	}

	for _, slot := range rs.slots {
		slot.Reclock(now)
	}
	return nil
}

// Read fills one frame of mixed audio, interleaving queued tasks per the
// loop configuration. Called from the real-time goroutine.
func (rs *ReceiverSource) Read(frame *audio.Frame) error {
	return rs.loop.ProcessSubframesAndTasks(frame)
}

// CreateSlot adds an empty slot and returns its id.
func (rs *ReceiverSource) CreateSlot() (SlotID, error) {
	var id SlotID
	err := rs.loop.ScheduleAndWait(func() error {
		slot, err := NewReceiverSlot(rs.config, rs.registry, rs.mixer)
		if err != nil {
			return err
		}
		id = rs.nextSlot
		rs.nextSlot++
		rs.slots[id] = slot
		return nil
	})
	return id, err
}

// DeleteSlot tears down a slot and its sessions.
func (rs *ReceiverSource) DeleteSlot(id SlotID) error {
	return rs.loop.ScheduleAndWait(func() error {
		slot, ok := rs.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		slot.Close()
		delete(rs.slots, id)
		return nil
	})
}

// AddEndpoint binds an interface of a slot to a protocol. The returned
// writer is where the network goroutine delivers inbound datagrams for
// this endpoint; out receives outbound RTCP for control endpoints.
func (rs *ReceiverSource) AddEndpoint(id SlotID, iface EndpointInterface, proto EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	var w packet.Writer
	err := rs.loop.ScheduleAndWait(func() error {
		slot, ok := rs.slots[id]
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
func (rs *ReceiverSource) RemoveEndpoint(id SlotID, iface EndpointInterface) error {
	return rs.loop.ScheduleAndWait(func() error {
		slot, ok := rs.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		return slot.RemoveEndpoint(iface)
	})
}

// SlotMetrics queries the observable state of a slot.
func (rs *ReceiverSource) SlotMetrics(id SlotID) (ReceiverSlotMetrics, error) {
	var m ReceiverSlotMetrics
	err := rs.loop.ScheduleAndWait(func() error {
		slot, ok := rs.slots[id]
		if !ok {
			return fmt.Errorf("%w: slot %d", ErrUnknownSlot, id)
		}
		m = slot.Metrics()
		return nil
	})
	return m, err
}

// Close tears down every slot and shuts the loop. Pending tasks complete
// first; frames and tasks submitted afterwards fail with ErrLoopClosed.
func (rs *ReceiverSource) Close() error {
	err := rs.loop.ScheduleAndWait(func() error {
		for id, slot := range rs.slots {
			slot.Close()
			delete(rs.slots, id)
		}
		return nil
	})
	rs.loop.Close()
	rs.sched.stop()
	logrus.Info("receiver source: closed")
	return err
}
