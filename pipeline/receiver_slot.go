package pipeline

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtp"
)

// endpoint is one bound interface of a slot: the wire protocol, the
// inbound queue filled by the network thread, and for control endpoints
// the outbound writer.
type endpoint struct {
	iface EndpointInterface
	proto EndpointProtocol

	inbound  *packet.ConcurrentQueue
	outbound packet.Writer
}

// endpointWriter parses and tags datagrams on behalf of the network
// thread before they enter the endpoint queue.
type endpointWriter struct {
	ep *endpoint
}

func (w *endpointWriter) Write(p *packet.Packet) error {
	switch w.ep.iface {
	case InterfaceControl:
		p.RTCP = &packet.RTCP{Payload: p.Data}
		p.AddFlags(packet.FlagControl)
	default:
		if p.RTP == nil {
			if err := rtp.Parse(p, p.Data); err != nil {
				return err
			}
		}
		p.AddFlags(packet.FlagRTP)
		if w.ep.iface == InterfaceRepair {
			p.AddFlags(packet.FlagRepair)
		}
	}
	return w.ep.inbound.Write(p)
}

// ReceiverSlot binds one remote peer: up to three endpoints and the
// session group built over them.
//
// A slot that fails a configuration call turns broken and refuses all
// further operations; the owner is expected to unlink it.
type ReceiverSlot struct {
	config   ReceiverConfig
	registry *audio.Registry
	mixer    *audio.Mixer

	endpoints map[EndpointInterface]*endpoint
	group     *SessionGroup

	controlOut packet.Writer

	broken bool
}

// NewReceiverSlot creates a slot with no endpoints, feeding sessions
// into mixer.
func NewReceiverSlot(config ReceiverConfig, registry *audio.Registry, mixer *audio.Mixer) (*ReceiverSlot, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReceiverSlot{
		config:    config,
		registry:  registry,
		mixer:     mixer,
		endpoints: make(map[EndpointInterface]*endpoint),
	}, nil
}

// Broken reports whether the slot refused an earlier configuration call.
func (s *ReceiverSlot) Broken() bool {
	return s.broken
}

func (s *ReceiverSlot) fail(err error) error {
	s.broken = true
	logrus.WithFields(logrus.Fields{
		"error": err.Error(),
	}).Error("receiver slot: configuration failed, slot is broken")
	return err
}

// AddEndpoint binds an interface to a protocol. For control endpoints
// out receives the slot's outgoing RTCP packets; other interfaces ignore
// it. The returned writer is where the network thread delivers inbound
// datagrams for this endpoint.
func (s *ReceiverSlot) AddEndpoint(iface EndpointInterface, proto EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	if s.broken {
		return nil, ErrBrokenSlot
	}
	if _, ok := s.endpoints[iface]; ok {
		return nil, s.fail(fmt.Errorf("%w: interface %s already bound", ErrEndpointConflict, iface))
	}
	if !validEndpoint(iface, proto) {
		return nil, s.fail(fmt.Errorf("%w: protocol %s on interface %s", ErrEndpointConflict, proto, iface))
	}

	protos := s.protoSet()
	protos[iface] = proto
	// A FEC source endpoint may be bound before its repair endpoint; the
	// combination is checked in full once the repair endpoint is added.
	src, hasSource := protos[InterfaceSource]
	_, hasRepair := protos[InterfaceRepair]
	awaitingRepair := hasSource && !hasRepair && src.Scheme() != packet.FECSchemeNone
	if err := checkEndpointSet(protos); err != nil && !awaitingRepair {
		return nil, s.fail(err)
	}

	ep := &endpoint{
		iface:   iface,
		proto:   proto,
		inbound: packet.NewConcurrentQueue(defaultQueueLen),
	}
	s.endpoints[iface] = ep

	switch iface {
	case InterfaceSource:
		s.group = NewSessionGroup(s.config, s.registry, proto.Scheme(), s.mixer)
		if s.controlOut != nil {
			if err := s.group.EnableControl(s.controlOut); err != nil {
				return nil, s.fail(err)
			}
		}
	case InterfaceControl:
		if out == nil {
			return nil, s.fail(fmt.Errorf("%w: control endpoint without outbound writer", ErrInvalidConfig))
		}
		ep.outbound = out
		s.controlOut = out
		if s.group != nil {
			if err := s.group.EnableControl(out); err != nil {
				return nil, s.fail(err)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"interface": iface.String(),
		"protocol":  proto.String(),
	}).Info("receiver slot: endpoint added")
	return &endpointWriter{ep: ep}, nil
}

// RemoveEndpoint unbinds an interface. The remaining combination must
// stay valid.
func (s *ReceiverSlot) RemoveEndpoint(iface EndpointInterface) error {
	if s.broken {
		return ErrBrokenSlot
	}
	if _, ok := s.endpoints[iface]; !ok {
		return fmt.Errorf("%w: interface %s", ErrUnknownEndpoint, iface)
	}

	protos := s.protoSet()
	delete(protos, iface)
	if err := checkEndpointSet(protos); err != nil {
		return s.fail(err)
	}

	delete(s.endpoints, iface)
	if iface == InterfaceSource {
		s.group = nil
	}
	logrus.WithFields(logrus.Fields{
		"interface": iface.String(),
	}).Info("receiver slot: endpoint removed")
	return nil
}

func (s *ReceiverSlot) protoSet() map[EndpointInterface]EndpointProtocol {
	protos := make(map[EndpointInterface]EndpointProtocol, len(s.endpoints))
	for iface, ep := range s.endpoints {
		protos[iface] = ep.proto
	}
	return protos
}

// Refresh drains the endpoint queues into the session group and advances
// it. now is Unix nanoseconds.
func (s *ReceiverSlot) Refresh(now int64) error {
	if s.broken {
		return ErrBrokenSlot
	}
	if s.group == nil {
		return nil
	}

	for _, ep := range s.endpoints {
		for {
			p, err := ep.inbound.Read()
			if err != nil || p == nil {
				break
			}
			if err := s.group.Route(p, now); err != nil {
				if errors.Is(err, packet.ErrNoRoute) {
					continue
				}
				logrus.WithFields(logrus.Fields{
					"interface": ep.iface.String(),
					"error":     err.Error(),
				}).Debug("receiver slot: dropping unroutable packet")
			}
		}
	}

	return s.group.Refresh(now)
}

// Reclock forwards the playback time of the last mixed frame.
func (s *ReceiverSlot) Reclock(playbackTS int64) {
	if s.group != nil {
		s.group.Reclock(playbackTS)
	}
}

// Close tears down the slot's sessions. The slot must not be used
// afterwards.
func (s *ReceiverSlot) Close() {
	if s.group != nil {
		s.group.Close()
		s.group = nil
	}
}

// NumSessions returns the number of live sessions in the slot.
func (s *ReceiverSlot) NumSessions() int {
	if s.group == nil {
		return 0
	}
	return s.group.NumSessions()
}

// Metrics returns the observable state of the slot.
func (s *ReceiverSlot) Metrics() ReceiverSlotMetrics {
	m := ReceiverSlotMetrics{Broken: s.broken}
	if s.group != nil {
		m.Sessions, m.Control = s.group.Metrics()
	}
	return m
}
