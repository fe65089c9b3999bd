package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// SenderSlot binds one remote peer on the sending side: up to three
// endpoints and the outbound session built once the combination is
// complete.
type SenderSlot struct {
	config   SenderConfig
	registry *audio.Registry

	endpoints map[EndpointInterface]*endpoint
	session   *SenderSession

	controlInbound *packet.ConcurrentQueue

	broken bool
}

// NewSenderSlot creates a slot with no endpoints.
func NewSenderSlot(config SenderConfig, registry *audio.Registry) (*SenderSlot, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SenderSlot{
		config:    config,
		registry:  registry,
		endpoints: make(map[EndpointInterface]*endpoint),
	}, nil
}

// Broken reports whether the slot refused an earlier configuration call.
func (s *SenderSlot) Broken() bool {
	return s.broken
}

func (s *SenderSlot) fail(err error) error {
	s.broken = true
	logrus.WithFields(logrus.Fields{
		"error": err.Error(),
	}).Error("sender slot: configuration failed, slot is broken")
	return err
}

// AddEndpoint binds an interface to a protocol. out receives the
// packets the slot emits on this endpoint. For control endpoints the
// returned writer is where the network thread delivers inbound RTCP;
// it is nil for the other interfaces.
func (s *SenderSlot) AddEndpoint(iface EndpointInterface, proto EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	if s.broken {
		return nil, ErrBrokenSlot
	}
	if _, ok := s.endpoints[iface]; ok {
		return nil, s.fail(fmt.Errorf("%w: interface %s already bound", ErrEndpointConflict, iface))
	}
	if !validEndpoint(iface, proto) {
		return nil, s.fail(fmt.Errorf("%w: protocol %s on interface %s", ErrEndpointConflict, proto, iface))
	}
	if out == nil {
		return nil, s.fail(fmt.Errorf("%w: endpoint without outbound writer", ErrInvalidConfig))
	}
	if s.session != nil && iface != InterfaceControl {
		return nil, s.fail(fmt.Errorf("%w: %s endpoint after stream start", ErrEndpointConflict, iface))
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
		iface:    iface,
		proto:    proto,
		outbound: out,
	}
	s.endpoints[iface] = ep

	var inbound packet.Writer
	if iface == InterfaceControl {
		ep.inbound = packet.NewConcurrentQueue(defaultQueueLen)
		s.controlInbound = ep.inbound
		inbound = &endpointWriter{ep: ep}
		if s.session != nil {
			if err := s.session.EnableControl(s.config.Control, out); err != nil {
				return nil, s.fail(err)
			}
		}
	}

	if err := s.maybeStart(); err != nil {
		return nil, s.fail(err)
	}

	logrus.WithFields(logrus.Fields{
		"interface": iface.String(),
		"protocol":  proto.String(),
	}).Info("sender slot: endpoint added")
	return inbound, nil
}

// RemoveEndpoint unbinds an interface. Media endpoints cannot be removed
// once the stream started.
func (s *SenderSlot) RemoveEndpoint(iface EndpointInterface) error {
	if s.broken {
		return ErrBrokenSlot
	}
	if _, ok := s.endpoints[iface]; !ok {
		return fmt.Errorf("%w: interface %s", ErrUnknownEndpoint, iface)
	}
	if s.session != nil && iface != InterfaceControl {
		return s.fail(fmt.Errorf("%w: removing %s endpoint after stream start", ErrEndpointConflict, iface))
	}

	protos := s.protoSet()
	delete(protos, iface)
	if err := checkEndpointSet(protos); err != nil {
		return s.fail(err)
	}

	delete(s.endpoints, iface)
	if iface == InterfaceControl {
		s.controlInbound = nil
	}
	logrus.WithFields(logrus.Fields{
		"interface": iface.String(),
	}).Info("sender slot: endpoint removed")
	return nil
}

func (s *SenderSlot) protoSet() map[EndpointInterface]EndpointProtocol {
	protos := make(map[EndpointInterface]EndpointProtocol, len(s.endpoints))
	for iface, ep := range s.endpoints {
		protos[iface] = ep.proto
	}
	return protos
}

// maybeStart builds the session once the media endpoints are complete.
func (s *SenderSlot) maybeStart() error {
	if s.session != nil {
		return nil
	}
	source, ok := s.endpoints[InterfaceSource]
	if !ok {
		return nil
	}
	scheme := source.proto.Scheme()

	var repairOut packet.Writer
	if scheme != packet.FECSchemeNone {
		repair, ok := s.endpoints[InterfaceRepair]
		if !ok {
			return nil
		}
		repairOut = repair.outbound
	}

	format, err := s.registry.Lookup(s.config.PayloadType)
	if err != nil {
		return err
	}

	session, err := NewSenderSession(s.config, format, scheme, source.outbound, repairOut)
	if err != nil {
		return err
	}
	s.session = session

	if control, ok := s.endpoints[InterfaceControl]; ok {
		if err := session.EnableControl(s.config.Control, control.outbound); err != nil {
			return err
		}
	}
	return nil
}

// IsReady reports whether the slot accepts frames.
func (s *SenderSlot) IsReady() bool {
	return !s.broken && s.session != nil
}

// Write consumes one frame of audio. Frames written before the endpoint
// combination is complete are discarded.
func (s *SenderSlot) Write(frame *audio.Frame) error {
	if s.broken {
		return ErrBrokenSlot
	}
	if s.session == nil {
		return nil
	}
	return s.session.Write(frame)
}

// Flush emits any pending partial packet. Used at stream end.
func (s *SenderSlot) Flush() error {
	if s.broken {
		return ErrBrokenSlot
	}
	if s.session == nil {
		return nil
	}
	return s.session.Flush()
}

// Refresh drains inbound control packets and advances the control
// session. now is Unix nanoseconds.
func (s *SenderSlot) Refresh(now int64) error {
	if s.broken {
		return ErrBrokenSlot
	}
	if s.session == nil {
		return nil
	}

	if s.controlInbound != nil {
		for {
			p, err := s.controlInbound.Read()
			if err != nil || p == nil {
				break
			}
			if err := s.session.ProcessControl(p); err != nil {
				logrus.WithFields(logrus.Fields{
					"error": err.Error(),
				}).Debug("sender slot: dropping malformed control packet")
			}
		}
	}

	return s.session.Refresh(now)
}

// Metrics returns the observable state of the slot.
func (s *SenderSlot) Metrics() SenderSlotMetrics {
	if s.session == nil {
		return SenderSlotMetrics{Broken: s.broken}
	}
	m := s.session.Metrics()
	m.Broken = s.broken
	return m
}
