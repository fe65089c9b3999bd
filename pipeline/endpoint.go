package pipeline

import (
	"fmt"

	"github.com/opd-ai/streamkit/packet"
)

// EndpointInterface names the role of an endpoint within a slot.
type EndpointInterface int

const (
	// InterfaceSource carries the media stream.
	InterfaceSource EndpointInterface = iota

	// InterfaceRepair carries FEC parity packets.
	InterfaceRepair

	// InterfaceControl carries RTCP compound packets.
	InterfaceControl
)

// String returns the interface name.
func (i EndpointInterface) String() string {
	switch i {
	case InterfaceSource:
		return "source"
	case InterfaceRepair:
		return "repair"
	case InterfaceControl:
		return "control"
	default:
		return "invalid"
	}
}

// EndpointProtocol is the closed set of wire protocols an endpoint can
// speak.
type EndpointProtocol int

const (
	// ProtoRTP is plain RTP with no FEC.
	ProtoRTP EndpointProtocol = iota

	// ProtoRTPRS8M is RTP protected by Reed-Solomon, source stream.
	ProtoRTPRS8M

	// ProtoRS8M is the Reed-Solomon repair stream.
	ProtoRS8M

	// ProtoRTPLDPC is RTP protected by LDPC-staircase, source stream.
	ProtoRTPLDPC

	// ProtoLDPC is the LDPC-staircase repair stream.
	ProtoLDPC

	// ProtoRTCP is the control protocol.
	ProtoRTCP
)

// String returns the protocol tag used in endpoint URIs.
func (p EndpointProtocol) String() string {
	switch p {
	case ProtoRTP:
		return "rtp"
	case ProtoRTPRS8M:
		return "rtp+rs8m"
	case ProtoRS8M:
		return "rs8m"
	case ProtoRTPLDPC:
		return "rtp+ldpc"
	case ProtoLDPC:
		return "ldpc"
	case ProtoRTCP:
		return "rtcp"
	default:
		return "invalid"
	}
}

// Scheme returns the FEC scheme implied by the protocol.
func (p EndpointProtocol) Scheme() packet.FECScheme {
	switch p {
	case ProtoRTPRS8M, ProtoRS8M:
		return packet.FECSchemeRS8M
	case ProtoRTPLDPC, ProtoLDPC:
		return packet.FECSchemeLDPC
	default:
		return packet.FECSchemeNone
	}
}

// validEndpoint reports whether the protocol may serve the interface.
func validEndpoint(iface EndpointInterface, proto EndpointProtocol) bool {
	switch iface {
	case InterfaceSource:
		return proto == ProtoRTP || proto == ProtoRTPRS8M || proto == ProtoRTPLDPC
	case InterfaceRepair:
		return proto == ProtoRS8M || proto == ProtoLDPC
	case InterfaceControl:
		return proto == ProtoRTCP
	default:
		return false
	}
}

// checkEndpointSet validates a slot's complete endpoint combination:
// a lone source endpoint means FEC off, source plus repair requires
// matching schemes on both, and control may accompany either shape.
func checkEndpointSet(protos map[EndpointInterface]EndpointProtocol) error {
	source, hasSource := protos[InterfaceSource]
	repair, hasRepair := protos[InterfaceRepair]

	if hasRepair && !hasSource {
		return fmt.Errorf("%w: repair endpoint without source", ErrEndpointConflict)
	}
	if hasSource && hasRepair {
		if source.Scheme() == packet.FECSchemeNone {
			return fmt.Errorf("%w: repair endpoint with plain rtp source", ErrEndpointConflict)
		}
		if source.Scheme() != repair.Scheme() {
			return fmt.Errorf("%w: source scheme %s, repair scheme %s",
				ErrEndpointConflict, source.Scheme(), repair.Scheme())
		}
	}
	if hasSource && !hasRepair && source.Scheme() != packet.FECSchemeNone {
		return fmt.Errorf("%w: fec source endpoint without repair", ErrEndpointConflict)
	}
	return nil
}
