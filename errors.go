package streamkit

import (
	"errors"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/fec"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/pipeline"
	"github.com/opd-ai/streamkit/rtcp"
	"github.com/opd-ai/streamkit/rtp"
)

// Sentinel errors forming the closed kind set of the toolkit. Errors
// returned by any package classify to exactly one of these through
// Classify; errors.Is also works against the per-package sentinels
// wrapped at the call site.

var (
	// ErrInvalidArgument indicates a parameter outside its valid range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState indicates an operation against a broken slot, an
	// ended session, or a closed node.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound indicates a missing slot or endpoint.
	ErrNotFound = errors.New("not found")

	// ErrResourceExhausted indicates a fixed-size pool or bounded queue
	// refused an allocation.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrProtocol indicates a malformed packet or a failed FEC block.
	ErrProtocol = errors.New("protocol error")

	// ErrPolicyViolation indicates a packet the validator rejected.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrTimeout indicates a watchdog expiry.
	ErrTimeout = errors.New("timeout")

	// ErrIO indicates a failure reported by an endpoint writer.
	ErrIO = errors.New("io error")
)

// Classify maps any toolkit error to its sentinel kind. Unrecognized
// errors classify as ErrIO, the kind of failures that originate outside
// the core.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrProtocol),
		errors.Is(err, ErrPolicyViolation),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrIO):
		return err

	case errors.Is(err, audio.ErrInvalidArgument),
		errors.Is(err, pipeline.ErrInvalidConfig),
		errors.Is(err, fec.ErrInvalidConfig),
		errors.Is(err, fec.ErrUnsupportedScheme),
		errors.Is(err, rtcp.ErrInvalidConfig):
		return ErrInvalidArgument

	case errors.Is(err, pipeline.ErrBrokenSlot),
		errors.Is(err, pipeline.ErrEndpointConflict),
		errors.Is(err, pipeline.ErrLoopClosed),
		errors.Is(err, audio.ErrInvalidState),
		errors.Is(err, audio.ErrStreamEnd):
		return ErrInvalidState

	case errors.Is(err, pipeline.ErrUnknownSlot),
		errors.Is(err, pipeline.ErrUnknownEndpoint),
		errors.Is(err, audio.ErrUnknownFormat):
		return ErrNotFound

	case errors.Is(err, packet.ErrPoolExhausted),
		errors.Is(err, packet.ErrQueueFull):
		return ErrResourceExhausted

	case errors.Is(err, packet.ErrMalformed),
		errors.Is(err, rtp.ErrMalformed),
		errors.Is(err, fec.ErrMalformed),
		errors.Is(err, fec.ErrDecodeFailed),
		errors.Is(err, fec.ErrSymbolSize),
		errors.Is(err, rtcp.ErrMalformed):
		return ErrProtocol

	case errors.Is(err, rtp.ErrPolicyViolation):
		return ErrPolicyViolation

	case errors.Is(err, audio.ErrSessionBroken):
		return ErrTimeout

	default:
		return ErrIO
	}
}
