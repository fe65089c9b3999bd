package packet

import (
	"net"
)

// Flags describes which views a packet carries and how it was produced.
type Flags uint8

const (
	// FlagUDP means the packet has a UDP view (datagram addresses).
	FlagUDP Flags = 1 << iota

	// FlagRTP means the packet has an RTP view carrying audio.
	FlagRTP

	// FlagRepair means the packet belongs to a repair (FEC parity)
	// stream rather than a source stream.
	FlagRepair

	// FlagControl means the packet carries an RTCP compound.
	FlagControl

	// FlagComposed means the byte slice is authoritative: the views have
	// been serialized into Data and must be treated as read-only.
	FlagComposed
)

// UDP is the datagram view of a packet.
type UDP struct {
	Source *net.UDPAddr
	Dest   *net.UDPAddr
}

// RTP is the media view of a packet.
//
// Duration and CaptureTS are derived fields filled by the populator and
// the timestamp injector; they are not part of the wire format.
type RTP struct {
	SourceID    uint32
	SeqNum      uint16
	Timestamp   uint32
	Duration    uint32 // samples per channel covered by the payload
	CaptureTS   int64  // Unix ns of the first sample, 0 when unknown
	Marker      bool
	PayloadType uint8
	Payload     []byte
}

// FEC is the erasure-coding view of a packet. For repair packets Payload
// holds a parity symbol; for source packets it holds the media bytes that
// follow the block header. The protected symbol of a source packet is its
// serialized datagram in Packet.Data.
type FEC struct {
	Scheme            FECScheme
	BlockNumber       uint16 // source_block_number, wraps
	SymbolID          uint16 // encoding_symbol_id, position in block
	SourceBlockLength uint16
	BlockLength       uint16
	Payload           []byte
}

// FECScheme identifies a FEC arithmetic.
type FECScheme int

const (
	// FECSchemeNone disables FEC.
	FECSchemeNone FECScheme = iota

	// FECSchemeRS8M is Reed-Solomon over GF(2^8), Vandermonde matrix.
	FECSchemeRS8M

	// FECSchemeLDPC is LDPC-staircase.
	FECSchemeLDPC
)

// String returns the scheme tag used in endpoint protocols.
func (s FECScheme) String() string {
	switch s {
	case FECSchemeRS8M:
		return "rs8m"
	case FECSchemeLDPC:
		return "ldpc"
	default:
		return "none"
	}
}

// RTCP is the control view of a packet.
type RTCP struct {
	Payload []byte
}

// Packet is a tagged union of views over a shared byte slice. Packets are
// shared between pipeline stages (jitter queue, FEC window) until consumed;
// pools hand them out and take them back via Pool.
type Packet struct {
	flags Flags

	// Data is the raw datagram. Authoritative once FlagComposed is set.
	Data []byte

	UDP  *UDP
	RTP  *RTP
	FEC  *FEC
	RTCP *RTCP
}

// Flags returns the packet flags.
func (p *Packet) Flags() Flags {
	return p.flags
}

// AddFlags ORs the given flags into the packet.
func (p *Packet) AddFlags(flags Flags) {
	p.flags |= flags
}

// HasFlags reports whether all given flags are set.
func (p *Packet) HasFlags(flags Flags) bool {
	return p.flags&flags == flags
}

// Reset clears the packet for reuse.
func (p *Packet) Reset() {
	*p = Packet{}
}

// SeqnumDiff returns the modular distance a-b over the 16-bit sequence
// number space. The result is positive when a is ahead of b.
func SeqnumDiff(a, b uint16) int {
	return int(int16(a - b))
}

// SeqnumLess reports whether a precedes b in modular order.
func SeqnumLess(a, b uint16) bool {
	return SeqnumDiff(a, b) < 0
}

// TimestampDiff returns the modular distance a-b over the 32-bit RTP
// timestamp space.
func TimestampDiff(a, b uint32) int64 {
	return int64(int32(a - b))
}

// BlknumDiff returns the modular distance a-b over the 16-bit FEC block
// number space.
func BlknumDiff(a, b uint16) int {
	return int(int16(a - b))
}

// Compare orders two RTP packets: modular comparison of sequence numbers,
// then of timestamps. It returns a negative value if a precedes b, zero if
// they occupy the same stream position, and a positive value otherwise.
func Compare(a, b *Packet) int {
	if a.RTP == nil || b.RTP == nil {
		return 0
	}
	if d := SeqnumDiff(a.RTP.SeqNum, b.RTP.SeqNum); d != 0 {
		return d
	}
	if d := TimestampDiff(a.RTP.Timestamp, b.RTP.Timestamp); d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	return 0
}

// Reader produces packets. Read returns (nil, nil) when no packet is
// currently available; a non-nil error means the stream is unusable.
type Reader interface {
	Read() (*Packet, error)
}

// Writer consumes packets.
type Writer interface {
	Write(p *Packet) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(p *Packet) error

// Write calls f(p).
func (f WriterFunc) Write(p *Packet) error {
	return f(p)
}
