package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/streamkit/packet"
)

// PayloadHeaderSize is the size of the block header prepended to the RTP
// payload of every protected packet.
const PayloadHeaderSize = 8

// encodeHeader writes the block header of f into dst.
func encodeHeader(dst []byte, f *packet.FEC) {
	binary.BigEndian.PutUint16(dst[0:], f.BlockNumber)
	binary.BigEndian.PutUint16(dst[2:], f.SymbolID)
	binary.BigEndian.PutUint16(dst[4:], f.SourceBlockLength)
	binary.BigEndian.PutUint16(dst[6:], f.BlockLength)
}

// ParsePacket extracts the block header from a packet's RTP payload into
// its FEC view and strips the header from the payload, leaving the media
// bytes (for source packets) or the parity symbol (for repair packets).
func ParsePacket(p *packet.Packet, scheme packet.FECScheme) error {
	if p.RTP == nil {
		return fmt.Errorf("%w: no rtp view", ErrMalformed)
	}
	payload := p.RTP.Payload
	if len(payload) < PayloadHeaderSize {
		return fmt.Errorf("%w: payload %d bytes, need at least %d",
			ErrMalformed, len(payload), PayloadHeaderSize)
	}

	f := &packet.FEC{
		Scheme:            scheme,
		BlockNumber:       binary.BigEndian.Uint16(payload[0:]),
		SymbolID:          binary.BigEndian.Uint16(payload[2:]),
		SourceBlockLength: binary.BigEndian.Uint16(payload[4:]),
		BlockLength:       binary.BigEndian.Uint16(payload[6:]),
	}
	if f.SourceBlockLength == 0 || f.BlockLength <= f.SourceBlockLength {
		return fmt.Errorf("%w: block geometry %d/%d",
			ErrMalformed, f.SourceBlockLength, f.BlockLength)
	}
	if f.SymbolID >= f.BlockLength {
		return fmt.Errorf("%w: symbol id %d outside block of %d",
			ErrMalformed, f.SymbolID, f.BlockLength)
	}

	f.Payload = payload[PayloadHeaderSize:]
	p.FEC = f
	p.RTP.Payload = payload[PayloadHeaderSize:]
	return nil
}
