package fec

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtp"
)

// WriterConfig holds the sender-side block geometry.
type WriterConfig struct {
	// Scheme selects the parity arithmetic.
	Scheme packet.FECScheme

	// SourceBlockLength is the number of source packets per block.
	SourceBlockLength int

	// RepairBlockLength is the number of parity packets per block.
	RepairBlockLength int

	// RepairPayloadType is the dynamic payload type of repair packets.
	RepairPayloadType uint8
}

// DefaultWriterConfig returns the block geometry used when the caller
// does not override FEC tuning.
func DefaultWriterConfig(scheme packet.FECScheme) WriterConfig {
	return WriterConfig{
		Scheme:            scheme,
		SourceBlockLength: 18,
		RepairBlockLength: 10,
		RepairPayloadType: 123,
	}
}

// Writer protects a source packet stream with block FEC.
//
// It consumes uncomposed source packets, prepends the block header to
// each payload, serializes the packet, and passes it on. After every
// SourceBlockLength packets it derives the parity symbols over the
// serialized source packets and emits them as repair packets. All source
// packets of one block must serialize to the same size; the packetizer's
// fixed packet length guarantees that for PCM streams.
type Writer struct {
	config    WriterConfig
	encoder   BlockEncoder
	sourceOut packet.Writer
	repairOut packet.Writer

	curBlock     uint16
	symbolID     int
	symbols      [][]byte
	blockStartTS uint32
	sourceID     uint32
	haveSourceID bool
	repairSeqnum uint16

	blocksEmitted uint64
}

// NewWriter creates a FEC writer emitting protected source packets to
// sourceOut and parity packets to repairOut.
func NewWriter(config WriterConfig, sourceOut, repairOut packet.Writer) (*Writer, error) {
	encoder, err := NewBlockEncoder(config.Scheme, config.SourceBlockLength, config.RepairBlockLength)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		config:       config,
		encoder:      encoder,
		sourceOut:    sourceOut,
		repairOut:    repairOut,
		symbols:      make([][]byte, 0, config.SourceBlockLength),
		repairSeqnum: uint16(rand.Uint32()),
	}
	logrus.WithFields(logrus.Fields{
		"scheme":              config.Scheme.String(),
		"source_block_length": config.SourceBlockLength,
		"repair_block_length": config.RepairBlockLength,
	}).Info("fec writer: created")
	return w, nil
}

// Write protects and forwards one source packet.
func (w *Writer) Write(p *packet.Packet) error {
	if p.RTP == nil {
		return fmt.Errorf("%w: source packet without rtp view", ErrMalformed)
	}

	if w.symbolID == 0 {
		w.blockStartTS = p.RTP.Timestamp
	}
	if !w.haveSourceID {
		w.sourceID = p.RTP.SourceID
		w.haveSourceID = true
	}

	w.annotate(p, uint16(w.symbolID))
	if err := rtp.Compose(p); err != nil {
		return err
	}

	if len(w.symbols) > 0 && len(p.Data) != len(w.symbols[0]) {
		return fmt.Errorf("%w: %d != %d", ErrSymbolSize, len(p.Data), len(w.symbols[0]))
	}
	w.symbols = append(w.symbols, p.Data)

	if err := w.sourceOut.Write(p); err != nil {
		return err
	}

	w.symbolID++
	if w.symbolID == w.config.SourceBlockLength {
		if err := w.emitRepair(); err != nil {
			return err
		}
		w.curBlock++
		w.symbolID = 0
		w.symbols = w.symbols[:0]
	}
	return nil
}

func (w *Writer) annotate(p *packet.Packet, symbolID uint16) {
	f := &packet.FEC{
		Scheme:            w.config.Scheme,
		BlockNumber:       w.curBlock,
		SymbolID:          symbolID,
		SourceBlockLength: uint16(w.config.SourceBlockLength),
		BlockLength:       uint16(w.config.SourceBlockLength + w.config.RepairBlockLength),
	}

	payload := make([]byte, PayloadHeaderSize+len(p.RTP.Payload))
	encodeHeader(payload, f)
	copy(payload[PayloadHeaderSize:], p.RTP.Payload)

	p.RTP.Payload = payload
	p.FEC = f
}

func (w *Writer) emitRepair() error {
	symbolSize := len(w.symbols[0])
	parity := make([][]byte, w.config.RepairBlockLength)
	for i := range parity {
		parity[i] = make([]byte, symbolSize)
	}
	if err := w.encoder.Encode(w.symbols, parity); err != nil {
		return err
	}

	for i, symbol := range parity {
		rp := &packet.Packet{}
		rp.AddFlags(packet.FlagRTP | packet.FlagRepair)
		rp.RTP = &packet.RTP{
			SourceID:    w.sourceID,
			SeqNum:      w.repairSeqnum,
			Timestamp:   w.blockStartTS,
			PayloadType: w.config.RepairPayloadType,
			Payload:     symbol,
		}
		w.repairSeqnum++

		w.annotate(rp, uint16(w.config.SourceBlockLength+i))
		if err := rtp.Compose(rp); err != nil {
			return err
		}
		if err := w.repairOut.Write(rp); err != nil {
			return err
		}
	}

	w.blocksEmitted++
	logrus.WithFields(logrus.Fields{
		"block":  w.curBlock,
		"blocks": w.blocksEmitted,
	}).Debug("fec writer: block emitted")
	return nil
}
