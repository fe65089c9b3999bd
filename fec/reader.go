package fec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtp"
)

// ReaderConfig holds the receiver-side FEC tuning.
type ReaderConfig struct {
	// Scheme selects the parity arithmetic. It must match the sender.
	Scheme packet.FECScheme

	// MaxBlocksAhead is how many newer blocks may accumulate before an
	// undecodable block is abandoned and its losses surface as gaps.
	MaxBlocksAhead int
}

// DefaultReaderConfig returns the receiver FEC tuning used when the
// caller does not override it.
func DefaultReaderConfig(scheme packet.FECScheme) ReaderConfig {
	return ReaderConfig{
		Scheme:         scheme,
		MaxBlocksAhead: 2,
	}
}

// blockEntry accumulates the symbols of one block.
type blockEntry struct {
	sourceLen int
	blockLen  int

	// source holds arrived or repaired source packets by symbol id.
	source []*packet.Packet

	// repair holds arrived parity symbols by position.
	repair [][]byte

	nSource int
	nTotal  int

	unrepairable bool
}

// Reader reassembles an ordered source packet stream from a source and a
// repair packet stream.
//
// Packets enter pre-parsed: their FEC views are set and block headers
// already stripped from the payloads. The reader delivers the source
// packets of each block in symbol order, repairing missing ones once the
// block has enough symbols. A block that stays undecodable while
// MaxBlocksAhead newer blocks accumulate is abandoned; its missing
// packets surface downstream as playback gaps.
type Reader struct {
	config       ReaderConfig
	sourceReader packet.Reader
	repairReader packet.Reader

	decoders map[uint32]BlockDecoder

	window map[uint16]*blockEntry

	started    bool
	curBlock   uint16
	deliverPos int
	maxSeen    uint16

	recovered   uint64
	failed      uint64
	lateDropped uint64
}

// NewReader creates a FEC reader pulling from the given source and
// repair streams.
func NewReader(config ReaderConfig, sourceReader, repairReader packet.Reader) (*Reader, error) {
	if config.MaxBlocksAhead <= 0 {
		return nil, fmt.Errorf("%w: max blocks ahead %d", ErrInvalidConfig, config.MaxBlocksAhead)
	}
	if config.Scheme != packet.FECSchemeRS8M && config.Scheme != packet.FECSchemeLDPC {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, config.Scheme)
	}
	logrus.WithFields(logrus.Fields{
		"scheme":           config.Scheme.String(),
		"max_blocks_ahead": config.MaxBlocksAhead,
	}).Info("fec reader: created")
	return &Reader{
		config:       config,
		sourceReader: sourceReader,
		repairReader: repairReader,
		decoders:     make(map[uint32]BlockDecoder),
		window:       make(map[uint16]*blockEntry),
	}, nil
}

// Stats returns the counts of repaired packets, failed blocks, and late
// packets dropped.
func (r *Reader) Stats() (recovered, failedBlocks, lateDropped uint64) {
	return r.recovered, r.failed, r.lateDropped
}

// Read returns the next source packet in symbol order, repairing losses
// when possible. It returns (nil, nil) while waiting for more symbols.
func (r *Reader) Read() (*packet.Packet, error) {
	if err := r.fetch(); err != nil {
		return nil, err
	}

	if !r.started {
		blk, ok := r.firstSourceBlock()
		if !ok {
			return nil, nil
		}
		r.started = true
		r.curBlock = blk
		logrus.WithFields(logrus.Fields{
			"block": blk,
		}).Info("fec reader: stream started")
	}

	for {
		entry, ok := r.window[r.curBlock]
		if !ok {
			if r.windowAhead() > r.config.MaxBlocksAhead {
				// The whole block is lost.
				r.failed++
				r.curBlock++
				r.deliverPos = 0
				continue
			}
			return nil, nil
		}

		if r.deliverPos >= entry.sourceLen {
			delete(r.window, r.curBlock)
			r.curBlock++
			r.deliverPos = 0
			continue
		}

		if p := entry.source[r.deliverPos]; p != nil {
			r.deliverPos++
			return p, nil
		}

		if !entry.unrepairable && entry.nTotal >= entry.sourceLen {
			if err := r.repairBlock(entry); err != nil {
				logrus.WithFields(logrus.Fields{
					"block": r.curBlock,
					"error": err.Error(),
				}).Warn("fec reader: block repair failed")
				entry.unrepairable = true
				r.failed++
			} else if p := entry.source[r.deliverPos]; p != nil {
				r.deliverPos++
				return p, nil
			}
		}

		if r.windowAhead() > r.config.MaxBlocksAhead {
			// Abandon the symbol; the depacketizer fills the gap.
			r.deliverPos++
			continue
		}
		return nil, nil
	}
}

// fetch drains both input streams into the block window.
func (r *Reader) fetch() error {
	for {
		p, err := r.sourceReader.Read()
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		r.accept(p, false)
	}
	for {
		p, err := r.repairReader.Read()
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		r.accept(p, true)
	}
	return nil
}

func (r *Reader) accept(p *packet.Packet, isRepair bool) {
	f := p.FEC
	if f == nil {
		logrus.Debug("fec reader: packet without fec view dropped")
		return
	}

	if r.started && packet.BlknumDiff(f.BlockNumber, r.curBlock) < 0 {
		r.lateDropped++
		return
	}
	if r.started && f.BlockNumber == r.curBlock && !isRepair && int(f.SymbolID) < r.deliverPos {
		r.lateDropped++
		return
	}

	entry, ok := r.window[f.BlockNumber]
	if !ok {
		entry = &blockEntry{
			sourceLen: int(f.SourceBlockLength),
			blockLen:  int(f.BlockLength),
			source:    make([]*packet.Packet, f.SourceBlockLength),
			repair:    make([][]byte, f.BlockLength-f.SourceBlockLength),
		}
		r.window[f.BlockNumber] = entry
	}
	if int(f.SourceBlockLength) != entry.sourceLen || int(f.BlockLength) != entry.blockLen {
		logrus.WithFields(logrus.Fields{
			"block": f.BlockNumber,
		}).Warn("fec reader: inconsistent block geometry, packet dropped")
		return
	}

	if isRepair {
		pos := int(f.SymbolID) - entry.sourceLen
		if pos < 0 || pos >= len(entry.repair) || entry.repair[pos] != nil {
			return
		}
		entry.repair[pos] = f.Payload
	} else {
		if int(f.SymbolID) >= entry.sourceLen || entry.source[f.SymbolID] != nil {
			return
		}
		entry.source[f.SymbolID] = p
		entry.nSource++
	}
	entry.nTotal++

	if r.started && packet.BlknumDiff(f.BlockNumber, r.maxSeen) > 0 || !r.started {
		r.maxSeen = f.BlockNumber
	}
}

func (r *Reader) firstSourceBlock() (uint16, bool) {
	var best uint16
	found := false
	for blk, entry := range r.window {
		if entry.nSource == 0 {
			continue
		}
		if !found || packet.BlknumDiff(blk, best) < 0 {
			best = blk
			found = true
		}
	}
	return best, found
}

func (r *Reader) windowAhead() int {
	return packet.BlknumDiff(r.maxSeen, r.curBlock)
}

// repairBlock reconstructs the missing source packets of entry.
func (r *Reader) repairBlock(entry *blockEntry) error {
	symbols := make([][]byte, entry.blockLen)
	for i, p := range entry.source {
		if p != nil {
			symbols[i] = p.Data
		}
	}
	copy(symbols[entry.sourceLen:], entry.repair)

	decoder, err := r.decoder(entry.sourceLen, entry.blockLen)
	if err != nil {
		return err
	}
	if err := decoder.Repair(symbols, entry.sourceLen); err != nil {
		return err
	}

	for i := 0; i < entry.sourceLen; i++ {
		if entry.source[i] != nil {
			continue
		}
		rp := &packet.Packet{}
		if err := rtp.Parse(rp, symbols[i]); err != nil {
			return fmt.Errorf("%w: repaired symbol %d: %v", ErrDecodeFailed, i, err)
		}
		if err := ParsePacket(rp, r.config.Scheme); err != nil {
			return fmt.Errorf("%w: repaired symbol %d: %v", ErrDecodeFailed, i, err)
		}
		entry.source[i] = rp
		r.recovered++
	}

	logrus.WithFields(logrus.Fields{
		"recovered_total": r.recovered,
	}).Debug("fec reader: block repaired")
	return nil
}

func (r *Reader) decoder(sourceLen, blockLen int) (BlockDecoder, error) {
	key := uint32(sourceLen)<<16 | uint32(blockLen)
	if d, ok := r.decoders[key]; ok {
		return d, nil
	}
	d, err := NewBlockDecoder(r.config.Scheme, sourceLen, blockLen-sourceLen)
	if err != nil {
		return nil, err
	}
	r.decoders[key] = d
	return d, nil
}
