package audio

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
)

// Depacketizer turns a validated packet stream into a continuous sample
// stream, filling the gaps left by lost packets with silence (or a beep
// tone when configured).
//
// The RTP timestamps of successive output frames form a contiguous run
// modulo 2^32: the depacketizer never jumps its stream position, it only
// fills. Late packets are dropped and surface as FlagDrops on the frame
// being built.
type Depacketizer struct {
	reader  packet.Reader
	decoder FrameDecoder
	spec    SampleSpec
	beep    bool

	timestamp   uint32 // next per-channel sample index to emit
	firstPacket bool

	active *packet.Packet

	validCaptureTS bool
	nextCaptureTS  int64 // capture time corresponding to timestamp

	droppedTotal  uint64
	droppedInRead uint64
	decodedTotal  uint64
	missingTotal  uint64
}

// NewDepacketizer creates a depacketizer pulling from reader and decoding
// with decoder. When beep is set, gaps are filled with an 880 Hz tone
// instead of silence.
func NewDepacketizer(reader packet.Reader, decoder FrameDecoder, spec SampleSpec, beep bool) *Depacketizer {
	logrus.WithFields(logrus.Fields{
		"sample_spec": spec.String(),
		"beep":        beep,
	}).Debug("depacketizer: created")
	return &Depacketizer{
		reader:      reader,
		decoder:     decoder,
		spec:        spec,
		beep:        beep,
		firstPacket: true,
	}
}

// Timestamp returns the stream position of the next sample to emit.
func (d *Depacketizer) Timestamp() uint32 {
	return d.timestamp
}

// Started reports whether the first packet has been seen.
func (d *Depacketizer) Started() bool {
	return !d.firstPacket
}

// Stats returns the total decoded, missing and dropped per-channel sample
// and packet counts.
func (d *Depacketizer) Stats() (decoded, missing, droppedPackets uint64) {
	return d.decodedTotal, d.missingTotal, d.droppedTotal
}

// Read fills the frame, decoding packets where available and synthesizing
// the rest.
func (d *Depacketizer) Read(frame *Frame) error {
	CheckFrame(frame, d.spec)

	samples := frame.Samples()
	ch := d.spec.NumChannels()

	frameStartTS := d.timestamp
	d.droppedInRead = 0

	var decoded, missing int
	pos := 0

	for pos < len(samples) {
		if d.active == nil {
			d.fetchPacket()
		}
		if d.active == nil {
			// Reader drained: synthesize the remainder.
			n := (len(samples) - pos) / ch
			d.fill(samples[pos:], n)
			d.advance(n)
			missing += n
			pos = len(samples)
			break
		}

		dist := packet.TimestampDiff(d.decoder.Position(), d.timestamp)
		switch {
		case dist > 0:
			// Gap before the active packet.
			n := int(dist)
			if limit := (len(samples) - pos) / ch; n > limit {
				n = limit
			}
			d.fill(samples[pos:], n)
			d.advance(n)
			missing += n
			pos += n * ch

		case dist < 0:
			// Packet overlaps already-emitted samples.
			if d.decoder.Shift(int(-dist)) == 0 {
				d.finishPacket()
			}

		default:
			n := d.decoder.Read(samples[pos:])
			if n == 0 {
				d.finishPacket()
				continue
			}
			d.advance(n)
			decoded += n
			pos += n * ch
			if d.decoder.Available() == 0 {
				d.finishPacket()
			}
		}
	}

	d.decodedTotal += uint64(decoded)
	d.missingTotal += uint64(missing)

	if decoded > 0 {
		frame.SetFlags(FlagNonblank)
	}
	if missing > 0 {
		frame.SetFlags(FlagIncomplete)
	}
	if d.droppedInRead > 0 {
		frame.SetFlags(FlagDrops)
	}

	if d.validCaptureTS {
		emitted := int64(int32(d.timestamp - frameStartTS))
		cts := d.nextCaptureTS - int64(d.spec.SamplesPerChanToDuration(emitted))
		if cts >= 0 {
			frame.SetCaptureTimestamp(cts)
		}
	}
	return nil
}

// fetchPacket pulls packets from the reader until it finds one whose end
// lies beyond the current stream position, starting the decoder on it.
func (d *Depacketizer) fetchPacket() {
	for {
		p, err := d.reader.Read()
		if err != nil || p == nil {
			return
		}

		if err := d.decoder.Begin(p.RTP.Timestamp, p.RTP.Payload); err != nil {
			d.droppedTotal++
			d.droppedInRead++
			logrus.WithFields(logrus.Fields{
				"seqnum": p.RTP.SeqNum,
				"error":  err.Error(),
			}).Debug("depacketizer: undecodable packet dropped")
			continue
		}

		if d.firstPacket {
			d.timestamp = p.RTP.Timestamp
			d.firstPacket = false
			logrus.WithFields(logrus.Fields{
				"timestamp": d.timestamp,
				"seqnum":    p.RTP.SeqNum,
			}).Info("depacketizer: stream started")
		}

		end := p.RTP.Timestamp + uint32(d.decoder.Available())
		if packet.TimestampDiff(end, d.timestamp) <= 0 {
			d.decoder.End()
			d.droppedTotal++
			d.droppedInRead++
			logrus.WithFields(logrus.Fields{
				"seqnum":    p.RTP.SeqNum,
				"packet_ts": p.RTP.Timestamp,
				"stream_ts": d.timestamp,
			}).Debug("depacketizer: late packet dropped")
			continue
		}

		if p.RTP.CaptureTS != 0 {
			offset := packet.TimestampDiff(d.timestamp, p.RTP.Timestamp)
			d.nextCaptureTS = p.RTP.CaptureTS + int64(d.spec.RTPDeltaToDuration(offset))
			d.validCaptureTS = true
		}

		d.active = p
		return
	}
}

// advance moves the stream position, keeping the capture-time anchor in
// sync so it always refers to the next sample to emit.
func (d *Depacketizer) advance(n int) {
	d.timestamp += uint32(n)
	if d.validCaptureTS {
		d.nextCaptureTS += int64(d.spec.SamplesPerChanToDuration(int64(n)))
	}
}

func (d *Depacketizer) finishPacket() {
	d.decoder.End()
	d.active = nil
}

// fill writes n per-channel samples of silence or beep tone.
func (d *Depacketizer) fill(dst []float32, n int) {
	ch := d.spec.NumChannels()
	if !d.beep {
		for i := 0; i < n*ch; i++ {
			dst[i] = 0
		}
		return
	}
	rate := float64(d.spec.SampleRate())
	for i := 0; i < n; i++ {
		s := float32(math.Sin(2 * math.Pi * 880 / rate * float64(i)))
		for c := 0; c < ch; c++ {
			dst[i*ch+c] = s
		}
	}
}
