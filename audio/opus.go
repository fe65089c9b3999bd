package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// NewOpusFormat creates a decode-only Opus format under a dynamic payload
// type. The decoder is backed by pion/opus, which produces S16LE PCM; the
// stream is treated as 48 kHz with the given channel set.
//
// pion/opus has no encoder, so senders cannot use this format.
func NewOpusFormat(pt uint8, channels ChannelSet) *Format {
	spec := NewSampleSpec(48000, channels)
	ch := channels.NumChannels()
	return &Format{
		PayloadType: pt,
		Spec:        spec,
		NewDecoder: func() FrameDecoder {
			return newOpusDecoder(ch)
		},
		payloadDuration: func(payloadLen int) uint32 {
			// Opus payloads are variable-rate; the populator falls back
			// to the 20ms default frame until the decoder reports the
			// real count.
			return 48000 / 50
		},
	}
}

// RegisterOpus registers a decode-only Opus format under a dynamic
// payload type.
func (r *Registry) RegisterOpus(pt uint8, channels ChannelSet) error {
	return r.Register(NewOpusFormat(pt, channels))
}

// opusDecoder adapts pion/opus to the FrameDecoder interface. Each
// payload is decoded fully at Begin and served from an internal PCM
// buffer.
type opusDecoder struct {
	decoder  opus.Decoder
	channels int

	active  bool
	startTS uint32
	pcm     []float32
	read    int // per-channel samples consumed

	// Room for one 120ms fullband stereo frame of S16LE.
	scratch []byte
}

func newOpusDecoder(channels int) FrameDecoder {
	return &opusDecoder{
		decoder:  opus.NewDecoder(),
		channels: channels,
		scratch:  make([]byte, 48000/1000*120*2*2),
	}
}

func (d *opusDecoder) Begin(rtpTS uint32, payload []byte) error {
	if d.active {
		return fmt.Errorf("%w: decoder already active", ErrInvalidState)
	}

	bandwidth, isStereo, err := d.decoder.Decode(payload, d.scratch)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"payload_size": len(payload),
			"error":        err.Error(),
		}).Debug("opus decoder: decode failed")
		return fmt.Errorf("opus decode failed: %w", err)
	}

	decodedCh := 1
	if isStereo {
		decodedCh = 2
	}
	_ = bandwidth

	// pion/opus writes S16LE; convert and adapt the channel count to the
	// session's spec by duplication or averaging.
	frames := len(d.scratch) / 2 / decodedCh
	d.pcm = d.pcm[:0]
	for i := 0; i < frames; i++ {
		if d.channels < decodedCh {
			var sum float32
			for src := 0; src < decodedCh; src++ {
				off := (i*decodedCh + src) * 2
				sum += float32(int16(uint16(d.scratch[off])|uint16(d.scratch[off+1])<<8)) / 32768
			}
			d.pcm = append(d.pcm, sum/float32(decodedCh))
			continue
		}
		for ch := 0; ch < d.channels; ch++ {
			src := ch
			if src >= decodedCh {
				src = decodedCh - 1
			}
			off := (i*decodedCh + src) * 2
			raw := int16(uint16(d.scratch[off]) | uint16(d.scratch[off+1])<<8)
			d.pcm = append(d.pcm, float32(raw)/32768)
		}
	}

	d.active = true
	d.startTS = rtpTS
	d.read = 0
	return nil
}

func (d *opusDecoder) Position() uint32 {
	return d.startTS + uint32(d.read)
}

func (d *opusDecoder) Available() int {
	if !d.active {
		return 0
	}
	return len(d.pcm)/d.channels - d.read
}

func (d *opusDecoder) Read(dst []float32) int {
	n := len(dst) / d.channels
	if avail := d.Available(); n > avail {
		n = avail
	}
	copy(dst, d.pcm[d.read*d.channels:(d.read+n)*d.channels])
	d.read += n
	return n
}

func (d *opusDecoder) Shift(n int) int {
	if avail := d.Available(); n > avail {
		n = avail
	}
	d.read += n
	return n
}

func (d *opusDecoder) End() {
	d.active = false
}
