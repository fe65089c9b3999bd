package audio

import (
	"encoding/binary"
	"fmt"
)

// NewPCMFormat creates an L16 (big-endian signed 16-bit) format for the
// given payload type and sample spec.
func NewPCMFormat(pt uint8, spec SampleSpec) *Format {
	ch := spec.NumChannels()
	return &Format{
		PayloadType: pt,
		Spec:        spec,
		NewEncoder: func() FrameEncoder {
			return newPCMEncoder(ch)
		},
		NewDecoder: func() FrameDecoder {
			return newPCMDecoder(ch)
		},
		payloadDuration: func(payloadLen int) uint32 {
			return uint32(payloadLen / 2 / ch)
		},
		payloadSize: func(samples int) int {
			return samples * 2 * ch
		},
	}
}

// pcmDecoder decodes big-endian int16 payloads into float32 samples.
type pcmDecoder struct {
	channels int

	active  bool
	payload []byte
	startTS uint32
	read    int // per-channel samples consumed
	total   int // per-channel samples in payload
}

func newPCMDecoder(channels int) FrameDecoder {
	return &pcmDecoder{channels: channels}
}

func (d *pcmDecoder) Begin(rtpTS uint32, payload []byte) error {
	if d.active {
		return fmt.Errorf("%w: decoder already active", ErrInvalidState)
	}
	d.active = true
	d.payload = payload
	d.startTS = rtpTS
	d.read = 0
	d.total = len(payload) / 2 / d.channels
	return nil
}

func (d *pcmDecoder) Position() uint32 {
	return d.startTS + uint32(d.read)
}

func (d *pcmDecoder) Available() int {
	if !d.active {
		return 0
	}
	return d.total - d.read
}

func (d *pcmDecoder) Read(dst []float32) int {
	n := len(dst) / d.channels
	if avail := d.Available(); n > avail {
		n = avail
	}
	base := d.read * d.channels
	for i := 0; i < n*d.channels; i++ {
		raw := int16(binary.BigEndian.Uint16(d.payload[(base+i)*2:]))
		dst[i] = float32(raw) / 32768
	}
	d.read += n
	return n
}

func (d *pcmDecoder) Shift(n int) int {
	if avail := d.Available(); n > avail {
		n = avail
	}
	d.read += n
	return n
}

func (d *pcmDecoder) End() {
	d.active = false
	d.payload = nil
}

// pcmEncoder encodes float32 samples into big-endian int16 payloads.
type pcmEncoder struct {
	channels int

	active  bool
	dst     []byte
	written int // per-channel samples written
}

func newPCMEncoder(channels int) FrameEncoder {
	return &pcmEncoder{channels: channels}
}

func (e *pcmEncoder) Begin(dst []byte) {
	e.active = true
	e.dst = dst
	e.written = 0
}

func (e *pcmEncoder) Write(samples []float32) int {
	if !e.active {
		return 0
	}
	n := len(samples) / e.channels
	capacity := len(e.dst)/2/e.channels - e.written
	if n > capacity {
		n = capacity
	}
	base := e.written * e.channels
	for i := 0; i < n*e.channels; i++ {
		binary.BigEndian.PutUint16(e.dst[(base+i)*2:], uint16(clampS16(samples[i])))
	}
	e.written += n
	return n
}

func (e *pcmEncoder) End() int {
	e.active = false
	return e.written * 2 * e.channels
}

func clampS16(s float32) int16 {
	v := s * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
