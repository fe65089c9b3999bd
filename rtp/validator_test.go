package rtp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

type stubReader struct {
	packets []*packet.Packet
	err     error
}

func (r *stubReader) Read() (*packet.Packet, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.packets) == 0 {
		return nil, nil
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, nil
}

func (r *stubReader) push(p *packet.Packet) {
	r.packets = append(r.packets, p)
}

func streamPacket(source uint32, pt uint8, seq uint16, ts uint32) *packet.Packet {
	p := &packet.Packet{RTP: &packet.RTP{
		SourceID:    source,
		PayloadType: pt,
		SeqNum:      seq,
		Timestamp:   ts,
	}}
	p.AddFlags(packet.FlagRTP)
	return p
}

func newTestValidator(src packet.Reader) *Validator {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	return NewValidator(src, DefaultValidatorConfig(), spec)
}

func TestValidatorAcceptsContiguousStream(t *testing.T) {
	src := &stubReader{}
	for seq := uint16(1); seq <= 3; seq++ {
		src.push(streamPacket(42, 11, seq, uint32(seq)*100))
	}

	v := newTestValidator(src)
	for seq := uint16(1); seq <= 3; seq++ {
		p, err := v.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, seq, p.RTP.SeqNum)
	}

	p, err := v.Read()
	require.NoError(t, err)
	assert.Nil(t, p, "drained upstream")
	assert.Zero(t, v.Dropped())
}

func TestValidatorDropsSourceChange(t *testing.T) {
	src := &stubReader{}
	src.push(streamPacket(42, 11, 1, 100))
	src.push(streamPacket(43, 11, 2, 200))
	src.push(streamPacket(42, 11, 3, 300))

	v := newTestValidator(src)

	p, err := v.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), p.RTP.SeqNum)

	p, err = v.Read()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint16(3), p.RTP.SeqNum, "intruder stream skipped")
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestValidatorDropsPayloadTypeChange(t *testing.T) {
	src := &stubReader{}
	src.push(streamPacket(42, 11, 1, 100))
	src.push(streamPacket(42, 10, 2, 200))

	v := newTestValidator(src)

	_, err := v.Read()
	require.NoError(t, err)

	p, err := v.Read()
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestValidatorSeqnumJump(t *testing.T) {
	src := &stubReader{}
	src.push(streamPacket(42, 11, 1, 100))
	src.push(streamPacket(42, 11, 102, 200))
	src.push(streamPacket(42, 11, 101, 300))

	v := newTestValidator(src)

	_, err := v.Read()
	require.NoError(t, err)

	p, err := v.Read()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint16(101), p.RTP.SeqNum, "jump of exactly the limit passes")
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestValidatorTimestampJump(t *testing.T) {
	src := &stubReader{}
	src.push(streamPacket(42, 11, 1, 0))
	src.push(streamPacket(42, 11, 2, 44101))
	src.push(streamPacket(42, 11, 3, 44100))

	v := newTestValidator(src)

	_, err := v.Read()
	require.NoError(t, err)

	p, err := v.Read()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint16(3), p.RTP.SeqNum, "one second at 44100 Hz is the limit")
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestValidatorCaptureTimestampRules(t *testing.T) {
	first := streamPacket(42, 11, 1, 100)
	first.RTP.CaptureTS = 1000

	negative := streamPacket(42, 11, 2, 200)
	negative.RTP.CaptureTS = -5

	unknown := streamPacket(42, 11, 3, 300)

	ok := streamPacket(42, 11, 4, 400)
	ok.RTP.CaptureTS = 2000

	src := &stubReader{}
	src.push(first)
	src.push(negative)
	src.push(unknown)
	src.push(ok)

	v := newTestValidator(src)

	p, err := v.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), p.RTP.SeqNum)

	p, err = v.Read()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint16(4), p.RTP.SeqNum, "negative and vanished capture ts dropped")
	assert.Equal(t, uint64(2), v.Dropped())
}

func TestValidatorOldPacketDoesNotResetState(t *testing.T) {
	src := &stubReader{}
	src.push(streamPacket(42, 11, 50, 5000))
	src.push(streamPacket(42, 11, 10, 1000))
	src.push(streamPacket(42, 11, 51, 5100))

	v := newTestValidator(src)

	for _, want := range []uint16{50, 10, 51} {
		p, err := v.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, want, p.RTP.SeqNum)
	}
	assert.Zero(t, v.Dropped(), "reordered packets inside the window pass")
}

func TestValidatorDropsNonRTP(t *testing.T) {
	src := &stubReader{}
	src.push(&packet.Packet{})

	v := newTestValidator(src)
	p, err := v.Read()
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestValidatorPropagatesReadError(t *testing.T) {
	boom := errors.New("transport down")
	v := newTestValidator(&stubReader{err: boom})

	_, err := v.Read()
	assert.ErrorIs(t, err, boom)
}
