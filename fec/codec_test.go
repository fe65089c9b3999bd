package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamkit/packet"
)

func makeSymbols(n, size int, seed byte) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, size)
		for j := range out[i] {
			out[i][j] = seed + byte(i*size+j)
		}
	}
	return out
}

func cloneSymbols(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, s := range in {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

func TestSchemeFactoryErrors(t *testing.T) {
	_, err := NewBlockEncoder(packet.FECSchemeNone, 4, 2)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = NewBlockEncoder(packet.FECSchemeRS8M, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBlockDecoder(packet.FECSchemeLDPC, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRS8MRepairsUpToParityCount(t *testing.T) {
	const sourceN, repairN, size = 4, 2, 8

	enc, err := NewBlockEncoder(packet.FECSchemeRS8M, sourceN, repairN)
	require.NoError(t, err)

	source := makeSymbols(sourceN, size, 1)
	parity := make([][]byte, repairN)
	for i := range parity {
		parity[i] = make([]byte, size)
	}
	require.NoError(t, enc.Encode(source, parity))

	symbols := append(cloneSymbols(source), cloneSymbols(parity)...)
	original1 := append([]byte(nil), symbols[1]...)
	original3 := append([]byte(nil), symbols[3]...)
	symbols[1] = nil
	symbols[3] = nil

	dec, err := NewBlockDecoder(packet.FECSchemeRS8M, sourceN, repairN)
	require.NoError(t, err)
	require.NoError(t, dec.Repair(symbols, sourceN))

	assert.Equal(t, original1, symbols[1])
	assert.Equal(t, original3, symbols[3])
}

func TestRS8MRejectsWrongShardCount(t *testing.T) {
	enc, err := NewBlockEncoder(packet.FECSchemeRS8M, 4, 2)
	require.NoError(t, err)

	err = enc.Encode(makeSymbols(3, 8, 0), makeSymbols(2, 8, 0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	dec, err := NewBlockDecoder(packet.FECSchemeRS8M, 4, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, dec.Repair(makeSymbols(5, 8, 0), 4), ErrInvalidConfig)
}

func TestLDPCEncodeIsDeterministic(t *testing.T) {
	const sourceN, repairN, size = 4, 3, 8

	source := makeSymbols(sourceN, size, 7)

	parityA := makeSymbols(repairN, size, 0)
	parityB := makeSymbols(repairN, size, 0)

	encA, err := NewBlockEncoder(packet.FECSchemeLDPC, sourceN, repairN)
	require.NoError(t, err)
	encB, err := NewBlockEncoder(packet.FECSchemeLDPC, sourceN, repairN)
	require.NoError(t, err)

	require.NoError(t, encA.Encode(source, parityA))
	require.NoError(t, encB.Encode(source, parityB))
	assert.Equal(t, parityA, parityB, "sender and receiver must derive one matrix")
}

func TestLDPCRepairsSingleLoss(t *testing.T) {
	const sourceN, repairN, size = 4, 3, 8

	enc, err := NewBlockEncoder(packet.FECSchemeLDPC, sourceN, repairN)
	require.NoError(t, err)

	source := makeSymbols(sourceN, size, 1)
	parity := make([][]byte, repairN)
	for i := range parity {
		parity[i] = make([]byte, size)
	}
	require.NoError(t, enc.Encode(source, parity))

	for lost := 0; lost < sourceN; lost++ {
		symbols := append(cloneSymbols(source), cloneSymbols(parity)...)
		original := append([]byte(nil), symbols[lost]...)
		symbols[lost] = nil

		dec, err := NewBlockDecoder(packet.FECSchemeLDPC, sourceN, repairN)
		require.NoError(t, err)
		require.NoError(t, dec.Repair(symbols, sourceN), "loss of symbol %d", lost)
		assert.Equal(t, original, symbols[lost])
	}
}

func TestLDPCUnrecoverableBlock(t *testing.T) {
	const sourceN, repairN, size = 4, 3, 8

	enc, err := NewBlockEncoder(packet.FECSchemeLDPC, sourceN, repairN)
	require.NoError(t, err)

	source := makeSymbols(sourceN, size, 1)
	parity := make([][]byte, repairN)
	for i := range parity {
		parity[i] = make([]byte, size)
	}
	require.NoError(t, enc.Encode(source, parity))

	// More losses than parity symbols cannot be repaired.
	symbols := make([][]byte, sourceN+repairN)
	copy(symbols[sourceN:], cloneSymbols(parity))

	dec, err := NewBlockDecoder(packet.FECSchemeLDPC, sourceN, repairN)
	require.NoError(t, err)
	assert.ErrorIs(t, dec.Repair(symbols, sourceN), ErrDecodeFailed)
}

func TestLDPCEmptyBlock(t *testing.T) {
	dec, err := NewBlockDecoder(packet.FECSchemeLDPC, 4, 3)
	require.NoError(t, err)

	assert.ErrorIs(t, dec.Repair(make([][]byte, 7), 4), ErrDecodeFailed)
}
