// Package fec implements block forward-error-correction over RTP packet
// streams.
//
// The writer groups consecutive source packets into fixed-length blocks
// and derives parity packets for each block; the reader mirrors it with a
// sliding window that restores lost source packets once enough symbols of
// their block have arrived.
//
// Every protected packet carries a fixed-size header at the front of its
// RTP payload identifying the block, the symbol position inside it, and
// the block geometry. The protected symbol of a source packet is its
// entire serialized datagram, so a repaired symbol parses back into a
// complete RTP packet.
//
// Two arithmetics are provided behind one interface: Reed-Solomon over
// GF(2^8) and an XOR staircase code. They differ only in how parity is
// computed and in how many losses a block can absorb.
package fec
