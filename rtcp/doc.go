// Package rtcp exchanges control traffic alongside the media streams.
//
// A sender session periodically emits compound packets of a Sender
// Report plus a minimal SDES (CNAME only); the NTP/RTP pair in the SR
// lets receivers map RTP timestamps to the sender's wall clock. A
// receiver session consumes those SRs, forwards the mapping to the
// session pipeline, and answers with Receiver Reports carrying loss and
// jitter figures.
//
// Compound packet serialization is delegated to pion/rtcp; this package
// owns when reports are emitted and what goes into them.
package rtcp
