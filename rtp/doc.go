// Package rtp implements RTP serialization and the stateful per-session
// packet filters of the streamkit receiver.
//
// Wire encoding and decoding is delegated to pion/rtp; this package maps
// between pion packets and the packet.Packet view model. The FEC block
// header of protected streams is handled by package fec, not here.
//
// The receiver-side filters are:
//
//   - Validator: inter-packet sanity checks (source id, payload type,
//     sequence number and timestamp jumps, negative or vanished capture
//     timestamps)
//   - Populator: fills the derived duration field from the payload size
//   - TimestampInjector: maps RTP timestamps to wall-clock capture
//     timestamps using the mapping learned from RTCP sender reports
package rtp
