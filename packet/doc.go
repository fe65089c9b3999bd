// Package packet defines the packet model shared by the streamkit sender
// and receiver pipelines.
//
// A Packet is a set of parsed views (UDP, RTP, FEC, RTCP) over a single
// byte slice. Receiver pipelines parse the byte slice into views; sender
// pipelines populate views and then compose them into the byte slice.
// The FlagComposed flag marks the byte slice as authoritative.
//
// The package also provides the ordered jitter queue (SortedQueue), the
// per-stream Router, a thread-safe ConcurrentQueue for handing packets
// from the network thread to the pipeline, fixed-size pools with
// saturating allocation, and NTP timestamp conversions.
package packet
