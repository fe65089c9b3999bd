// Package pipeline assembles the per-peer media chains and drives them
// from a cooperative scheduling loop.
//
// A receiver owns slots; each slot owns up to three endpoints (source,
// repair, control) and a session group that builds one ReceiverSession
// per remote sender on the fly. A sender mirrors this with one
// SenderSession per slot, fanned out from a single written stream.
//
// The Loop interleaves real-time frame processing with administrative
// tasks (slot management, metric queries) submitted from arbitrary
// goroutines, keeping tasks away from a configurable guard interval
// around each frame deadline.
package pipeline
