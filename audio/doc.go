// Package audio implements the frame-level audio processing stages of the
// streamkit pipeline.
//
// The package is built around two small interfaces, Reader and Writer, that
// move Frame values through a chain of processing stages. Receiver pipelines
// are pull-based chains of Readers (depacketizer, channel mapper, resampler,
// latency monitor, watchdog, mixer); sender pipelines are push-based chains
// of Writers (fanout, channel mapper, resampler, packetizer).
//
// # Sample model
//
// Samples are float32 values in the range [-1, +1], interleaved by channel
// in ascending channel-mask bit order. A SampleSpec couples a sample rate
// with a ChannelSet and provides saturating conversions between duration,
// sample counts and RTP timestamp deltas.
//
// # Frames
//
// A Frame is a thin descriptor over borrowed sample storage. Frames carry
// flags describing how they were produced (FlagNonblank, FlagIncomplete,
// FlagDrops) and an optional capture timestamp in Unix nanoseconds. Sample
// buffers are owned by the caller and must not be retained past the call
// that received them.
//
// # Payload formats
//
// Encoded packet payloads are handled through the FrameEncoder and
// FrameDecoder interfaces. The built-in PCM codec covers the mandatory
// L16 formats; an Opus decoder backed by pion/opus can be registered for
// dynamic payload types. See Registry.
package audio
