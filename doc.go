// Package streamkit implements a real-time PCM audio streaming toolkit:
// a sender and a receiver exchanging audio over IP networks using RTP,
// forward-error-correction packets, and RTCP control messages.
//
// A Sender encodes written PCM frames into RTP packets, optionally adds
// repair packets, and emits them through its slots' endpoints. A
// Receiver ingests packets from one or more senders, recovers losses,
// absorbs jitter, resamples to the local clock, mixes concurrent
// senders, and produces continuous PCM frames on every Read.
//
// Example:
//
//	ctx := streamkit.NewContext()
//
//	recv, err := streamkit.NewReceiver(ctx, streamkit.DefaultReceiverConfig(
//	    audio.NewSampleSpec(44100, audio.StereoChannelSet())))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer recv.Close()
//
//	slot, err := recv.CreateSlot()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// inbound is where the network loop delivers datagrams for this
//	// endpoint.
//	inbound, err := recv.AddEndpoint(slot, pipeline.InterfaceSource, pipeline.ProtoRTP, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = inbound
//
//	samples := make([]float32, 2*512)
//	for {
//	    if err := recv.Read(samples); err != nil {
//	        break
//	    }
//	    // play samples
//	}
//
// Socket and audio-device I/O are external collaborators: the network
// loop delivers datagrams to the packet writers returned by AddEndpoint
// and forwards the packets a sender slot emits, while the audio device
// clocks Read and Write calls.
package streamkit
