package pipeline

import (
	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/rtcp"
)

// SessionMetrics is the observable state of one receiver session.
type SessionMetrics struct {
	SourceID uint32
	Alive    bool

	// Started reports whether the initial latency gate has opened.
	Started bool

	Latency audio.LatencyMonitorMetrics

	QueuedPackets    int
	LateDropped      uint64
	DuplicateDropped uint64
	ValidatorDropped uint64

	Decoded        uint64
	Missing        uint64
	DroppedPackets uint64

	FECRecovered    uint64
	FECFailedBlocks uint64
	FECLateDropped  uint64
}

// ControlMetrics is the observable state of one slot's RTCP session.
type ControlMetrics struct {
	ReportsSent     uint64
	ReportsReceived uint64
	ParseErrors     uint64
}

// ReceiverSlotMetrics aggregates the state of a receiver slot.
type ReceiverSlotMetrics struct {
	Broken   bool
	Sessions []SessionMetrics
	Control  ControlMetrics
}

// SenderSlotMetrics aggregates the state of a sender slot.
type SenderSlotMetrics struct {
	Broken         bool
	SourceID       uint32
	PacketsEmitted uint64
	Control        ControlMetrics

	// RemoteReport is the latest reception report from the receiver,
	// when control endpoints are configured.
	RemoteReport    rtcp.RemoteReport
	HasRemoteReport bool
}
