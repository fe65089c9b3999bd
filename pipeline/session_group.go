package pipeline

import (
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtcp"
)

// SessionGroup owns the receiver sessions of one slot, spawning one per
// remote sender on demand, plus the slot's RTCP session.
type SessionGroup struct {
	config   ReceiverConfig
	registry *audio.Registry
	scheme   packet.FECScheme
	mixer    *audio.Mixer

	sessions []*ReceiverSession

	control *rtcp.Session

	ignoredPackets uint64
}

// NewSessionGroup creates an empty group feeding the given mixer.
func NewSessionGroup(config ReceiverConfig, registry *audio.Registry, scheme packet.FECScheme, mixer *audio.Mixer) *SessionGroup {
	return &SessionGroup{
		config:   config,
		registry: registry,
		scheme:   scheme,
		mixer:    mixer,
	}
}

// EnableControl creates the group's RTCP session writing compound
// packets to out.
func (g *SessionGroup) EnableControl(out packet.Writer) error {
	config := g.config.Control
	if config.SourceID == 0 {
		config.SourceID = rand.Uint32()
	}
	control, err := rtcp.NewSession(config, out, nil, g)
	if err != nil {
		return err
	}
	g.control = control
	return nil
}

// NumSessions returns the number of live sessions.
func (g *SessionGroup) NumSessions() int {
	return len(g.sessions)
}

// Route delivers one incoming packet, creating a session when a media
// packet matches none. Repair packets for an unknown stream are held
// back by returning ErrNoRoute; the matching session appears once the
// first source packet arrives.
func (g *SessionGroup) Route(p *packet.Packet, now int64) error {
	if p.HasFlags(packet.FlagControl) {
		if g.control == nil {
			g.ignoredPackets++
			return nil
		}
		return g.control.ProcessPacket(p)
	}

	for _, s := range g.sessions {
		err := s.Route(p, now)
		if err == nil {
			return nil
		}
		if !errors.Is(err, packet.ErrNoRoute) {
			return err
		}
	}

	if p.HasFlags(packet.FlagRepair) {
		return packet.ErrNoRoute
	}
	return g.createSession(p, now)
}

func (g *SessionGroup) createSession(p *packet.Packet, now int64) error {
	if p.RTP == nil {
		g.ignoredPackets++
		return nil
	}

	format, err := g.registry.Lookup(p.RTP.PayloadType)
	if err != nil {
		g.ignoredPackets++
		logrus.WithFields(logrus.Fields{
			"payload_type": p.RTP.PayloadType,
			"source_id":    p.RTP.SourceID,
		}).Warn("session group: dropping packet with unknown payload type")
		return nil
	}

	session, err := NewReceiverSession(g.config, format, g.scheme)
	if err != nil {
		return err
	}
	g.sessions = append(g.sessions, session)
	g.mixer.AddInput(session)
	logrus.WithFields(logrus.Fields{
		"source_id":    p.RTP.SourceID,
		"payload_type": p.RTP.PayloadType,
		"sessions":     len(g.sessions),
	}).Info("session group: session created")

	return session.Route(p, now)
}

// Refresh advances the control session and reaps dead media sessions.
// now is Unix nanoseconds.
func (g *SessionGroup) Refresh(now int64) error {
	kept := g.sessions[:0]
	for _, s := range g.sessions {
		if s.Alive() {
			kept = append(kept, s)
			continue
		}
		g.mixer.RemoveInput(s)
		id, _ := s.SourceID()
		logrus.WithFields(logrus.Fields{
			"source_id": id,
			"sessions":  len(g.sessions) - 1,
		}).Info("session group: session ended")
	}
	g.sessions = kept

	if g.control != nil {
		return g.control.Advance(now)
	}
	return nil
}

// Close detaches every session from the mixer. The group must not be
// used afterwards.
func (g *SessionGroup) Close() {
	for _, s := range g.sessions {
		g.mixer.RemoveInput(s)
	}
	g.sessions = nil
}

// Reclock passes the playback time of the last mixed frame to every
// session's latency monitor.
func (g *SessionGroup) Reclock(playbackTS int64) {
	for _, s := range g.sessions {
		s.Reclock(playbackTS)
	}
}

// OnSenderReport dispatches a sender report mapping to the session
// carrying the reported stream.
func (g *SessionGroup) OnSenderReport(remoteSourceID uint32, captureTS int64, rtpTS uint32) {
	for _, s := range g.sessions {
		if id, ok := s.SourceID(); ok && id == remoteSourceID {
			s.OnSenderReport(captureTS, rtpTS)
			return
		}
	}
}

// ReceptionInfo collects one reception report block per session.
func (g *SessionGroup) ReceptionInfo() []rtcp.ReceptionInfo {
	infos := make([]rtcp.ReceptionInfo, 0, len(g.sessions))
	for _, s := range g.sessions {
		infos = append(infos, s.ReceptionInfo())
	}
	return infos
}

// Metrics returns the per-session metrics plus the control counters.
func (g *SessionGroup) Metrics() ([]SessionMetrics, ControlMetrics) {
	sessions := make([]SessionMetrics, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s.Metrics())
	}
	var control ControlMetrics
	if g.control != nil {
		control.ReportsSent, control.ReportsReceived, control.ParseErrors = g.control.Stats()
	}
	return sessions, control
}
