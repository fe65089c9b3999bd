package packet

import (
	"github.com/sirupsen/logrus"
)

// Router demultiplexes one session's packet stream into per-role queues.
//
// A route is selected by packet flags (source audio vs repair) and, once
// a route has seen its first packet, it is locked to that packet's RTP
// source id: packets for the same role but a different source are
// rejected with ErrNoRoute so the caller can spawn another session for
// them. A change of payload type alone does not reject a packet.
//
// Router is not safe for concurrent use.
type Router struct {
	routes []routerEntry
}

type routerEntry struct {
	writer Writer
	flags  Flags

	locked      bool
	sourceID    uint32
	payloadType uint8
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// AddRoute registers a destination for packets carrying all of the given
// flags. Routes are matched in registration order, most specific first.
func (r *Router) AddRoute(w Writer, flags Flags) {
	r.routes = append(r.routes, routerEntry{writer: w, flags: flags})
	logrus.WithFields(logrus.Fields{
		"flags":  flags,
		"routes": len(r.routes),
	}).Debug("router: route added")
}

// Write routes a packet to the matching queue. ErrNoRoute is returned when
// no route matches or the matching route is locked to another source.
func (r *Router) Write(p *Packet) error {
	for i := range r.routes {
		entry := &r.routes[i]
		if p.Flags()&entry.flags != entry.flags {
			continue
		}
		if p.RTP != nil {
			if !entry.locked {
				entry.locked = true
				entry.sourceID = p.RTP.SourceID
				entry.payloadType = p.RTP.PayloadType
				logrus.WithFields(logrus.Fields{
					"source_id":    p.RTP.SourceID,
					"payload_type": p.RTP.PayloadType,
					"flags":        entry.flags,
				}).Debug("router: route locked to stream")
			} else if entry.sourceID != p.RTP.SourceID {
				return ErrNoRoute
			}
		}
		return entry.writer.Write(p)
	}
	return ErrNoRoute
}

// SourceID returns the source id a route with the given flags is locked
// to. The second result is false when no such route exists or it has not
// seen a packet yet.
func (r *Router) SourceID(flags Flags) (uint32, bool) {
	for i := range r.routes {
		entry := &r.routes[i]
		if entry.flags == flags && entry.locked {
			return entry.sourceID, true
		}
	}
	return 0, false
}
