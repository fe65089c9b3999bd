package packet

import (
	"container/list"

	"github.com/sirupsen/logrus"
)

// SortedQueue is the per-stream jitter queue: it accepts RTP packets in
// arbitrary arrival order and exposes them in modular-ascending sequence
// number order.
//
// The queue tracks the position of the last packet handed out; packets at
// or before that position are dropped as late, and duplicates of queued
// packets are dropped. When the queue exceeds its maximum size, the oldest
// packet is evicted.
//
// SortedQueue is not safe for concurrent use; it lives inside a session
// and is only touched under the pipeline processing lock.
type SortedQueue struct {
	packets *list.List
	maxSize int

	popped     bool
	lastPopped uint16

	lateDropped      uint64
	duplicateDropped uint64
	overflowDropped  uint64
}

// NewSortedQueue creates a jitter queue. maxSize zero means unbounded.
func NewSortedQueue(maxSize int) *SortedQueue {
	return &SortedQueue{
		packets: list.New(),
		maxSize: maxSize,
	}
}

// Len returns the number of queued packets.
func (q *SortedQueue) Len() int {
	return q.packets.Len()
}

// Write inserts a packet at its ordered position. Late and duplicate
// packets are silently dropped (counted). Packets without an RTP view are
// ignored.
func (q *SortedQueue) Write(p *Packet) error {
	if p == nil || p.RTP == nil {
		return nil
	}

	if q.popped && SeqnumDiff(p.RTP.SeqNum, q.lastPopped) <= 0 {
		q.lateDropped++
		logrus.WithFields(logrus.Fields{
			"seqnum":      p.RTP.SeqNum,
			"last_popped": q.lastPopped,
		}).Debug("sorted queue: dropping late packet")
		return nil
	}

	// Scan from the back: packets usually arrive near-ordered.
	elem := q.packets.Back()
	for elem != nil {
		cmp := Compare(p, elem.Value.(*Packet))
		if cmp == 0 {
			q.duplicateDropped++
			logrus.WithFields(logrus.Fields{
				"seqnum": p.RTP.SeqNum,
			}).Debug("sorted queue: dropping duplicate packet")
			return nil
		}
		if cmp > 0 {
			break
		}
		elem = elem.Prev()
	}

	if elem == nil {
		q.packets.PushFront(p)
	} else {
		q.packets.InsertAfter(p, elem)
	}

	if q.maxSize > 0 && q.packets.Len() > q.maxSize {
		oldest := q.packets.Front()
		q.packets.Remove(oldest)
		q.overflowDropped++
		logrus.WithFields(logrus.Fields{
			"seqnum":   oldest.Value.(*Packet).RTP.SeqNum,
			"max_size": q.maxSize,
		}).Debug("sorted queue: overflow, evicting oldest packet")
	}
	return nil
}

// Read pops the packet with the smallest sequence number, or (nil, nil)
// when the queue is empty.
func (q *SortedQueue) Read() (*Packet, error) {
	front := q.packets.Front()
	if front == nil {
		return nil, nil
	}
	q.packets.Remove(front)
	p := front.Value.(*Packet)
	q.popped = true
	q.lastPopped = p.RTP.SeqNum
	return p, nil
}

// Head returns the packet with the smallest sequence number without
// removing it, or nil when the queue is empty.
func (q *SortedQueue) Head() *Packet {
	front := q.packets.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*Packet)
}

// Tail returns the packet with the largest sequence number without
// removing it, or nil when the queue is empty.
func (q *SortedQueue) Tail() *Packet {
	back := q.packets.Back()
	if back == nil {
		return nil
	}
	return back.Value.(*Packet)
}

// Each calls fn for every queued packet in ascending order until fn
// returns false.
func (q *SortedQueue) Each(fn func(*Packet) bool) {
	for elem := q.packets.Front(); elem != nil; elem = elem.Next() {
		if !fn(elem.Value.(*Packet)) {
			return
		}
	}
}

// Dropped returns the counts of late, duplicate and overflow drops.
func (q *SortedQueue) Dropped() (late, duplicate, overflow uint64) {
	return q.lateDropped, q.duplicateDropped, q.overflowDropped
}
