package packet

import (
	"github.com/sirupsen/logrus"
)

// PacketPool is a fixed-size free list of packets. Allocation is
// saturating: when the pool is empty, Acquire fails with ErrPoolExhausted
// instead of blocking or growing.
//
// The pool is safe for concurrent use.
type PacketPool struct {
	free chan *Packet
}

// NewPacketPool creates a pool holding size packets.
func NewPacketPool(size int) *PacketPool {
	pool := &PacketPool{
		free: make(chan *Packet, size),
	}
	for i := 0; i < size; i++ {
		pool.free <- &Packet{}
	}
	logrus.WithFields(logrus.Fields{
		"size": size,
	}).Debug("packet pool: created")
	return pool
}

// Acquire takes a packet from the pool.
func (pp *PacketPool) Acquire() (*Packet, error) {
	select {
	case p := <-pp.free:
		return p, nil
	default:
		return nil, ErrPoolExhausted
	}
}

// Release resets a packet and returns it to the pool.
func (pp *PacketPool) Release(p *Packet) {
	if p == nil {
		return
	}
	p.Reset()
	select {
	case pp.free <- p:
	default:
		// Foreign packet; let the GC take it.
	}
}

// Free returns the number of available packets.
func (pp *PacketPool) Free() int {
	return len(pp.free)
}

// BufferPool is a fixed-size free list of byte buffers of uniform
// capacity. Acquired buffers have zero length; exhaustion surfaces as
// ErrPoolExhausted.
//
// The pool is safe for concurrent use.
type BufferPool struct {
	free    chan []byte
	bufSize int
}

// NewBufferPool creates a pool of size buffers of bufSize capacity each.
func NewBufferPool(size, bufSize int) *BufferPool {
	pool := &BufferPool{
		free:    make(chan []byte, size),
		bufSize: bufSize,
	}
	for i := 0; i < size; i++ {
		pool.free <- make([]byte, 0, bufSize)
	}
	logrus.WithFields(logrus.Fields{
		"size":     size,
		"buf_size": bufSize,
	}).Debug("buffer pool: created")
	return pool
}

// Acquire takes a zero-length buffer from the pool.
func (bp *BufferPool) Acquire() ([]byte, error) {
	select {
	case b := <-bp.free:
		return b[:0], nil
	default:
		return nil, ErrPoolExhausted
	}
}

// Release returns a buffer to the pool.
func (bp *BufferPool) Release(b []byte) {
	if cap(b) != bp.bufSize {
		return
	}
	select {
	case bp.free <- b[:0]:
	default:
	}
}

// BufferSize returns the capacity of pooled buffers.
func (bp *BufferPool) BufferSize() int {
	return bp.bufSize
}
