package render

import (
	"errors"
	"fmt"
)

const minRingBlocks = 16

var ErrRingExhausted = errors.New("render: uniform ring exhausted")

// UniformRange is one claimed region of a frame's uniform buffer.
type UniformRange struct {
	Offset uint64
	Size   uint64
}

// UniformRing hands out aligned uniform regions for one in-flight frame.
// It is reset when the frame's fence has signaled and sized up front so a
// frame never grows the buffer between claims.
type UniformRing struct {
	blockSize uint64
	stride    uint64
	capacity  int
	next      int
}

// NewUniformRing returns a ring for blocks of blockSize bytes whose offsets
// are multiples of align (the device's minUniformBufferOffsetAlignment).
func NewUniformRing(blockSize, align uint64) *UniformRing {
	return &UniformRing{
		blockSize: blockSize,
		stride:    alignUp(blockSize, align),
	}
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

func (r *UniformRing) Reset() { r.next = 0 }

// Reserve ensures room for n claims. It reports whether the backing buffer
// has to be reallocated to BufferSize bytes.
func (r *UniformRing) Reserve(n int) bool {
	if n <= r.capacity {
		return false
	}
	c := r.capacity
	if c < minRingBlocks {
		c = minRingBlocks
	}
	for c < n {
		c *= 2
	}
	r.capacity = c
	return true
}

func (r *UniformRing) Claim() (UniformRange, error) {
	if r.next >= r.capacity {
		return UniformRange{}, fmt.Errorf("claim %d of %d: %w", r.next+1, r.capacity, ErrRingExhausted)
	}
	off := uint64(r.next) * r.stride
	r.next++
	return UniformRange{Offset: off, Size: r.blockSize}, nil
}

func (r *UniformRing) Capacity() int  { return r.capacity }
func (r *UniformRing) Claimed() int   { return r.next }
func (r *UniformRing) Stride() uint64 { return r.stride }

func (r *UniformRing) BufferSize() uint64 {
	return uint64(r.capacity) * r.stride
}
