package dynbuf

import (
	"bytes"
	"fmt"
)

// MinCapacity is the smallest backing array a Buffer allocates.
const MinCapacity = 32

// Buffer accumulates bytes until they are consumed from the front. Capacity
// grows by doubling and is never released, so a Buffer reused across many
// framed units settles at a steady size.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	data   []byte // backing array; len(data) is the capacity
	length int    // number of logical bytes at the front of data
}

// Append copies p to the end of the logical region, growing the backing
// array if needed.
func (b *Buffer) Append(p []byte) {
	size := b.length + len(p)

	if len(b.data) < size {
		capacity := len(b.data)
		if capacity < MinCapacity {
			capacity = MinCapacity
		}
		for capacity < size {
			capacity *= 2
		}

		grown := make([]byte, capacity)
		copy(grown, b.data[:b.length])
		b.data = grown
	}

	copy(b.data[b.length:], p)
	b.length = size
}

// Consume drops the first n logical bytes and shifts the rest to offset 0.
// It panics if n is negative or larger than Len.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.length {
		panic(fmt.Sprintf("dynbuf: consume %d bytes out of range [0, %d]", n, b.length))
	}
	copy(b.data, b.data[n:b.length])
	b.length -= n
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Bytes returns the logical region. The slice aliases the buffer and is only
// valid until the next Append, Consume or Reset.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Index returns the offset of the first occurrence of sep in the logical
// region, or -1.
func (b *Buffer) Index(sep []byte) int { return bytes.Index(b.data[:b.length], sep) }

func (b *Buffer) Len() int { return b.length }
func (b *Buffer) Cap() int { return len(b.data) }

// Reset empties the buffer but keeps its capacity.
func (b *Buffer) Reset() { b.length = 0 }
