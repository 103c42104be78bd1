package core

import "pkt.systems/termbridge/schema"

const defaultMaxChunks = schema.DefaultBufferMaxChunks

// chunkBuffer stores terminal output chunks in arrival order, bounded by a
// chunk count. The cap is a chunk count rather than a byte count so appends
// stay cheap with no byte accounting.
type chunkBuffer struct {
	chunks    [][]byte
	maxChunks int
}

// Append adds one chunk, evicting the oldest chunks once the cap is exceeded.
// The data is copied; callers may reuse their slice.
func (b *chunkBuffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	b.chunks = append(b.chunks, chunk)
	maxChunks := b.maxChunks
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	if len(b.chunks) > maxChunks {
		trim := len(b.chunks) - maxChunks
		rest := make([][]byte, len(b.chunks)-trim)
		copy(rest, b.chunks[trim:])
		b.chunks = rest
	}
}

// Len returns the number of buffered chunks.
func (b *chunkBuffer) Len() int {
	return len(b.chunks)
}

// Snapshot returns the buffered chunks oldest first. Chunk slices are shared;
// callers must not mutate them.
func (b *chunkBuffer) Snapshot() [][]byte {
	out := make([][]byte, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Bytes joins all buffered chunks for a full replay.
func (b *chunkBuffer) Bytes() []byte {
	total := 0
	for _, chunk := range b.chunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}

// newChunkBuffer returns a buffer with the given cap, falling back to the
// default when maxChunks is not positive.
func newChunkBuffer(maxChunks int) *chunkBuffer {
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	return &chunkBuffer{maxChunks: maxChunks}
}
