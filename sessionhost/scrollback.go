package sessionhost

// scrollback is a byte-capped ring of output chunks retained for replay when
// a bridge re-attaches.
type scrollback struct {
	chunks   [][]byte
	total    int
	capacity int
}

func newScrollback(capacity int) *scrollback {
	if capacity <= 0 {
		capacity = DefaultScrollbackBytes
	}
	return &scrollback{capacity: capacity}
}

// push appends one chunk, evicting the oldest chunks until the byte total
// fits the capacity again.
func (s *scrollback) push(data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	s.chunks = append(s.chunks, chunk)
	s.total += len(chunk)
	trim := 0
	for s.total > s.capacity && trim < len(s.chunks) {
		s.total -= len(s.chunks[trim])
		trim++
	}
	if trim > 0 {
		rest := make([][]byte, len(s.chunks)-trim)
		copy(rest, s.chunks[trim:])
		s.chunks = rest
	}
}

// snapshot joins the retained chunks oldest first.
func (s *scrollback) snapshot() []byte {
	out := make([]byte, 0, s.total)
	for _, chunk := range s.chunks {
		out = append(out, chunk...)
	}
	return out
}
