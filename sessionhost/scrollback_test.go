package sessionhost

import (
	"bytes"
	"testing"
)

func TestScrollbackEvictsOldestChunks(t *testing.T) {
	back := newScrollback(10)
	back.push([]byte("aaaa"))
	back.push([]byte("bbbb"))
	back.push([]byte("cccc"))

	got := back.snapshot()
	if !bytes.Equal(got, []byte("bbbbcccc")) {
		t.Fatalf("snapshot = %q", got)
	}
	if back.total > 10 {
		t.Fatalf("total = %d exceeds capacity", back.total)
	}
}

func TestScrollbackDropsChunkLargerThanCapacity(t *testing.T) {
	back := newScrollback(4)
	back.push([]byte("0123456789"))
	if got := back.snapshot(); len(got) != 0 {
		t.Fatalf("snapshot = %q", got)
	}
	if back.total != 0 {
		t.Fatalf("total = %d", back.total)
	}
}

func TestScrollbackIgnoresEmptyPush(t *testing.T) {
	back := newScrollback(0)
	back.push(nil)
	if got := back.snapshot(); len(got) != 0 {
		t.Fatalf("snapshot = %q", got)
	}
	if back.capacity != DefaultScrollbackBytes {
		t.Fatalf("capacity = %d", back.capacity)
	}
}
