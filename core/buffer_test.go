package core

import (
	"fmt"
	"testing"
)

func TestBufferKeepsSuffixAtCap(t *testing.T) {
	b := newChunkBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append([]byte(fmt.Sprintf("chunk-%d", i)))
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 chunks, got %d", b.Len())
	}
	chunks := b.Snapshot()
	for i, want := range []string{"chunk-2", "chunk-3", "chunk-4"} {
		if string(chunks[i]) != want {
			t.Fatalf("chunk %d: expected %q, got %q", i, want, chunks[i])
		}
	}
}

func TestBufferNeverExceedsCap(t *testing.T) {
	b := newChunkBuffer(10)
	for i := 0; i < 1000; i++ {
		b.Append([]byte{byte(i)})
		if b.Len() > 10 {
			t.Fatalf("cap exceeded at append %d: %d chunks", i, b.Len())
		}
	}
}

func TestBufferCopiesAppendedData(t *testing.T) {
	b := newChunkBuffer(4)
	data := []byte("hello")
	b.Append(data)
	data[0] = 'X'
	if string(b.Snapshot()[0]) != "hello" {
		t.Fatalf("buffer shares caller memory: %q", b.Snapshot()[0])
	}
}

func TestBufferIgnoresEmptyChunks(t *testing.T) {
	b := newChunkBuffer(4)
	b.Append(nil)
	b.Append([]byte{})
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d chunks", b.Len())
	}
}

func TestBufferBytesJoinsInOrder(t *testing.T) {
	b := newChunkBuffer(4)
	b.Append([]byte("one "))
	b.Append([]byte("two "))
	b.Append([]byte("three"))
	if string(b.Bytes()) != "one two three" {
		t.Fatalf("unexpected join: %q", b.Bytes())
	}
}
