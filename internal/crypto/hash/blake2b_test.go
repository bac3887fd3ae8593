package hash

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/blake2b"
)

func TestKeyed(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	whole, err := Keyed(key, []byte("Hello, world!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		key     []byte
		input   [][]byte
		matches bool
	}{
		{name: "Split input", key: key, input: [][]byte{[]byte("Hello, "), []byte("world!")}, matches: true},
		{name: "Nil pieces ignored", key: key, input: [][]byte{nil, []byte("Hello, world!"), nil}, matches: true},
		{name: "Different key", key: bytes.Repeat([]byte{8}, 32), input: [][]byte{[]byte("Hello, world!")}},
		{name: "Different data", key: key, input: [][]byte{[]byte("Hello, world?")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, err := Keyed(tt.key, tt.input...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sum) != Size {
				t.Fatalf("expected %d bytes, got %d", Size, len(sum))
			}
			if Equal(sum, whole) != tt.matches {
				t.Fatalf("unexpected match result")
			}
		})
	}

	reference, _ := blake2b.New256(key)
	reference.Write([]byte("Hello, world!"))
	if !bytes.Equal(reference.Sum(nil), whole) {
		t.Fatalf("does not match reference blake2b")
	}

	_, err = Keyed(make([]byte, blake2b.Size+1), nil)
	if err == nil {
		t.Fatalf("expected error for oversized key")
	}
}
