package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// Fresh secret of the requested size
func Key(size int) (key []byte, err error) {
	if size <= 0 {
		err = fmt.Errorf("invalid key size %d", size)
		return
	}
	key = make([]byte, size)
	_, err = rand.Read(key)
	if err != nil {
		err = fmt.Errorf("failed to populate key with random data: %w", err)
		return
	}
	return
}

// Random duration in [0, limit). Returns 0 when randomness is unavailable.
func Jitter(limit time.Duration) (jitter time.Duration) {
	if limit <= 0 {
		return
	}
	var b [8]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return
	}
	jitter = time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(limit))
	return
}
