package hash

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const Size int = blake2b.Size256

// Keyed BLAKE2b-256 over multiple byte slices, combined in input order
func Keyed(key []byte, inputs ...[]byte) (sum []byte, err error) {
	hasher, err := blake2b.New256(key)
	if err != nil {
		err = fmt.Errorf("failed to create keyed hash: %w", err)
		return
	}

	for _, input := range inputs {
		_, err = hasher.Write(input)
		if err != nil {
			err = fmt.Errorf("error writing data to hash: %w", err)
			return
		}
	}

	sum = hasher.Sum(nil)
	return
}

// Constant time comparison
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
