package hkdf

import (
	"crypto/sha512"
	"fmt"
	"io"
	"zephyr/internal/crypto"

	"golang.org/x/crypto/hkdf"
)

// Info string binding derived keys to notice checksums
const ChecksumNamespace string = "zephyr notice checksum"

// Derives a purpose-bound key from a session key.
// The namespace separates keys used for different jobs.
// Caller's secret is left untouched; the internal copy is zeroed.
func DeriveKey(secret []byte, salt []byte, namespace string, keySize int) (derived []byte, err error) {
	if len(secret) == 0 {
		err = fmt.Errorf("cannot derive key from empty secret")
		return
	}
	if keySize <= 0 {
		err = fmt.Errorf("invalid derived key size %d", keySize)
		return
	}

	secretCopy := append([]byte(nil), secret...)
	defer crypto.Memzero(secretCopy)

	deriver := hkdf.New(sha512.New, secretCopy, salt, []byte(namespace))
	derived = make([]byte, keySize)
	_, err = io.ReadFull(deriver, derived)
	if err != nil {
		crypto.Memzero(derived)
		derived = nil
		err = fmt.Errorf("failed to populate key with derived bytes: %w", err)
		return
	}
	return
}
