package crypto

// Overwrites key material in place
func Memzero(data []byte) {
	clear(data)
}
