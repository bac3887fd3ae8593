package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Zephyr ascii-hex: "0x" groups of four bytes, upper case, space separated
func appendAscii(dst []byte, data []byte) []byte {
	const digits = "0123456789ABCDEF"
	for i, b := range data {
		if i%4 == 0 {
			if i > 0 {
				dst = append(dst, ' ')
			}
			dst = append(dst, '0', 'x')
		}
		dst = append(dst, digits[b>>4], digits[b&0x0F])
	}
	return dst
}

// Reverses appendAscii. Expected < 0 accepts any length.
func readAscii(field string, expected int) (data []byte, err error) {
	var digits strings.Builder
	for _, group := range strings.Fields(field) {
		if !strings.HasPrefix(group, "0x") && !strings.HasPrefix(group, "0X") {
			err = fmt.Errorf("%w: hex group %q missing 0x prefix", ErrMalformedNotice, group)
			return
		}
		digits.WriteString(group[2:])
	}

	data, err = hex.DecodeString(digits.String())
	if err != nil {
		err = fmt.Errorf("%w: invalid hex field: %v", ErrMalformedNotice, err)
		return
	}
	if expected >= 0 && len(data) != expected {
		err = fmt.Errorf("%w: hex field holds %d bytes, expected %d", ErrMalformedNotice, len(data), expected)
		return
	}
	if len(data) == 0 {
		data = nil
	}
	return
}

func ascii32(value uint32) string {
	return fmt.Sprintf("0x%08X", value)
}

func ascii16(value uint16) string {
	return fmt.Sprintf("0x%04X", value)
}

func readAscii32(field string) (value uint32, err error) {
	value64, err := parseHexField(field, 32)
	value = uint32(value64)
	return
}

func readAscii16(field string) (value uint16, err error) {
	value64, err := parseHexField(field, 16)
	value = uint16(value64)
	return
}

func parseHexField(field string, bits int) (value uint64, err error) {
	trimmed := strings.TrimSpace(field)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		err = fmt.Errorf("%w: numeric field %q missing 0x prefix", ErrMalformedNotice, field)
		return
	}
	value, err = strconv.ParseUint(trimmed[2:], 16, bits)
	if err != nil {
		err = fmt.Errorf("%w: numeric field %q: %v", ErrMalformedNotice, field, err)
		return
	}
	return
}

// Z-encoding: 'Z' followed by the data with NUL and 0xFF escaped,
// keeping binary values free of terminator bytes.
func appendZcode(dst []byte, data []byte) []byte {
	dst = append(dst, 'Z')
	for _, b := range data {
		switch b {
		case 0x00:
			dst = append(dst, 0xFF, 0xF0)
		case 0xFF:
			dst = append(dst, 0xFF, 0xF1)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

func readZcode(field string) (data []byte, err error) {
	if len(field) == 0 {
		return
	}
	if field[0] != 'Z' {
		err = fmt.Errorf("%w: z-encoded field missing Z prefix", ErrMalformedNotice)
		return
	}

	for i := 1; i < len(field); i++ {
		b := field[i]
		if b != 0xFF {
			data = append(data, b)
			continue
		}
		if i+1 >= len(field) {
			err = fmt.Errorf("%w: truncated z-encoded escape", ErrMalformedNotice)
			return
		}
		i++
		switch field[i] {
		case 0xF0:
			data = append(data, 0x00)
		case 0xF1:
			data = append(data, 0xFF)
		default:
			err = fmt.Errorf("%w: invalid z-encoded escape 0x%02X", ErrMalformedNotice, field[i])
			return
		}
	}
	return
}
