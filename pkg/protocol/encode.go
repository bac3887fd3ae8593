package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Serializes a notice into a single datagram
func (notice *Notice) Encode() (packet []byte, err error) {
	packet, _, err = notice.encode()
	return
}

// Bytes covered by the checksum: the encoded notice with the checksum
// field removed. Decoded notices return exactly what was received.
func (notice *Notice) SignedBytes() (signed []byte, err error) {
	if notice.signed != nil {
		signed = notice.signed
		return
	}

	packet, span, err := notice.encode()
	if err != nil {
		return
	}
	signed = cutSpan(packet, span)
	return
}

// Start and end (exclusive, including terminator) of the checksum field
type fieldSpan struct {
	start int
	end   int
}

func cutSpan(packet []byte, span fieldSpan) (out []byte) {
	out = make([]byte, 0, len(packet)-(span.end-span.start))
	out = append(out, packet[:span.start]...)
	out = append(out, packet[span.end:]...)
	return
}

func (notice *Notice) encode() (packet []byte, checksum fieldSpan, err error) {
	err = notice.validate()
	if err != nil {
		return
	}

	uid := notice.UID.ToWire()
	multiUID := notice.MultiUID.ToWire()
	auth := uint32(0)
	if notice.Auth {
		auth = 1
	}

	buf := make([]byte, 0, 256+len(notice.Message()))
	appendField := func(value string) {
		buf = append(buf, value...)
		buf = append(buf, terminatorByte)
	}

	appendField(ProtocolVersion)
	appendField(ascii32(uint32(fixedHeaderFields + len(notice.OtherFields))))
	appendField(ascii32(uint32(notice.Kind)))
	buf = appendAscii(buf, uid[:])
	buf = append(buf, terminatorByte)
	appendField(ascii16(notice.Port))
	appendField(ascii32(auth))
	appendField(ascii32(uint32(len(notice.Authenticator))))
	buf = appendAscii(buf, notice.Authenticator)
	buf = append(buf, terminatorByte)
	appendField(notice.Class)
	appendField(notice.Instance)
	appendField(notice.Opcode)
	appendField(notice.Sender)
	appendField(notice.Recipient)
	appendField(notice.DefaultFormat)

	checksum.start = len(buf)
	buf = appendZcode(buf, notice.Checksum)
	buf = append(buf, terminatorByte)
	checksum.end = len(buf)

	appendField(notice.MultiNotice)
	buf = appendAscii(buf, multiUID[:])
	buf = append(buf, terminatorByte)
	for _, field := range notice.OtherFields {
		appendField(field)
	}
	buf = append(buf, notice.Message()...)

	if len(buf) > MaxDatagramLen {
		err = fmt.Errorf("%w: encoded notice is %d bytes, exceeds datagram limit of %d", ErrMalformedNotice, len(buf), MaxDatagramLen)
		return
	}
	packet = buf
	return
}

func (notice *Notice) validate() (err error) {
	if len(notice.OtherFields) > MaxOtherFields {
		err = fmt.Errorf("%w: %d other fields exceeds maximum of %d", ErrMalformedNotice, len(notice.OtherFields), MaxOtherFields)
		return
	}
	if len(notice.Authenticator) > MaxAuthenticatorLen {
		err = fmt.Errorf("%w: authenticator of %d bytes exceeds maximum of %d", ErrMalformedNotice, len(notice.Authenticator), MaxAuthenticatorLen)
		return
	}
	if notice.Kind > Stat {
		err = fmt.Errorf("%w: unknown kind %d", ErrMalformedNotice, notice.Kind)
		return
	}
	err = notice.UID.encodable()
	if err != nil {
		return
	}
	err = notice.MultiUID.encodable()
	if err != nil {
		err = fmt.Errorf("multiuid: %w", err)
		return
	}

	headers := map[string]string{
		"class":          notice.Class,
		"instance":       notice.Instance,
		"opcode":         notice.Opcode,
		"sender":         notice.Sender,
		"recipient":      notice.Recipient,
		"default format": notice.DefaultFormat,
		"multinotice":    notice.MultiNotice,
	}
	for name, value := range headers {
		if strings.IndexByte(value, terminatorByte) >= 0 {
			err = fmt.Errorf("%w: %s contains a NUL byte", ErrMalformedNotice, name)
			return
		}
	}
	for index, field := range notice.OtherFields {
		if strings.IndexByte(field, terminatorByte) >= 0 {
			err = fmt.Errorf("%w: other field %d contains a NUL byte", ErrMalformedNotice, index)
			return
		}
	}
	for index, field := range notice.Body {
		if bytes.IndexByte(field, terminatorByte) >= 0 {
			err = fmt.Errorf("%w: body field %d contains a NUL byte", ErrMalformedNotice, index)
			return
		}
	}
	return
}

// Every body field is NUL terminated, so an empty body is zero bytes
func joinBody(fields [][]byte) (message []byte) {
	if len(fields) == 0 {
		return
	}
	size := 0
	for _, field := range fields {
		size += len(field) + 1
	}
	message = make([]byte, 0, size)
	for _, field := range fields {
		message = append(message, field...)
		message = append(message, terminatorByte)
	}
	return
}

// Tolerates a missing terminator after the last field
func splitBody(message []byte) (fields [][]byte) {
	if len(message) == 0 {
		return
	}
	message = bytes.TrimSuffix(message, []byte{terminatorByte})
	for _, field := range bytes.Split(message, []byte{terminatorByte}) {
		fields = append(fields, append([]byte(nil), field...))
	}
	return
}

// Offset and total length from a fragment's multinotice field
func ParseMultiNotice(field string) (offset int, total int, err error) {
	before, after, found := strings.Cut(field, "/")
	if !found {
		err = fmt.Errorf("%w: multinotice %q is not offset/total", ErrMalformedNotice, field)
		return
	}
	offset, err = strconv.Atoi(before)
	if err != nil {
		err = fmt.Errorf("%w: multinotice offset %q: %v", ErrMalformedNotice, before, err)
		return
	}
	total, err = strconv.Atoi(after)
	if err != nil {
		err = fmt.Errorf("%w: multinotice total %q: %v", ErrMalformedNotice, after, err)
		return
	}
	if offset < 0 || total < 0 || offset > total {
		err = fmt.Errorf("%w: multinotice %q out of range", ErrMalformedNotice, field)
		return
	}
	return
}
