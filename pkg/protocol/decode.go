package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Parses a received datagram. Any structural problem is ErrMalformedNotice.
func Decode(packet []byte) (notice *Notice, err error) {
	if len(packet) == 0 {
		err = fmt.Errorf("%w: empty datagram", ErrMalformedNotice)
		return
	}

	var (
		fields   []string
		checksum fieldSpan
		offset   int
	)
	nextField := func() (value string, ok bool) {
		end := bytes.IndexByte(packet[offset:], terminatorByte)
		if end < 0 {
			return
		}
		value = string(packet[offset : offset+end])
		offset += end + 1
		ok = true
		return
	}

	// Version and field count decide how much header follows
	for len(fields) < 2 {
		value, ok := nextField()
		if !ok {
			err = fmt.Errorf("%w: truncated header", ErrMalformedNotice)
			return
		}
		fields = append(fields, value)
	}
	if !strings.HasPrefix(fields[fieldVersion], versionPrefix) {
		err = fmt.Errorf("%w: unsupported version %q", ErrMalformedNotice, fields[fieldVersion])
		return
	}
	numFields, err := readAscii32(fields[fieldNumFields])
	if err != nil {
		return
	}
	if int(numFields) < fixedHeaderFields {
		err = fmt.Errorf("%w: header declares %d fields, need at least %d", ErrMalformedNotice, numFields, fixedHeaderFields)
		return
	}
	if int(numFields)-fixedHeaderFields > MaxOtherFields {
		err = fmt.Errorf("%w: header declares %d other fields, maximum is %d", ErrMalformedNotice, int(numFields)-fixedHeaderFields, MaxOtherFields)
		return
	}

	for len(fields) < int(numFields) {
		if len(fields) == fieldChecksum {
			checksum.start = offset
		}
		value, ok := nextField()
		if !ok {
			err = fmt.Errorf("%w: truncated header at field %d of %d", ErrMalformedNotice, len(fields), numFields)
			return
		}
		if len(fields) == fieldChecksum {
			checksum.end = offset
		}
		fields = append(fields, value)
	}

	decoded := &Notice{}
	kind, err := readAscii32(fields[fieldKind])
	if err != nil {
		return
	}
	if Kind(kind) > Stat {
		err = fmt.Errorf("%w: unknown kind %d", ErrMalformedNotice, kind)
		return
	}
	decoded.Kind = Kind(kind)

	decoded.UID, err = readUID(fields[fieldUID])
	if err != nil {
		return
	}
	decoded.Port, err = readAscii16(fields[fieldPort])
	if err != nil {
		return
	}

	auth, err := readAscii32(fields[fieldAuth])
	if err != nil {
		return
	}
	decoded.Auth = auth != 0

	authLen, err := readAscii32(fields[fieldAuthLen])
	if err != nil {
		return
	}
	if int(authLen) > MaxAuthenticatorLen {
		err = fmt.Errorf("%w: authenticator length %d exceeds maximum of %d", ErrMalformedNotice, authLen, MaxAuthenticatorLen)
		return
	}
	decoded.Authenticator, err = readAscii(fields[fieldAuthenticator], int(authLen))
	if err != nil {
		return
	}

	decoded.Class = fields[fieldClass]
	decoded.Instance = fields[fieldInstance]
	decoded.Opcode = fields[fieldOpcode]
	decoded.Sender = fields[fieldSender]
	decoded.Recipient = fields[fieldRecipient]
	decoded.DefaultFormat = fields[fieldDefaultFormat]

	decoded.Checksum, err = readZcode(fields[fieldChecksum])
	if err != nil {
		return
	}

	decoded.MultiNotice = fields[fieldMultiNotice]
	decoded.MultiUID, err = readUID(fields[fieldMultiUID])
	if err != nil {
		return
	}

	if len(fields) > fixedHeaderFields {
		decoded.OtherFields = append([]string(nil), fields[fixedHeaderFields:]...)
	}

	message := packet[offset:]
	if len(message) > 0 {
		decoded.message = append([]byte(nil), message...)
	}
	decoded.Body = splitBody(message)
	decoded.signed = cutSpan(packet, checksum)
	notice = decoded
	return
}

func readUID(field string) (uid UniqueID, err error) {
	raw, err := readAscii(field, UIDLen)
	if err != nil {
		return
	}
	uid, err = UIDFromWire(raw)
	return
}
