package protocol

import (
	"net/netip"
	"time"
)

// Reliability class of a notice
type Kind uint32

const (
	Unsafe Kind = iota
	Unacked
	Acked
	HMAck
	HMCtl
	ServAck
	ServNak
	ClientAck
	Stat
)

var kindNames = [...]string{"UNSAFE", "UNACKED", "ACKED", "HMACK", "HMCTL", "SERVACK", "SERVNAK", "CLIENTACK", "STAT"}

func (kind Kind) String() (name string) {
	if int(kind) < len(kindNames) {
		name = kindNames[kind]
		return
	}
	name = "UNKNOWN"
	return
}

// Kinds the sender must track until acknowledged
func (kind Kind) NeedsAck() bool {
	return kind == Unacked || kind == Acked
}

// Kinds that acknowledge an earlier transmission
func (kind Kind) IsAck() bool {
	return kind == HMAck || kind == ServAck || kind == ServNak
}

// Receiver-side authentication result. Never transmitted.
type AuthStatus int8

const (
	AuthUnchecked AuthStatus = iota
	AuthYes                  // checksum verified
	AuthNo                   // unauthenticated or checksum mismatch
	AuthFailed               // verification could not run
)

func (status AuthStatus) String() (name string) {
	switch status {
	case AuthYes:
		name = "yes"
	case AuthNo:
		name = "no"
	case AuthFailed:
		name = "failed"
	default:
		name = "unchecked"
	}
	return
}

// Only a verified checksum makes content trustworthy
func (status AuthStatus) Trusted() bool {
	return status == AuthYes
}

// Identifies a single transmission attempt
type UniqueID struct {
	Addr netip.Addr // IPv4 origin
	Sec  uint32
	Frac uint32 // 1/100000 second units, 0..99999
}

// Single Zephyr protocol message
type Notice struct {
	Kind          Kind
	UID           UniqueID
	Port          uint16 // sender's reply port
	Auth          bool   // sender claims the notice is authenticated
	Authenticator []byte
	Authenticated AuthStatus // filled in by the receiver

	Class         string
	Instance      string
	Opcode        string
	Sender        string
	Recipient     string // empty means every subscriber
	DefaultFormat string

	Checksum    []byte
	MultiNotice string   // "offset/total" on fragments
	MultiUID    UniqueID // uid of the full notice a fragment belongs to
	OtherFields []string
	Body        [][]byte

	// Exact bytes covered by the checksum, kept from decode
	signed []byte
	// Raw message bytes as received
	message []byte
	// Raw chunk carried by an outbound fragment in place of Body
	fragment []byte
}

// Topic filter
type Subscription struct {
	Class     string
	Instance  string
	Recipient string
}

// Creates a notice with the conventional personal-message defaults
func NewNotice(recipient string, body ...string) (notice *Notice) {
	notice = &Notice{
		Kind:          Acked,
		Auth:          true,
		Class:         DefaultClass,
		Instance:      DefaultInstance,
		Recipient:     recipient,
		DefaultFormat: DefaultFormat,
	}
	for _, field := range body {
		notice.Body = append(notice.Body, []byte(field))
	}
	return
}

// Seconds since the epoch at which the notice was stamped
func (notice *Notice) Timestamp() float64 {
	return notice.UID.Seconds()
}

func (notice *Notice) Time() time.Time {
	return notice.UID.Time()
}

// Body as it appears on the wire
func (notice *Notice) Message() (message []byte) {
	if notice.fragment != nil {
		message = notice.fragment
		return
	}
	message = joinBody(notice.Body)
	return
}

// Message bytes exactly as received (nil for locally built notices)
func (notice *Notice) RawMessage() []byte {
	return notice.message
}

// Header copy sharing no mutable slices with the original
func (notice *Notice) Clone() (clone *Notice) {
	c := *notice
	c.Authenticator = append([]byte(nil), notice.Authenticator...)
	c.Checksum = append([]byte(nil), notice.Checksum...)
	c.OtherFields = append([]string(nil), notice.OtherFields...)
	c.Body = make([][]byte, len(notice.Body))
	for i, field := range notice.Body {
		c.Body[i] = append([]byte(nil), field...)
	}
	if notice.Body == nil {
		c.Body = nil
	}
	c.signed = nil
	clone = &c
	return
}
