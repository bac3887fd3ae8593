package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"time"
)

const (
	// IPv4 address, seconds, microseconds; 4 bytes each, matching libzephyr's
	// 32-bit timeval fields rather than a 64-bit time pair
	UIDLen        int    = 12
	fracPerSecond uint32 = 100000
)

// Whether ToWire can carry the identifier without loss
func (uid UniqueID) encodable() (err error) {
	if uid.IsZero() {
		return
	}
	if !uid.Addr.Unmap().Is4() {
		err = fmt.Errorf("%w: uid address %v is not IPv4", ErrMalformedNotice, uid.Addr)
		return
	}
	if uid.Frac >= fracPerSecond {
		err = fmt.Errorf("%w: uid fraction %d out of range", ErrMalformedNotice, uid.Frac)
		return
	}
	return
}

// Raw wire layout of the identifier. Addresses other than IPv4 are written
// as zero; Encode rejects them first.
func (uid UniqueID) ToWire() (wire [UIDLen]byte) {
	addr := uid.Addr.Unmap()
	if addr.Is4() {
		ip := addr.As4()
		copy(wire[0:4], ip[:])
	}
	binary.BigEndian.PutUint32(wire[4:8], uid.Sec)
	binary.BigEndian.PutUint32(wire[8:12], uid.Frac)
	return
}

func UIDFromWire(wire []byte) (uid UniqueID, err error) {
	if len(wire) != UIDLen {
		err = fmt.Errorf("%w: uid holds %d bytes, expected %d", ErrMalformedNotice, len(wire), UIDLen)
		return
	}

	allZero := true
	for _, b := range wire {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return
	}

	uid.Addr = netip.AddrFrom4([4]byte(wire[0:4]))
	uid.Sec = binary.BigEndian.Uint32(wire[4:8])
	uid.Frac = binary.BigEndian.Uint32(wire[8:12])
	if uid.Frac >= fracPerSecond {
		err = fmt.Errorf("%w: uid fraction %d out of range", ErrMalformedNotice, uid.Frac)
		return
	}
	return
}

func (uid UniqueID) IsZero() bool {
	return uid == UniqueID{}
}

func (uid UniqueID) Seconds() float64 {
	return float64(uid.Sec) + float64(uid.Frac)/float64(fracPerSecond)
}

func (uid UniqueID) Time() time.Time {
	return time.Unix(int64(uid.Sec), int64(uid.Frac)*int64(time.Second/time.Duration(fracPerSecond)))
}

func (uid UniqueID) String() string {
	return fmt.Sprintf("%s/%d.%05d", uid.Addr, uid.Sec, uid.Frac)
}

func (uid UniqueID) before(other UniqueID) bool {
	if uid.Sec != other.Sec {
		return uid.Sec < other.Sec
	}
	return uid.Frac < other.Frac
}

// Issues identifiers that never repeat within a process, even when the
// clock does not advance between calls.
type UIDGenerator struct {
	mutex sync.Mutex
	last  UniqueID
	now   func() time.Time
}

func NewUIDGenerator(clock func() time.Time) (generator *UIDGenerator) {
	if clock == nil {
		clock = time.Now
	}
	generator = &UIDGenerator{now: clock}
	return
}

func (generator *UIDGenerator) Next(addr netip.Addr) (uid UniqueID) {
	now := generator.now()
	uid = UniqueID{
		Addr: addr.Unmap(),
		Sec:  uint32(now.Unix()),
		Frac: uint32(now.Nanosecond()) / uint32(time.Second/time.Duration(fracPerSecond)),
	}

	generator.mutex.Lock()
	defer generator.mutex.Unlock()

	if !generator.last.before(uid) {
		uid.Sec = generator.last.Sec
		uid.Frac = generator.last.Frac + 1
		if uid.Frac >= fracPerSecond {
			uid.Sec++
			uid.Frac = 0
		}
	}
	generator.last = uid
	return
}

var defaultGenerator = NewUIDGenerator(nil)

// Process-wide generator
func NewUID(addr netip.Addr) UniqueID {
	return defaultGenerator.Next(addr)
}
