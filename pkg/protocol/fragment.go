package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Splits a notice whose encoding exceeds maxLen into fragments that each
// fit. Fragments share the original uid as MultiUID; the first keeps the
// original uid and the rest take fresh ones from nextUID.
// Reserve leaves room for a checksum added after fragmentation.
func Fragment(notice *Notice, maxLen int, reserve int, nextUID func() UniqueID) (fragments []*Notice, err error) {
	packet, err := notice.Encode()
	if err != nil {
		return
	}
	if len(packet)+reserve <= maxLen {
		fragments = []*Notice{notice}
		return
	}

	message := notice.Message()
	total := len(message)

	// Widest possible multinotice value sizes the header
	probe := notice.Clone()
	probe.Body = nil
	probe.MultiNotice = strconv.Itoa(total) + "/" + strconv.Itoa(total)
	probe.MultiUID = notice.UID
	header, err := probe.Encode()
	if err != nil {
		return
	}
	room := maxLen - len(header) - reserve
	if room <= 0 {
		err = fmt.Errorf("%w: header of %d bytes leaves no room for body within %d byte packets", ErrMalformedNotice, len(header), maxLen)
		return
	}

	for offset := 0; offset < total; offset += room {
		end := min(offset+room, total)

		part := notice.Clone()
		part.Body = nil
		part.fragment = message[offset:end]
		part.MultiNotice = strconv.Itoa(offset) + "/" + strconv.Itoa(total)
		part.MultiUID = notice.UID
		if offset > 0 {
			part.UID = nextUID()
		}
		fragments = append(fragments, part)
	}
	return
}

// Whether the notice is one piece of a larger notice
func (notice *Notice) IsFragment() bool {
	if notice.MultiNotice == "" {
		return false
	}
	offset, total, err := ParseMultiNotice(notice.MultiNotice)
	if err != nil {
		return false
	}
	return !(offset == 0 && len(notice.message) >= total)
}

type partialNotice struct {
	first    *Notice
	chunks   map[int][]byte
	received int
	total    int
	status   AuthStatus
	started  time.Time
}

// Rebuilds fragmented notices. Not safe for concurrent use.
type Reassembler struct {
	partials map[UniqueID]*partialNotice
}

func NewReassembler() *Reassembler {
	return &Reassembler{partials: make(map[UniqueID]*partialNotice)}
}

// Adds a received fragment. Complete is set once all bytes have arrived,
// with notice holding the rebuilt original.
func (reassembler *Reassembler) Add(fragment *Notice, now time.Time) (notice *Notice, complete bool, err error) {
	offset, total, err := ParseMultiNotice(fragment.MultiNotice)
	if err != nil {
		return
	}
	chunk := fragment.RawMessage()
	if offset+len(chunk) > total {
		err = fmt.Errorf("%w: fragment at %d with %d bytes overruns total %d", ErrMalformedNotice, offset, len(chunk), total)
		return
	}

	key := fragment.MultiUID
	if key.IsZero() {
		key = fragment.UID
	}

	partial, exists := reassembler.partials[key]
	if !exists {
		partial = &partialNotice{
			chunks:  make(map[int][]byte),
			total:   total,
			status:  fragment.Authenticated,
			started: now,
		}
		reassembler.partials[key] = partial
	}
	if partial.total != total {
		err = fmt.Errorf("%w: fragment total %d disagrees with %d", ErrMalformedNotice, total, partial.total)
		return
	}
	if _, duplicate := partial.chunks[offset]; duplicate {
		return
	}

	partial.chunks[offset] = chunk
	partial.received += len(chunk)
	partial.status = weakerStatus(partial.status, fragment.Authenticated)
	if offset == 0 {
		partial.first = fragment
	}
	if partial.received < partial.total || partial.first == nil {
		return
	}

	delete(reassembler.partials, key)

	offsets := make([]int, 0, len(partial.chunks))
	for chunkOffset := range partial.chunks {
		offsets = append(offsets, chunkOffset)
	}
	sort.Ints(offsets)
	message := make([]byte, 0, partial.total)
	for _, chunkOffset := range offsets {
		if chunkOffset != len(message) {
			err = fmt.Errorf("%w: fragments overlap or leave gaps at offset %d", ErrMalformedNotice, chunkOffset)
			return
		}
		message = append(message, partial.chunks[chunkOffset]...)
	}

	notice = partial.first.Clone()
	notice.UID = key
	notice.MultiNotice = ""
	notice.MultiUID = UniqueID{}
	notice.message = message
	notice.Body = splitBody(message)
	notice.Authenticated = partial.status
	complete = true
	return
}

// Drops partial notices older than maxAge, returning how many were dropped
func (reassembler *Reassembler) Expire(now time.Time, maxAge time.Duration) (dropped int) {
	for key, partial := range reassembler.partials {
		if now.Sub(partial.started) > maxAge {
			delete(reassembler.partials, key)
			dropped++
		}
	}
	return
}

func (reassembler *Reassembler) Len() int {
	return len(reassembler.partials)
}

// A rebuilt notice is only as trusted as its least trusted piece
func weakerStatus(a, b AuthStatus) AuthStatus {
	rank := func(status AuthStatus) int {
		switch status {
		case AuthYes:
			return 3
		case AuthUnchecked:
			return 2
		case AuthNo:
			return 1
		default:
			return 0
		}
	}
	if rank(a) <= rank(b) {
		return a
	}
	return b
}
