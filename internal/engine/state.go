package engine

import (
	"time"
	"zephyr/pkg/protocol"
)

// Lifecycle of one tracked send
type State int

const (
	Pending     State = iota
	Acked             // host manager acknowledged
	ServerAcked       // server accepted
	ServerNaked       // server rejected
	TimedOut          // no acknowledgement within the bound
	Sent              // untracked kind, transmitted without acknowledgement
)

func (state State) String() string {
	switch state {
	case Pending:
		return "pending"
	case Acked:
		return "acked"
	case ServerAcked:
		return "server-acked"
	case ServerNaked:
		return "server-naked"
	case TimedOut:
		return "timed-out"
	case Sent:
		return "sent"
	}
	return "unknown"
}

// Whether no further acknowledgement is expected for a fragment of this kind
func (state State) final(kind protocol.Kind) bool {
	switch state {
	case ServerAcked, ServerNaked, TimedOut:
		return true
	case Acked:
		return kind != protocol.Acked
	}
	return false
}

// Ordering used to combine fragment states; a nak anywhere wins
func (state State) rank() int {
	switch state {
	case ServerNaked:
		return 0
	case Acked:
		return 1
	case ServerAcked:
		return 2
	}
	return 3
}

// Handle for a send awaiting acknowledgement
type Ticket struct {
	UID     protocol.UniqueID
	Kind    protocol.Kind
	Parts   int // datagrams the notice was split into
	SentAt  time.Time
	tracked bool
}

func (ticket *Ticket) Tracked() bool {
	return ticket != nil && ticket.tracked
}

// Final result released to the caller of Await
type Outcome struct {
	State     State
	Ack       *protocol.Notice // server acknowledgement, may carry a body
	HostAcked bool
	Attempts  int
}
