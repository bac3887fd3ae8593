package engine

import (
	"time"
	"zephyr/pkg/protocol"
)

// One tracked send, covering every fragment of the notice
type pendingSend struct {
	ticket     *Ticket
	order      []protocol.UniqueID
	packets    map[protocol.UniqueID][]byte
	states     map[protocol.UniqueID]State
	ack        *protocol.Notice
	hostAcked  bool
	attempts   int
	deadline   time.Time
	resendAt   time.Time
	done       bool
	finishedAt time.Time
	outcome    Outcome
	err        error // transport failure while retransmitting
}

func newPendingSend(ticket *Ticket, uids []protocol.UniqueID, packets [][]byte, now time.Time, timeout time.Duration) (record *pendingSend) {
	record = &pendingSend{
		ticket:   ticket,
		order:    uids,
		packets:  make(map[protocol.UniqueID][]byte, len(uids)),
		states:   make(map[protocol.UniqueID]State, len(uids)),
		attempts: 1,
		deadline: now.Add(timeout),
	}
	for index, uid := range uids {
		record.packets[uid] = packets[index]
		record.states[uid] = Pending
	}
	return
}

// Applies an acknowledgement to one fragment. Returns false when the
// acknowledgement changed nothing.
func (record *pendingSend) apply(fragment protocol.UniqueID, ack *protocol.Notice, now time.Time) (changed bool) {
	current, known := record.states[fragment]
	if !known || current.final(record.ticket.Kind) {
		return
	}

	var next State
	switch ack.Kind {
	case protocol.HMAck:
		if current == Acked {
			return
		}
		next = Acked
		record.hostAcked = true
	case protocol.ServAck:
		next = ServerAcked
		record.ack = ack
	case protocol.ServNak:
		next = ServerNaked
		record.ack = ack
	default:
		return
	}

	record.states[fragment] = next
	changed = true

	if record.settled() {
		record.finish(record.combined(), now)
	}
	return
}

func (record *pendingSend) settled() bool {
	for _, state := range record.states {
		if !state.final(record.ticket.Kind) {
			return false
		}
	}
	return true
}

func (record *pendingSend) combined() (state State) {
	state = ServerAcked
	for _, fragmentState := range record.states {
		if fragmentState.rank() < state.rank() {
			state = fragmentState
		}
	}
	return
}

func (record *pendingSend) finish(state State, now time.Time) {
	record.done = true
	record.finishedAt = now
	record.outcome = Outcome{
		State:     state,
		Ack:       record.ack,
		HostAcked: record.hostAcked,
		Attempts:  record.attempts,
	}
}

func (record *pendingSend) fail(err error, now time.Time) {
	record.finish(Pending, now)
	record.err = err
}

// Packets still waiting on an acknowledgement, in send order
func (record *pendingSend) unsettled() (packets [][]byte) {
	for _, uid := range record.order {
		if !record.states[uid].final(record.ticket.Kind) {
			packets = append(packets, record.packets[uid])
		}
	}
	return
}
