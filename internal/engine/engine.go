// Notice protocol engine: tracked sends, acknowledgement matching,
// retransmission and receive-side dispatch over a single socket.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"
	"zephyr/internal/calc"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/internal/network"
	"zephyr/internal/queue"
	"zephyr/pkg/protocol"
)

// Socket operations the engine needs
type Transport interface {
	Send(ctx context.Context, packet []byte) error
	SendTo(ctx context.Context, packet []byte, destination netip.AddrPort) error
	Receive(ctx context.Context, block bool) (network.Datagram, error)
	WaitReadable(ctx context.Context, timeout time.Duration) (bool, error)
	LocalAddr() netip.AddrPort
}

// Checksum operations the engine needs
type Verifier interface {
	Verify(ctx context.Context, notice *protocol.Notice, from netip.AddrPort) protocol.AuthStatus
	Sign(ctx context.Context, notice *protocol.Notice) error
	ChecksumReserve() int
}

type Config struct {
	Sender            string // default sender for outbound notices
	AckTimeout        time.Duration
	Retry             RetryPolicy
	MaxPacketLen      int
	ReassemblyTimeout time.Duration
	OutcomeRetention  time.Duration // finished sends nobody awaits are dropped after this
}

type Engine struct {
	Namespace []string
	Metrics   *MetricStorage

	transport Transport
	verifier  Verifier // nil leaves received notices unverifiable
	inbox     *queue.Inbox
	uids      *protocol.UIDGenerator
	cfg       Config

	mutex       sync.Mutex
	pending     map[protocol.UniqueID]*pendingSend // by notice uid
	fragments   map[protocol.UniqueID]protocol.UniqueID
	reassembler *protocol.Reassembler
}

func New(namespace []string, transport Transport, verifier Verifier, inbox *queue.Inbox, cfg Config) (engine *Engine) {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = global.DefaultAckTimeout
	}
	if cfg.MaxPacketLen <= 0 {
		cfg.MaxPacketLen = protocol.MaxPacketLen
	}
	if cfg.ReassemblyTimeout <= 0 {
		cfg.ReassemblyTimeout = global.DefaultReassemblyTimeout
	}
	if cfg.OutcomeRetention <= 0 {
		cfg.OutcomeRetention = global.DefaultOutcomeRetention
	}
	if inbox == nil {
		inbox = queue.New(namespace, queue.Config{})
	}

	engine = &Engine{
		Namespace:   append(append([]string(nil), namespace...), global.NSEngine),
		Metrics:     &MetricStorage{AckLatency: calc.NewWindow[uint64](latencySamples)},
		transport:   transport,
		verifier:    verifier,
		inbox:       inbox,
		uids:        protocol.NewUIDGenerator(nil),
		cfg:         cfg,
		pending:     make(map[protocol.UniqueID]*pendingSend),
		fragments:   make(map[protocol.UniqueID]protocol.UniqueID),
		reassembler: protocol.NewReassembler(),
	}
	return
}

// Transmits a notice. The notice is stamped in place with a fresh uid, the
// session port and (if empty) the default sender. UNACKED and ACKED kinds
// are tracked until Await releases them (or OutcomeRetention passes after
// they finish); other kinds are fire-and-forget.
func (engine *Engine) Send(ctx context.Context, notice *protocol.Notice) (ticket *Ticket, err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSEngine)

	local := engine.transport.LocalAddr()
	notice.UID = engine.uids.Next(local.Addr())
	notice.MultiUID = notice.UID
	if notice.Port == 0 {
		notice.Port = local.Port()
	}
	if notice.Sender == "" {
		notice.Sender = engine.cfg.Sender
	}

	reserve := 0
	if notice.Auth {
		if engine.verifier == nil {
			err = fmt.Errorf("%w: no verifier configured to sign notice", protocol.ErrAuthUnavailable)
			return
		}
		reserve = engine.verifier.ChecksumReserve()
	}

	parts, err := protocol.Fragment(notice, engine.cfg.MaxPacketLen, reserve, func() protocol.UniqueID {
		return engine.uids.Next(local.Addr())
	})
	if err != nil {
		return
	}

	uids := make([]protocol.UniqueID, len(parts))
	packets := make([][]byte, len(parts))
	for index, part := range parts {
		if part.Auth {
			err = engine.verifier.Sign(ctx, part)
			if err != nil {
				return
			}
		}
		packets[index], err = part.Encode()
		if err != nil {
			return
		}
		uids[index] = part.UID
	}

	now := time.Now()
	ticket = &Ticket{
		UID:     notice.UID,
		Kind:    notice.Kind,
		Parts:   len(parts),
		SentAt:  now,
		tracked: notice.Kind.NeedsAck(),
	}

	// Registered before transmission so a fast acknowledgement is never stray
	if ticket.tracked {
		engine.mutex.Lock()
		engine.pending[ticket.UID] = newPendingSend(ticket, uids, packets, now, engine.cfg.AckTimeout)
		for _, uid := range uids {
			engine.fragments[uid] = ticket.UID
		}
		engine.Metrics.Pending.Store(uint64(len(engine.pending)))
		engine.mutex.Unlock()
	}

	for _, packet := range packets {
		err = engine.transport.Send(ctx, packet)
		if err != nil {
			engine.release(ticket.UID)
			ticket = nil
			return
		}
	}

	engine.Metrics.Sent.Add(1)
	engine.Metrics.Datagrams.Add(uint64(len(packets)))
	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"sent %s notice %s <%s,%s,%s> in %d datagram(s)\n",
		notice.Kind, notice.UID, notice.Class, notice.Instance, notice.Recipient, len(packets))
	return
}

// Blocks until the ticket's send is acknowledged, rejected or times out,
// reading the socket in the meantime. Each ticket is released exactly once;
// later calls return ErrNotPending.
func (engine *Engine) Await(ctx context.Context, ticket *Ticket) (outcome Outcome, err error) {
	if ticket == nil {
		err = protocol.ErrNotPending
		return
	}
	if !ticket.tracked {
		outcome = Outcome{State: Sent, Attempts: 1}
		return
	}
	ctx = logctx.AppendCtxTag(ctx, global.NSEngine)

	for {
		var wait time.Duration
		var finished bool
		outcome, wait, finished, err = engine.step(ctx, ticket)
		if finished || err != nil {
			return
		}

		var ready bool
		ready, err = engine.transport.WaitReadable(ctx, wait)
		if err != nil {
			return
		}
		if ready {
			err = engine.drain(ctx)
			if err != nil {
				return
			}
		}
	}
}

// Sends and waits for the outcome
func (engine *Engine) SendAndAwait(ctx context.Context, notice *protocol.Notice) (outcome Outcome, err error) {
	ticket, err := engine.Send(ctx, notice)
	if err != nil {
		return
	}
	outcome, err = engine.Await(ctx, ticket)
	return
}

// Advances a tracked send and releases it when finished. Otherwise
// reports how long to wait.
func (engine *Engine) step(ctx context.Context, ticket *Ticket) (outcome Outcome, wait time.Duration, finished bool, err error) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	record, exists := engine.pending[ticket.UID]
	if !exists || record.ticket != ticket {
		err = protocol.ErrNotPending
		return
	}

	now := time.Now()
	engine.advance(ctx, record, now)

	if record.done {
		outcome = record.outcome
		finished = true
		engine.forget(record)

		if record.err != nil {
			err = fmt.Errorf("retransmitting notice %s: %w", ticket.UID, record.err)
			return
		}
		switch outcome.State {
		case Acked, ServerAcked:
			engine.Metrics.AckLatency.Add(uint64(record.finishedAt.Sub(ticket.SentAt)))
		case ServerNaked:
			err = fmt.Errorf("%w: notice %s", protocol.ErrServerNak, ticket.UID)
		case TimedOut:
			err = fmt.Errorf("%w: notice %s after %d attempt(s)", protocol.ErrTimeout, ticket.UID, outcome.Attempts)
		}
		return
	}

	next := record.deadline
	if !record.resendAt.IsZero() {
		next = record.resendAt
	}
	wait = max(next.Sub(now), 0)
	return
}

// Caller holds the mutex. Resends or times out a record whose deadline passed.
func (engine *Engine) advance(ctx context.Context, record *pendingSend, now time.Time) {
	if !record.done && !record.resendAt.IsZero() && !now.Before(record.resendAt) {
		engine.resend(ctx, record, now)
	}
	if record.done || !record.resendAt.IsZero() || now.Before(record.deadline) {
		return
	}

	if record.attempts <= engine.cfg.Retry.Retries {
		record.resendAt = now.Add(engine.cfg.Retry.nextDelay(record.attempts))
		if !now.Before(record.resendAt) {
			engine.resend(ctx, record, now)
		}
		return
	}
	record.finish(TimedOut, now)
	engine.Metrics.Timeouts.Add(1)
	logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
		"no acknowledgement for %s notice %s after %d attempt(s)\n", record.ticket.Kind, record.ticket.UID, record.attempts)
}

// Caller holds the mutex. Times out overdue sends for hosts that never call
// Await and drops finished ones left unclaimed past the retention.
func (engine *Engine) sweep(ctx context.Context, now time.Time) {
	for _, record := range engine.pending {
		engine.advance(ctx, record, now)
		if record.done && now.Sub(record.finishedAt) >= engine.cfg.OutcomeRetention {
			engine.forget(record)
			engine.Metrics.Unclaimed.Add(1)
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
				"dropped unclaimed %s outcome for notice %s\n", record.outcome.State, record.ticket.UID)
		}
	}
}

// Caller holds the mutex. A transport error finishes the send; step
// returns it to the waiting caller.
func (engine *Engine) resend(ctx context.Context, record *pendingSend, now time.Time) {
	record.resendAt = time.Time{}
	record.attempts++
	record.deadline = now.Add(engine.cfg.AckTimeout)

	for _, packet := range record.unsettled() {
		err := engine.transport.Send(ctx, packet)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"retransmission of %s failed: %v\n", record.ticket.UID, err)
			record.fail(err, now)
			return
		}
		engine.Metrics.Retransmits.Add(1)
	}
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"retransmitted notice %s (attempt %d)\n", record.ticket.UID, record.attempts)
}

// Caller holds the mutex
func (engine *Engine) forget(record *pendingSend) {
	delete(engine.pending, record.ticket.UID)
	for _, uid := range record.order {
		delete(engine.fragments, uid)
	}
	engine.Metrics.Pending.Store(uint64(len(engine.pending)))
}

func (engine *Engine) release(uid protocol.UniqueID) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	record, exists := engine.pending[uid]
	if exists {
		engine.forget(record)
	}
}

// Next received notice. Without block, network.ErrNonePending is returned
// when nothing is available.
func (engine *Engine) Receive(ctx context.Context, block bool) (notice *protocol.Notice, from netip.AddrPort, err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSEngine)

	for {
		item, ok := engine.inbox.Pop()
		if ok {
			notice = item.Notice
			from = item.From
			return
		}

		err = engine.drain(ctx)
		if err != nil {
			return
		}
		item, ok = engine.inbox.Pop()
		if ok {
			notice = item.Notice
			from = item.From
			return
		}
		if !block {
			err = network.ErrNonePending
			return
		}

		// Bounded so partial notices still expire while idle
		_, err = engine.transport.WaitReadable(ctx, engine.cfg.ReassemblyTimeout)
		if err != nil {
			return
		}
	}
}

// Number of received notices ready for Receive, after reading everything
// the socket holds
func (engine *Engine) Pending(ctx context.Context) (count int, err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSEngine)
	err = engine.drain(ctx)
	if err != nil {
		return
	}
	count = engine.inbox.Len()
	return
}

// Reads and dispatches every datagram currently available
func (engine *Engine) drain(ctx context.Context) (err error) {
	for {
		var datagram network.Datagram
		datagram, err = engine.transport.Receive(ctx, false)
		if errors.Is(err, network.ErrNonePending) {
			err = nil
			break
		}
		if err != nil {
			return
		}
		engine.dispatch(ctx, datagram)
	}

	now := time.Now()
	engine.mutex.Lock()
	engine.sweep(ctx, now)
	dropped := engine.reassembler.Expire(now, engine.cfg.ReassemblyTimeout)
	engine.mutex.Unlock()
	if dropped > 0 {
		engine.Metrics.PartialsExpired.Add(uint64(dropped))
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"discarded %d incomplete fragmented notice(s)\n", dropped)
	}
	return
}

func (engine *Engine) dispatch(ctx context.Context, datagram network.Datagram) {
	notice, err := protocol.Decode(datagram.Data)
	if err != nil {
		engine.Metrics.Malformed.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"dropping datagram from %s: %v\n", datagram.From, err)
		return
	}

	notice.Authenticated = engine.authenticate(ctx, notice, datagram.From)

	if notice.Kind.IsAck() {
		engine.handleAck(ctx, notice, datagram.From)
		return
	}

	if notice.Kind == protocol.Acked {
		engine.acknowledge(ctx, notice, datagram.From)
	}

	if notice.IsFragment() {
		engine.mutex.Lock()
		whole, complete, err := engine.reassembler.Add(notice, time.Now())
		engine.mutex.Unlock()
		if err != nil {
			engine.Metrics.Malformed.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"dropping fragment %s from %s: %v\n", notice.UID, datagram.From, err)
			return
		}
		if !complete {
			return
		}
		notice = whole
	}

	engine.Metrics.Received.Add(1)
	engine.inbox.Push(ctx, queue.Item{Notice: notice, From: datagram.From, Size: len(datagram.Data)})
}

func (engine *Engine) handleAck(ctx context.Context, ack *protocol.Notice, from netip.AddrPort) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	owner, known := engine.fragments[ack.UID]
	record := engine.pending[owner]
	if !known || record == nil {
		engine.Metrics.StrayAcks.Add(1)
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"ignoring %s for unknown notice %s from %s\n", ack.Kind, ack.UID, from)
		return
	}

	if !record.apply(ack.UID, ack, time.Now()) {
		return
	}
	switch ack.Kind {
	case protocol.HMAck:
		engine.Metrics.HostAcks.Add(1)
	case protocol.ServAck:
		engine.Metrics.ServerAcks.Add(1)
	case protocol.ServNak:
		engine.Metrics.ServerNaks.Add(1)
	}
	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"%s for notice %s from %s\n", ack.Kind, ack.UID, from)
}

// Notices that fail verification are still delivered, marked untrusted
func (engine *Engine) authenticate(ctx context.Context, notice *protocol.Notice, from netip.AddrPort) (status protocol.AuthStatus) {
	switch {
	case !notice.Auth:
		status = protocol.AuthNo
	case engine.verifier == nil:
		status = protocol.AuthFailed
	default:
		status = engine.verifier.Verify(ctx, notice, from)
	}

	switch status {
	case protocol.AuthYes:
		engine.Metrics.AuthYes.Add(1)
	case protocol.AuthNo:
		engine.Metrics.AuthNo.Add(1)
	default:
		engine.Metrics.AuthFailed.Add(1)
	}
	return
}

// Header-only CLIENTACK carrying the delivered notice's uid
func (engine *Engine) acknowledge(ctx context.Context, notice *protocol.Notice, to netip.AddrPort) {
	ack := &protocol.Notice{
		Kind:          protocol.ClientAck,
		UID:           notice.UID,
		Port:          engine.transport.LocalAddr().Port(),
		Class:         notice.Class,
		Instance:      notice.Instance,
		Opcode:        notice.Opcode,
		Sender:        notice.Sender,
		Recipient:     notice.Recipient,
		DefaultFormat: notice.DefaultFormat,
		MultiNotice:   notice.MultiNotice,
		MultiUID:      notice.MultiUID,
	}
	packet, err := ack.Encode()
	if err == nil {
		err = engine.transport.SendTo(ctx, packet, to)
	}
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"failed to acknowledge notice %s to %s: %v\n", notice.UID, to, err)
		return
	}
	engine.Metrics.ClientAcks.Add(1)
}
