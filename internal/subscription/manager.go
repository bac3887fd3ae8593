// Local subscription set kept in step with the server. The set only
// changes after the server acknowledges a request.
package subscription

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"zephyr/internal/engine"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/pkg/protocol"
)

// Placeholder recipient replaced with the session sender
const SelfRecipient string = "%me%"

// Request/acknowledge round trips
type Sender interface {
	SendAndAwait(ctx context.Context, notice *protocol.Notice) (engine.Outcome, error)
}

type Config struct {
	Sender       string // principal substituted for SelfRecipient
	Authenticate bool   // sign control requests
	MaxPacketLen int
	Reserve      int // bytes kept free in each request for the checksum
}

type Manager struct {
	Namespace []string

	sender Sender
	cfg    Config

	mutex sync.Mutex
	subs  map[protocol.Subscription]struct{}
}

func New(namespace []string, sender Sender, cfg Config) (manager *Manager) {
	if cfg.MaxPacketLen <= 0 {
		cfg.MaxPacketLen = protocol.MaxPacketLen
	}
	manager = &Manager{
		Namespace: append(append([]string(nil), namespace...), global.NSSubs),
		sender:    sender,
		cfg:       cfg,
		subs:      make(map[protocol.Subscription]struct{}),
	}
	return
}

// Subscribes to each triple. Batches confirmed before a failure stay applied.
func (manager *Manager) Add(ctx context.Context, subs ...protocol.Subscription) (err error) {
	err = manager.request(ctx, protocol.OpSubscribe, manager.expand(subs), func(batch []protocol.Subscription) {
		for _, sub := range batch {
			manager.subs[sub] = struct{}{}
		}
	})
	return
}

// Unsubscribes from each triple
func (manager *Manager) Remove(ctx context.Context, subs ...protocol.Subscription) (err error) {
	err = manager.request(ctx, protocol.OpUnsubscribe, manager.expand(subs), func(batch []protocol.Subscription) {
		for _, sub := range batch {
			delete(manager.subs, sub)
		}
	})
	return
}

// Drops every subscription held by this session on the server
func (manager *Manager) CancelAll(ctx context.Context) (err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSSubs)

	_, err = manager.sender.SendAndAwait(ctx, manager.controlNotice(protocol.OpCancelSubs, nil))
	if err != nil {
		err = fmt.Errorf("failed to cancel subscriptions: %w", err)
		return
	}

	manager.mutex.Lock()
	clear(manager.subs)
	manager.mutex.Unlock()

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "cancelled all subscriptions\n")
	return
}

// Retrieves the server's copy of this session's subscriptions and adopts it
func (manager *Manager) List(ctx context.Context) (subs []protocol.Subscription, err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSSubs)

	outcome, err := manager.sender.SendAndAwait(ctx, manager.controlNotice(protocol.OpRetrieveSubs, nil))
	if err != nil {
		err = fmt.Errorf("failed to retrieve subscriptions: %w", err)
		return
	}
	if outcome.Ack == nil {
		err = fmt.Errorf("%w: retrieval acknowledged without a subscription table", protocol.ErrMalformedNotice)
		return
	}
	if outcome.Ack.Auth && outcome.Ack.Authenticated != protocol.AuthYes {
		err = fmt.Errorf("%w: subscription table checksum did not verify (%s)", protocol.ErrMalformedNotice, outcome.Ack.Authenticated)
		return
	}

	subs, err = protocol.ParseSubscriptionTable(outcome.Ack.Body)
	if err != nil {
		err = fmt.Errorf("failed to parse subscription table: %w", err)
		return
	}
	sortSubscriptions(subs)

	manager.mutex.Lock()
	clear(manager.subs)
	for _, sub := range subs {
		manager.subs[sub] = struct{}{}
	}
	manager.mutex.Unlock()

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"server holds %d subscription(s)\n", len(subs))
	return
}

// Confirmed subscriptions, sorted
func (manager *Manager) Local() (subs []protocol.Subscription) {
	manager.mutex.Lock()
	for sub := range manager.subs {
		subs = append(subs, sub)
	}
	manager.mutex.Unlock()
	sortSubscriptions(subs)
	return
}

func (manager *Manager) request(ctx context.Context, opcode string, subs []protocol.Subscription, apply func([]protocol.Subscription)) (err error) {
	ctx = logctx.AppendCtxTag(ctx, global.NSSubs)

	for _, batch := range manager.batches(subs) {
		_, err = manager.sender.SendAndAwait(ctx, manager.controlNotice(opcode, batch))
		if err != nil {
			err = fmt.Errorf("%s request for %d subscription(s) failed: %w", opcode, len(batch), err)
			return
		}

		manager.mutex.Lock()
		apply(batch)
		manager.mutex.Unlock()

		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
			"%s confirmed for %v\n", opcode, batch)
	}
	return
}

func (manager *Manager) controlNotice(opcode string, subs []protocol.Subscription) *protocol.Notice {
	return &protocol.Notice{
		Kind:     protocol.Acked,
		Auth:     manager.cfg.Authenticate,
		Class:    protocol.ControlClass,
		Instance: protocol.ControlInstance,
		Opcode:   opcode,
		Sender:   manager.cfg.Sender,
		Body:     protocol.SubscriptionFields(subs),
	}
}

// Splits subscriptions so each request fits one packet. A triple too
// large for any packet travels alone and is fragmented by the engine.
func (manager *Manager) batches(subs []protocol.Subscription) (batches [][]protocol.Subscription) {
	header, err := manager.controlNotice(protocol.OpUnsubscribe, nil).Encode()
	budget := manager.cfg.MaxPacketLen - manager.cfg.Reserve
	if err == nil {
		budget -= len(header)
	}

	var current []protocol.Subscription
	used := 0
	for _, sub := range subs {
		cost := len(sub.Class) + len(sub.Instance) + len(sub.Recipient) + 3
		if len(current) > 0 && used+cost > budget {
			batches = append(batches, current)
			current, used = nil, 0
		}
		current = append(current, sub)
		used += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return
}

func (manager *Manager) expand(subs []protocol.Subscription) (expanded []protocol.Subscription) {
	expanded = make([]protocol.Subscription, len(subs))
	for index, sub := range subs {
		if sub.Recipient == SelfRecipient {
			sub.Recipient = manager.cfg.Sender
		}
		expanded[index] = sub
	}
	return
}

func sortSubscriptions(subs []protocol.Subscription) {
	slices.SortFunc(subs, func(a, b protocol.Subscription) int {
		return cmp.Or(
			cmp.Compare(a.Class, b.Class),
			cmp.Compare(a.Instance, b.Instance),
			cmp.Compare(a.Recipient, b.Recipient),
		)
	})
}
