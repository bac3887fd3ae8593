// Bounded FIFO of received notices waiting for the caller
package queue

import (
	"context"
	"net/netip"
	"sync"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/pkg/protocol"

	"github.com/pbnjay/memory"
)

type Item struct {
	Notice *protocol.Notice
	From   netip.AddrPort
	Size   int // datagram bytes, counted against the byte budget
}

type Config struct {
	MaxNotices int
	MaxBytes   uint64 // 0 derives a budget from free system memory
}

type Inbox struct {
	Namespace []string
	Metrics   *MetricStorage

	mutex    sync.Mutex
	items    []Item
	bytes    uint64
	maxItems int
	maxBytes uint64
}

func New(namespace []string, cfg Config) (inbox *Inbox) {
	inbox = &Inbox{
		Namespace: append(append([]string(nil), namespace...), global.NSQueue),
		Metrics:   &MetricStorage{},
		maxItems:  cfg.MaxNotices,
		maxBytes:  cfg.MaxBytes,
	}
	if inbox.maxItems <= 0 {
		inbox.maxItems = global.DefaultMaxQueuedNotices
	}
	if inbox.maxBytes == 0 {
		inbox.maxBytes = DefaultByteBudget()
	}
	return
}

// A small share of free memory, bounded to a sane range
func DefaultByteBudget() (budget uint64) {
	const floor uint64 = 1 << 20
	budget = global.DefaultMaxQueueBytes

	availMem := memory.FreeMemory()
	if availMem == 0 {
		return
	}
	budget = min(availMem/64, global.DefaultMaxQueueBytes)
	budget = max(budget, floor)
	return
}

// Appends a notice. Notices that would exceed either bound are dropped.
func (inbox *Inbox) Push(ctx context.Context, item Item) (accepted bool) {
	inbox.mutex.Lock()
	defer inbox.mutex.Unlock()

	if len(inbox.items) >= inbox.maxItems || inbox.bytes+uint64(item.Size) > inbox.maxBytes {
		inbox.Metrics.Dropped.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"receive queue full (%d notices, %d bytes), dropping notice %s from %s\n",
			len(inbox.items), inbox.bytes, item.Notice.UID, item.From)
		return
	}

	inbox.items = append(inbox.items, item)
	inbox.bytes += uint64(item.Size)
	inbox.Metrics.Pushed.Add(1)
	inbox.Metrics.Depth.Store(uint64(len(inbox.items)))
	inbox.Metrics.Bytes.Store(inbox.bytes)
	accepted = true
	return
}

// Removes the oldest notice
func (inbox *Inbox) Pop() (item Item, ok bool) {
	inbox.mutex.Lock()
	defer inbox.mutex.Unlock()

	if len(inbox.items) == 0 {
		return
	}
	item = inbox.items[0]
	inbox.items[0] = Item{}
	inbox.items = inbox.items[1:]
	inbox.bytes -= uint64(item.Size)
	ok = true

	inbox.Metrics.Popped.Add(1)
	inbox.Metrics.Depth.Store(uint64(len(inbox.items)))
	inbox.Metrics.Bytes.Store(inbox.bytes)
	return
}

func (inbox *Inbox) Len() int {
	inbox.mutex.Lock()
	defer inbox.mutex.Unlock()
	return len(inbox.items)
}

func (inbox *Inbox) Bytes() uint64 {
	inbox.mutex.Lock()
	defer inbox.mutex.Unlock()
	return inbox.bytes
}
