// Package orderer restores per-account sequence-number ordering of
// synchronization packets received over a transport that can reorder and
// replay. Packets buffered past the ordering timeout are surfaced anyway and
// an out-of-order event fires so the gateway can force a fresh
// synchronization.
package orderer

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/packet"
)

// DefaultTimeout is the default packet ordering timeout.
const DefaultTimeout = 60 * time.Second

// OutOfOrder describes a gap that was not filled within the ordering timeout.
type OutOfOrder struct {
	AccountID              string
	ExpectedSequenceNumber int64
	ActualSequenceNumber   int64
	Packet                 *packet.SyncPacket // oldest buffered packet
	ReceivedAt             time.Time

	// Flushed holds all buffered packets in sequence order. They are still
	// delivered to listeners; the event is diagnostics plus a recovery
	// trigger, not an error.
	Flushed []*packet.SyncPacket
}

// Handler receives out-of-order events.
type Handler func(OutOfOrder)

// Orderer reassembles packet order per account.
type Orderer struct {
	timeout       time.Duration
	checkInterval time.Duration
	handler       Handler
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountQueue

	done     chan struct{}
	stopOnce sync.Once
}

// accountQueue tracks ordering state for one account.
type accountQueue struct {
	expected       int64 // next sequence number to emit
	primed         bool  // expected has been initialized
	buffer         seqHeap
	lastReceivedAt time.Time // refreshed on every buffered packet
}

// Option configures an Orderer.
type Option func(*Orderer)

// WithTimeout overrides the ordering timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orderer) { o.timeout = d }
}

// WithCheckInterval overrides how often the timeout scan runs. Tests use
// small intervals.
func WithCheckInterval(d time.Duration) Option {
	return func(o *Orderer) { o.checkInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orderer) { o.now = now }
}

// New creates a packet orderer reporting gaps to handler.
func New(handler Handler, logger *slog.Logger, opts ...Option) *Orderer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orderer{
		timeout:       DefaultTimeout,
		checkInterval: time.Second,
		handler:       handler,
		logger:        logger,
		now:           time.Now,
		accounts:      make(map[string]*accountQueue),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the timeout scan.
func (o *Orderer) Start() {
	go o.scanLoop()
}

// Stop terminates the timeout scan and clears all queues.
func (o *Orderer) Stop() {
	o.stopOnce.Do(func() { close(o.done) })
	o.mu.Lock()
	o.accounts = make(map[string]*accountQueue)
	o.mu.Unlock()
}

// RestoreOrder ingests one packet and returns the packets that are now in
// order and ready for dispatch. Packets without a sequence number pass
// through immediately.
func (o *Orderer) RestoreOrder(p *packet.SyncPacket) []*packet.SyncPacket {
	seq, ok := p.Seq()
	if !ok {
		return []*packet.SyncPacket{p}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.accounts[p.AccountID]
	if q == nil {
		q = &accountQueue{}
		o.accounts[p.AccountID] = q
	}

	// A synchronization start defines a new sequence baseline; buffered
	// packets from the previous session with lower numbers are stale.
	if p.Type == packet.TypeSyncStarted {
		q.dropBelow(seq)
		q.expected = seq
		q.primed = true
		return q.emit(p, seq)
	}

	if !q.primed {
		q.expected = seq
		q.primed = true
		return q.emit(p, seq)
	}

	switch {
	case seq < q.expected:
		// Already delivered or stale.
		return nil
	case seq == q.expected:
		return q.emit(p, seq)
	default:
		heap.Push(&q.buffer, buffered{seq: seq, packet: p, receivedAt: o.now()})
		q.lastReceivedAt = o.now()
		return nil
	}
}

// emit delivers p and drains any contiguous run buffered behind it.
// Caller holds o.mu.
func (q *accountQueue) emit(p *packet.SyncPacket, seq int64) []*packet.SyncPacket {
	out := []*packet.SyncPacket{p}
	q.expected = seq + 1
	for q.buffer.Len() > 0 {
		top := q.buffer[0]
		if top.seq < q.expected {
			heap.Pop(&q.buffer) // duplicate of something already emitted
			continue
		}
		if top.seq != q.expected {
			break
		}
		heap.Pop(&q.buffer)
		out = append(out, top.packet)
		q.expected = top.seq + 1
	}
	return out
}

// dropBelow discards buffered packets with sequence numbers below seq.
func (q *accountQueue) dropBelow(seq int64) {
	for q.buffer.Len() > 0 && q.buffer[0].seq < seq {
		heap.Pop(&q.buffer)
	}
}

// scanLoop periodically gives up on gaps older than the ordering timeout.
func (o *Orderer) scanLoop() {
	ticker := time.NewTicker(o.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			for _, ev := range o.collectExpired() {
				o.logger.Warn("out of order packet, forcing resynchronization",
					"account_id", ev.AccountID,
					"type", ev.Packet.Type,
					"expected_sn", ev.ExpectedSequenceNumber,
					"actual_sn", ev.ActualSequenceNumber,
				)
				if o.handler != nil {
					o.handler(ev)
				}
			}
		}
	}
}

// collectExpired drains accounts whose oldest gap outlived the timeout.
func (o *Orderer) collectExpired() []OutOfOrder {
	o.mu.Lock()
	defer o.mu.Unlock()

	var events []OutOfOrder
	now := o.now()
	for accountID, q := range o.accounts {
		if q.buffer.Len() == 0 || now.Sub(q.lastReceivedAt) < o.timeout {
			continue
		}

		oldest := q.buffer[0]
		ev := OutOfOrder{
			AccountID:              accountID,
			ExpectedSequenceNumber: q.expected,
			ActualSequenceNumber:   oldest.seq,
			Packet:                 oldest.packet,
			ReceivedAt:             oldest.receivedAt,
		}
		for q.buffer.Len() > 0 {
			b := heap.Pop(&q.buffer).(buffered)
			ev.Flushed = append(ev.Flushed, b.packet)
			q.expected = b.seq + 1
		}
		// Queue state restarts from whatever the server sends next; the
		// resubscribe triggers a fresh synchronizationStarted baseline.
		delete(o.accounts, accountID)
		events = append(events, ev)
	}
	return events
}

// buffered is one out-of-order packet awaiting its predecessors.
type buffered struct {
	seq        int64
	packet     *packet.SyncPacket
	receivedAt time.Time
}

// seqHeap is a min-heap ordered by sequence number.
type seqHeap []buffered

func (h seqHeap) Len() int           { return len(h) }
func (h seqHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h seqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any)        { *h = append(*h, x.(buffered)) }

func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
