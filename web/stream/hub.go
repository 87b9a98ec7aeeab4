package stream

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/modix-panel/modix/logger"

	"go.uber.org/atomic"
)

const subscriberBacklog = 256

// Line is one log line with its per-workload monotonic sequence number.
// Subscribers use gaps in Seq to detect drops after a slow consumer is
// shed.
type Line struct {
	Seq  int64  `json:"seq"`
	Text string `json:"text"`
}

// Opener attaches to the live log channel of a workload.
type Opener func(ctx context.Context, workloadID string) (io.ReadCloser, error)

// Hub fans a workload's log channel out to any number of subscribers.
// One reader per workload is kept while at least one subscriber is
// attached; the source is released when the last one leaves.
type Hub struct {
	open Opener

	mu    sync.Mutex
	tails map[string]*tail
}

func NewHub(open Opener) *Hub {
	return &Hub{open: open, tails: make(map[string]*tail)}
}

type tail struct {
	workloadID string
	source     io.ReadCloser
	cancel     context.CancelFunc
	seq        atomic.Int64

	mu     sync.Mutex
	subs   map[chan Line]struct{}
	closed bool
}

// Subscribe attaches to the named workload's log stream. The returned
// cancel func must be called when the subscriber is done; the channel
// closes when the source ends or the subscriber falls too far behind.
func (h *Hub) Subscribe(workloadID string) (<-chan Line, func(), error) {
	h.mu.Lock()
	t, ok := h.tails[workloadID]
	if !ok {
		// The source is shared between subscribers, so its lifetime is
		// bound to the tail, never to the request that first opened it.
		sctx, scancel := context.WithCancel(context.Background())
		source, err := h.open(sctx, workloadID)
		if err != nil {
			scancel()
			h.mu.Unlock()
			return nil, nil, err
		}
		t = &tail{
			workloadID: workloadID,
			source:     source,
			cancel:     scancel,
			subs:       make(map[chan Line]struct{}),
		}
		h.tails[workloadID] = t
		go h.run(t)
	}
	h.mu.Unlock()

	ch := make(chan Line, subscriberBacklog)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	cancel := func() { h.unsubscribe(t, ch) }
	return ch, cancel, nil
}

func (h *Hub) unsubscribe(t *tail, ch chan Line) {
	t.mu.Lock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	empty := len(t.subs) == 0 && !t.closed
	t.mu.Unlock()

	if empty {
		// Last subscriber left; release the source. The run loop
		// finishes on the read error and removes the tail.
		t.cancel()
		_ = t.source.Close()
	}
}

func (h *Hub) run(t *tail) {
	scanner := bufio.NewScanner(t.source)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := Line{Seq: t.seq.Inc(), Text: scanner.Text()}
		t.mu.Lock()
		for ch := range t.subs {
			select {
			case ch <- line:
			default:
				// Slow subscriber; shed it instead of stalling the
				// workload read.
				delete(t.subs, ch)
				close(ch)
				logger.Debugf("log hub %s: dropped slow subscriber", t.workloadID)
			}
		}
		t.mu.Unlock()
	}

	t.cancel()
	_ = t.source.Close()

	t.mu.Lock()
	t.closed = true
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()

	h.mu.Lock()
	if h.tails[t.workloadID] == t {
		delete(h.tails, t.workloadID)
	}
	h.mu.Unlock()
}

// Broadcaster fans periodic host status samples out to subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan any]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan any]struct{})}
}

func (b *Broadcaster) Subscribe() (<-chan any, func()) {
	ch := make(chan any, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// Publish delivers the sample to every subscriber that can take it;
// slow subscribers miss samples rather than blocking the publisher.
func (b *Broadcaster) Publish(v any) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
	b.mu.Unlock()
}
