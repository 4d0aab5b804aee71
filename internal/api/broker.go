package api

import (
	"sync"
)

// Run lifecycle events published per run id.
const (
	EventRunStarted   = "run.started"
	EventRunImproved  = "run.improved"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// terminal reports whether no further events follow evt for its run.
func (e SSEEvent) terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

// Publish never blocks. A subscriber with a full buffer misses progress
// events, but terminal events always arrive.
func (b *Broker) Publish(runID string, evt SSEEvent) {
	b.mu.Lock()
	for ch := range b.subs[runID] {
		deliver(ch, evt)
	}
	b.mu.Unlock()
}

func (b *Broker) Close() error { return nil }

// deliver sends evt without blocking. When ch is full a terminal event
// evicts the oldest queued one. The caller must be the only sender on ch.
func deliver(ch chan SSEEvent, evt SSEEvent) {
	select {
	case ch <- evt:
		return
	default:
	}
	if !evt.terminal() {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}
