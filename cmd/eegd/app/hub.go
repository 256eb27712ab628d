package app

import (
	"sync"
)

const subscriberQueue = 64

// hub fans console lines and session events out to connected consumers.
// Slow subscribers lose messages rather than stall the publisher.
type hub struct {
	mu   sync.Mutex
	subs map[chan any]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan any]struct{})}
}

func (h *hub) subscribe() chan any {
	ch := make(chan any, subscriberQueue)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

func (h *hub) unsubscribe(ch chan any) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) publish(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
