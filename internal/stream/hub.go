// Package stream fans annotated JPEG frames out to live viewers as a
// multipart MJPEG response.
package stream

import (
	"sync"
)

// Hub keeps the latest frame and delivers new ones to every subscriber.
// Slow viewers miss intermediate frames; the publisher never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	latest []byte
	err    error
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

func (h *Hub) Publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = frame
	h.err = nil
	for ch := range h.subs {
		offer(ch, frame)
	}
}

// offer replaces any undelivered frame with the new one.
func offer(ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

// Subscribe returns a channel of frames and a cancel func that must be
// called when the viewer goes away. The latest frame, if any, is delivered
// first.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.latest != nil {
		ch <- h.latest
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(ch) })
	}
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SetErr records that the source could not be opened. SetErr(nil) or the
// next Publish clears it.
func (h *Hub) SetErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *Hub) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
