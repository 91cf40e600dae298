package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// viewer is one SSE connection watching one play session. Its channel is
// closed when the connection ends or the session expires, whichever comes
// first; only the Broadcaster closes it.
type viewer struct {
	ch        chan string
	sessionID string
}

// Broadcaster fans session events out to SSE viewers. Every viewer
// belongs to exactly one session, and events published for a session reach
// only its viewers. Sends never block: a viewer that falls sseChannelBuffer
// events behind misses the rest until it drains.
type Broadcaster struct {
	mu      sync.RWMutex
	viewers map[*viewer]struct{}
	dropped int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		viewers: make(map[*viewer]struct{}),
	}
}

// Register adds a viewer of a session and returns it.
func (b *Broadcaster) Register(sessionID string) *viewer {
	v := &viewer{
		ch:        make(chan string, sseChannelBuffer),
		sessionID: sessionID,
	}
	b.mu.Lock()
	b.viewers[v] = struct{}{}
	b.mu.Unlock()
	return v
}

// Unregister removes a viewer and closes its channel.
func (b *Broadcaster) Unregister(v *viewer) {
	b.mu.Lock()
	if _, ok := b.viewers[v]; ok {
		delete(b.viewers, v)
		close(v.ch)
	}
	b.mu.Unlock()
}

// Close disconnects every viewer of a session. Used when the session
// expires; the viewers' ServeSSE loops return on the closed channel.
func (b *Broadcaster) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for v := range b.viewers {
		if v.sessionID == sessionID {
			delete(b.viewers, v)
			close(v.ch)
		}
	}
}

// Send queues data for a single viewer. It reports false when the viewer
// is no longer registered or its buffer is full.
func (b *Broadcaster) Send(v *viewer, data string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.viewers[v]; !ok {
		return false
	}
	select {
	case v.ch <- data:
		return true
	default:
		b.dropped++
		return false
	}
}

// Broadcast sends data to every viewer of a session. Viewers whose buffer
// is full miss the message.
func (b *Broadcaster) Broadcast(sessionID, data string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for v := range b.viewers {
		if v.sessionID != sessionID {
			continue
		}
		select {
		case v.ch <- data:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many messages slow viewers have missed.
func (b *Broadcaster) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// ViewerCount returns the number of connected viewers of a session.
func (b *Broadcaster) ViewerCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for v := range b.viewers {
		if v.sessionID == sessionID {
			n++
		}
	}
	return n
}

// ServeSSE streams a session's events until the client goes away or the
// session is closed. onConnect runs after registration and may queue an
// initial message with Send; the session can expire at any point, so it
// must not write to the viewer's channel directly.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, sessionID string, onConnect func(v *viewer), onDisconnect func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	v := b.Register(sessionID)
	defer func() {
		b.Unregister(v)
		if onDisconnect != nil {
			onDisconnect()
		}
	}()

	if onConnect != nil {
		onConnect(v)
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-v.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
