package relaypool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/relay"
	"github.com/fitforge/fitcore/internal/wire"
)

// Handle is a live subscription. Exactly one handler invocation happens per
// distinct event id across the handle's lifetime (spec §8 invariant 3).
type Handle struct {
	id      string
	filters []nostr.Filter
	handler Handler

	seen seenSet

	mu sync.Mutex
	// eoseFrom is keyed by the relay URLs connected at subscribe time,
	// fixed for the handle's lifetime; the value flips true once that
	// relay sends EOSE. Late-connecting relays are never added, so they
	// can't block convergence, but they also can't satisfy it.
	eoseFrom map[string]bool

	pool *Pool

	done   chan struct{}
	closed bool
}

func newSubID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Subscribe issues filter to every currently-connected relay and to any
// relay that connects before the handle is closed. handler is invoked
// synchronously, in relay-arrival order, once per distinct event id.
//
// The returned Handle resolves (its Done channel closes) when the caller
// closes it, the deadline elapses, or EOSE convergence is reached: every
// relay that was Connected at subscribe time has sent EOSE for this
// subscription and at least minRelays of them have (spec §4.C).
func (p *Pool) Subscribe(ctx context.Context, deadline time.Duration, minRelays int, handler Handler, filters ...nostr.Filter) *Handle {
	h := &Handle{
		id:       newSubID(),
		filters:  filters,
		handler:  handler,
		seen:     newSeenSet(),
		eoseFrom: make(map[string]bool),
		pool:     p,
		done:     make(chan struct{}),
	}

	p.subMu.Lock()
	p.subs[h.id] = h
	p.subMu.Unlock()

	conns := p.snapshot()
	expected := 0
	for _, c := range conns {
		// Relays not yet Connected get the REQ from replaySubscriptions
		// when they connect, and are not part of the EOSE set.
		if c.State() != relay.Connected {
			continue
		}
		expected++
		h.eoseFrom[c.URL] = false
		frame, err := wire.EncodeReq(h.id, filters...)
		if err != nil {
			continue
		}
		c.Send(frame)
	}
	if minRelays <= 0 {
		minRelays = (expected + 1) / 2 // ceil(N/2)
		if minRelays < 2 {
			minRelays = 2
		}
		if minRelays > expected {
			minRelays = expected
		}
	}

	if deadline <= 0 {
		deadline = 10 * time.Second
	}

	go h.watch(ctx, deadline, expected, minRelays)
	return h
}

// watch resolves the handle on deadline or EOSE convergence.
func (h *Handle) watch(ctx context.Context, deadline time.Duration, expected, minRelays int) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return
		case <-timer.C:
			h.Close()
			return
		case <-ticker.C:
			// No relays connected at all: nothing to converge on, so the
			// handle stays open until deadline/cancel and late connects can
			// still deliver events (partial connectivity is not an error).
			if expected > 0 && h.eoseConverged(minRelays) {
				h.Close()
				return
			}
		}
	}
}

// eoseConverged reports whether every relay connected at subscribe time has
// sent EOSE and at least minRelays of them were in that set (spec §4.C).
// A count of true flags is not enough on its own: every entry in the fixed
// expected set must be true, or relays still mid-query would go unwaited.
func (h *Handle) eoseConverged(minRelays int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.eoseFrom) < minRelays {
		return false
	}
	for _, got := range h.eoseFrom {
		if !got {
			return false
		}
	}
	return true
}

func (h *Handle) markEOSE(relayURL string) {
	h.mu.Lock()
	if _, expected := h.eoseFrom[relayURL]; expected {
		h.eoseFrom[relayURL] = true
	}
	h.mu.Unlock()
}

func (h *Handle) deliver(ev *nostr.Event, relayURL string) {
	if !h.seen.seeOnce(ev.ID) {
		return
	}
	h.handler(ev, relayURL)
}

// Done returns a channel that closes when the handle has resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close unsubscribes: emits CLOSE on every connection and releases the
// seen-id set. Safe to call multiple times.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.pool.subMu.Lock()
	delete(h.pool.subs, h.id)
	h.pool.subMu.Unlock()

	frame, err := wire.EncodeClose(h.id)
	if err == nil {
		for _, c := range h.pool.snapshot() {
			c.Send(frame)
		}
	}
	close(h.done)
}
