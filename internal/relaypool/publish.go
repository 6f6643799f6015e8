package relaypool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/relay"
	"github.com/fitforge/fitcore/internal/wire"
)

// ErrPublishFailed means no relay accepted the event (spec §7).
var ErrPublishFailed = errors.New("relaypool: no relay accepted the event")

type ackResult struct {
	url    string
	ok     bool
	reason string
}

// publishWaiter collects OK acks for one in-flight publish.
type publishWaiter struct {
	mu      sync.Mutex
	results map[string]ackResult
	notify  chan struct{}
}

func newPublishWaiter(expected int) *publishWaiter {
	return &publishWaiter{
		results: make(map[string]ackResult, expected),
		notify:  make(chan struct{}, expected+1),
	}
}

func (w *publishWaiter) deliver(r ackResult) {
	w.mu.Lock()
	w.results[r.url] = r
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *publishWaiter) snapshot() map[string]ackResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]ackResult, len(w.results))
	for k, v := range w.results {
		out[k] = v
	}
	return out
}

// PublishResult is the outcome of Publish: per-relay accept/reject sets
// (spec §4.C, §8 invariant 4).
type PublishResult struct {
	Accepted []string
	Rejected []RejectedRelay
}

// RejectedRelay pairs a relay URL with the reason it did not accept the
// event. "no_ack" means the relay never responded within the deadline.
type RejectedRelay struct {
	URL    string
	Reason string
}

// Publish sends ev to every connected relay and waits up to deadline
// collecting OK acks. A relay that never responds is counted rejected
// with reason "no_ack". Returns ErrPublishFailed if no relay accepted.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event, deadline time.Duration) (PublishResult, error) {
	if deadline <= 0 {
		deadline = 4 * time.Second
	}
	conns := p.snapshot()
	connected := make([]*relay.Conn, 0, len(conns))
	for _, c := range conns {
		if c.State() == relay.Connected {
			connected = append(connected, c)
		}
	}

	frame, err := wire.EncodeEvent(ev)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode event: %w", err)
	}

	waiter := newPublishWaiter(len(connected))
	p.pubMu.Lock()
	p.pubs[ev.ID] = waiter
	p.pubMu.Unlock()
	defer func() {
		p.pubMu.Lock()
		delete(p.pubs, ev.ID)
		p.pubMu.Unlock()
	}()

	for _, c := range connected {
		c.Send(frame)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

waitLoop:
	for {
		if len(waiter.snapshot()) >= len(connected) {
			break
		}
		select {
		case <-ctx.Done():
			break waitLoop
		case <-timer.C:
			break waitLoop
		case <-waiter.notify:
		}
	}

	results := waiter.snapshot()
	res := PublishResult{}
	for _, c := range connected {
		r, got := results[c.URL]
		switch {
		case got && r.ok:
			res.Accepted = append(res.Accepted, c.URL)
		case got:
			res.Rejected = append(res.Rejected, RejectedRelay{URL: c.URL, Reason: r.reason})
		default:
			res.Rejected = append(res.Rejected, RejectedRelay{URL: c.URL, Reason: "no_ack"})
		}
	}

	if len(res.Accepted) == 0 {
		return res, ErrPublishFailed
	}
	return res, nil
}
