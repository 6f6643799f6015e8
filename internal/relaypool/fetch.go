package relaypool

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// FetchEvents runs a bounded subscription to completion and returns the
// de-duplicated events collected before EOSE convergence or deadline.
// Convenience wrapper over Subscribe for the common synchronous case used
// by §4.G/§4.H/§4.I query methods.
func (p *Pool) FetchEvents(ctx context.Context, deadline time.Duration, filters ...nostr.Filter) []*nostr.Event {
	var mu sync.Mutex
	var events []*nostr.Event

	h := p.Subscribe(ctx, deadline, 0, func(ev *nostr.Event, _ string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, filters...)

	<-h.Done()

	mu.Lock()
	defer mu.Unlock()
	return events
}
