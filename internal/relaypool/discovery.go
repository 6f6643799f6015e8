package relaypool

import (
	"context"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

const kindRelayList = 10002

// RelayHint is one relay entry from a member's NIP-65 relay list (kind
// 10002), telling a captain's client where else to look for that member's
// events beyond the team's static default_relays fleet.
type RelayHint struct {
	Pubkey   string
	Relay    string
	CanRead  bool
	CanWrite bool
}

// DiscoverRelayHints fetches pubkey's most recent kind-10002 relay list and
// parses its "r" tags into hints, newest event only (NIP-65 is itself
// addressable per-author). Returns nil if the author has never published
// one.
func (p *Pool) DiscoverRelayHints(ctx context.Context, pubkey string, deadline time.Duration) []RelayHint {
	events := p.FetchEvents(ctx, deadline, nostr.Filter{
		Kinds:   []int{kindRelayList},
		Authors: []string{pubkey},
		Limit:   1,
	})
	if len(events) == 0 {
		return nil
	}

	newest := events[0]
	for _, ev := range events[1:] {
		if ev.CreatedAt > newest.CreatedAt {
			newest = ev
		}
	}
	return parseRelayHints(newest)
}

func parseRelayHints(ev *nostr.Event) []RelayHint {
	hints := make([]RelayHint, 0, len(ev.Tags))
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		relay := strings.TrimSpace(tag[1])
		if relay == "" {
			continue
		}

		hint := RelayHint{Pubkey: ev.PubKey, Relay: relay, CanRead: true, CanWrite: true}
		if len(tag) >= 3 {
			switch strings.ToLower(tag[2]) {
			case "read":
				hint.CanWrite = false
			case "write":
				hint.CanRead = false
			}
		}
		hints = append(hints, hint)
	}
	return hints
}
