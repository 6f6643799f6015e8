// Package membership implements component G: CRUD over a team's roster,
// expressed as a full-snapshot addressable list event (kind 30000) rather
// than a delta log. Every mutation is prepared as an unsigned template;
// the caller signs and publishes it through relaypool/publish.
package membership

import (
	"context"
	"errors"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/addressable"
	"github.com/fitforge/fitcore/internal/nostrevent"
	"github.com/fitforge/fitcore/internal/relaypool"
	"github.com/fitforge/fitcore/internal/team"
	"github.com/fitforge/fitcore/internal/wire"
)

// ErrStaleList is returned when a caller's reference list has been
// superseded by a newer observed version (spec §7 Consistency errors).
var ErrStaleList = errors.New("membership: caller's list is stale, refresh before preparing a mutation")

// List is the parsed view of a kind-30000 membership snapshot.
type List struct {
	TeamDTag  string
	Captain   string
	Members   []string // hex pubkeys, captain always included
	Event     *nostr.Event
	CreatedAt nostr.Timestamp
}

func dTag(teamDTag string) string { return teamDTag + "-members" }

// Has reports whether pubkey is present in the list.
func (l List) Has(pubkey string) bool {
	for _, m := range l.Members {
		if m == pubkey {
			return true
		}
	}
	return false
}

// Service exposes membership-list operations against the shared
// addressable store and relay pool.
type Service struct {
	store *addressable.Store
	pool  *relaypool.Pool
}

// New constructs a Service.
func New(store *addressable.Store, pool *relaypool.Pool) *Service {
	return &Service{store: store, pool: pool}
}

// parseList converts a stored kind-30000 event into a List.
func parseList(ev *nostr.Event) List {
	var members []string
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "p" {
			members = append(members, t[1])
		}
	}
	return List{
		TeamDTag:  teamDTagFromListDTag(wire.DTag(ev)),
		Captain:   ev.PubKey,
		Members:   members,
		Event:     ev,
		CreatedAt: ev.CreatedAt,
	}
}

func teamDTagFromListDTag(listDTag string) string {
	const suffix = "-members"
	if len(listDTag) > len(suffix) && listDTag[len(listDTag)-len(suffix):] == suffix {
		return listDTag[:len(listDTag)-len(suffix)]
	}
	return listDTag
}

// GetList returns the latest observed membership list for teamDTag under
// captain, first consulting the local addressable cache and, if absent,
// querying the pool directly. Returns (List{}, false) if none has ever
// been observed — callers must treat that as "no roster yet", not "empty
// roster" (spec §3). captainHex may also be given as a bech32 npub; it is
// normalized to hex before lookup.
func (s *Service) GetList(ctx context.Context, captainHex, teamDTag string) (List, bool) {
	if h, err := team.ToHex(captainHex); err == nil {
		captainHex = h
	}
	coord := wire.Coordinate{Pubkey: captainHex, Kind: wire.KindMembershipList, DTag: dTag(teamDTag)}
	if ev := s.store.Get(coord); ev != nil {
		return parseList(ev), true
	}
	if s.pool == nil {
		return List{}, false
	}
	events := s.pool.FetchEvents(ctx, 5*time.Second, nostr.Filter{
		Authors: []string{captainHex},
		Kinds:   []int{wire.KindMembershipList},
		Tags:    nostr.TagMap{"d": []string{dTag(teamDTag)}},
		Limit:   1,
	})
	var latest *nostr.Event
	for _, ev := range events {
		if latest == nil || wire.Supersedes(ev, latest) {
			latest = ev
		}
	}
	if latest == nil {
		return List{}, false
	}
	s.store.Put(latest)
	return parseList(latest), true
}

// IsMember reports whether pubkey is present in list.
func IsMember(list List, pubkey string) bool {
	return list.Has(pubkey)
}

// checkFresh returns ErrStaleList if a newer version of list's coordinate
// has since been observed in the store.
func (s *Service) checkFresh(list List) error {
	if list.Event == nil {
		return nil
	}
	coord := wire.CoordinateOf(list.Event)
	current := s.store.Get(coord)
	if current != nil && current.ID != list.Event.ID && wire.Supersedes(current, list.Event) {
		return ErrStaleList
	}
	return nil
}

// PrepareAdd returns an unsigned replacement list with newMember appended,
// or (Template{}, false) if newMember is already present. The caller must
// sign with the captain's key and publish; per spec §4.G this is
// idempotent at the list level.
func (s *Service) PrepareAdd(list List, newMember string) (nostrevent.Template, bool, error) {
	if err := s.checkFresh(list); err != nil {
		return nostrevent.Template{}, false, err
	}
	if list.Has(newMember) {
		return nostrevent.Template{}, false, nil
	}
	return s.buildReplacement(list, append(append([]string{}, list.Members...), newMember)), true, nil
}

// PrepareRemove mirrors PrepareAdd: returns (Template{}, false, nil) if
// member is not present.
func (s *Service) PrepareRemove(list List, member string) (nostrevent.Template, bool, error) {
	if err := s.checkFresh(list); err != nil {
		return nostrevent.Template{}, false, err
	}
	if !list.Has(member) {
		return nostrevent.Template{}, false, nil
	}
	next := make([]string, 0, len(list.Members))
	for _, m := range list.Members {
		if m != member {
			next = append(next, m)
		}
	}
	return s.buildReplacement(list, next), true, nil
}

func (s *Service) buildReplacement(list List, members []string) nostrevent.Template {
	tags := make(nostr.Tags, 0, len(members)+1)
	tags = append(tags, nostr.Tag{"d", dTag(list.TeamDTag)})
	for _, m := range members {
		tags = append(tags, nostr.Tag{"p", m})
	}
	return nostrevent.Template{
		Kind: wire.KindMembershipList,
		Tags: tags,
	}
}

// NewList builds the initial membership-list template for a freshly
// created team, with captain as its sole member (spec scenario S1).
func NewList(teamDTag, captainHex string) nostrevent.Template {
	return nostrevent.Template{
		Kind: wire.KindMembershipList,
		Tags: nostr.Tags{
			{"d", dTag(teamDTag)},
			{"p", captainHex},
		},
	}
}
