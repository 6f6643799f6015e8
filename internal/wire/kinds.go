package wire

import "github.com/nbd-wtf/go-nostr"

// Event kinds recognized by the core (spec §6).
const (
	KindWorkout          = 1301
	KindMembershipList   = 30000
	KindLeague           = 30100
	KindEventDefinition  = 30101
	KindTeamDefinition   = 33404
	KindEventJoinRequest = 1105 // hint to captains only; never gates scoring
)

// IsAddressable reports whether kind falls in a parameterized-replaceable
// range (NIP-01 kind 30000-39999) or is one of the fixed addressable kinds
// fitcore defines.
func IsAddressable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// Coordinate is the logical identity of an addressable event:
// (pubkey, kind, d_tag). Two events sharing a Coordinate are two versions
// of the same object; see addressable.Store for the supersede rule.
type Coordinate struct {
	Pubkey string
	Kind   int
	DTag   string
}

// DTag returns the value of the first "d" tag, or "" if none is present.
func DTag(ev *nostr.Event) string {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "d" {
			return t[1]
		}
	}
	return ""
}

// CoordinateOf builds the addressable coordinate for ev. Only meaningful
// when IsAddressable(ev.Kind) is true.
func CoordinateOf(ev *nostr.Event) Coordinate {
	return Coordinate{Pubkey: ev.PubKey, Kind: ev.Kind, DTag: DTag(ev)}
}

// TagValue returns the first value of the first tag whose key matches name,
// or "" if absent.
func TagValue(ev *nostr.Event, name string) string {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// Supersedes reports whether incoming should replace stored under the
// addressable replace rule: larger created_at wins; on a tie, the
// lexicographically smaller id wins (spec §3, §8 invariant 2).
func Supersedes(incoming, stored *nostr.Event) bool {
	if stored == nil {
		return true
	}
	if incoming.CreatedAt != stored.CreatedAt {
		return incoming.CreatedAt > stored.CreatedAt
	}
	return incoming.ID < stored.ID
}
