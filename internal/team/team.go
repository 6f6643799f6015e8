// Package team implements the team-definition half of the data model
// (kind 33404, spec §3): construction, parsing, and the captain-ownership
// rule that every mutation must satisfy.
package team

import (
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/fitforge/fitcore/internal/nostrevent"
	"github.com/fitforge/fitcore/internal/wire"
)

// ErrNotCaptain is raised when an action against a team is attempted by a
// pubkey other than the team's captain (spec §7 Authorization errors).
var ErrNotCaptain = errors.New("team: action requires the team captain's key")

// Definition is the parsed view of a kind-33404 event.
type Definition struct {
	DTag        string
	Name        string
	About       string
	Captain     string // hex pubkey
	Public      bool
	Activity    string
	Location    string
	ListSupport bool
	Event       *nostr.Event
}

// Params describes a new team for New.
type Params struct {
	Name     string
	About    string
	Public   bool
	Activity string
	Location string
}

// New builds an unsigned team-definition template for captainHexOrNpub.
// Accepts either hex or bech32 npub (spec §9 Open Question); the tag is
// always stored as hex.
func New(params Params, captainHexOrNpub string, now time.Time) (nostrevent.Template, error) {
	captainHex, err := ToHex(captainHexOrNpub)
	if err != nil {
		return nostrevent.Template{}, err
	}

	dTag := nostrevent.TeamDTag(params.Name, now)

	tags := nostr.Tags{
		{"d", dTag},
		{"name", params.Name},
		{"about", params.About},
		{"captain", captainHex},
		{"public", strconv.FormatBool(params.Public)},
		{"t", "team"},
		{"t", "fitness"},
	}
	if params.Activity != "" {
		tags = append(tags, nostr.Tag{"activity", params.Activity})
	}
	if params.Location != "" {
		tags = append(tags, nostr.Tag{"location", params.Location})
	}

	return nostrevent.Template{
		Kind:    wire.KindTeamDefinition,
		Tags:    tags,
		Content: "{}",
	}, nil
}

// Parse extracts a Definition from a kind-33404 event. Returns an error
// only if ev is not a team-definition event; it does not check that ev is
// signed by the pubkey its own "captain" tag names. Ownership is enforced
// by the caller checking IsAuthoritative and discarding events that fail
// it, not by Parse itself refusing to parse.
func Parse(ev *nostr.Event) (Definition, error) {
	if ev.Kind != wire.KindTeamDefinition {
		return Definition{}, errors.New("team: not a team-definition event")
	}
	d := Definition{
		DTag:     wire.DTag(ev),
		Name:     wire.TagValue(ev, "name"),
		About:    wire.TagValue(ev, "about"),
		Captain:  wire.TagValue(ev, "captain"),
		Activity: wire.TagValue(ev, "activity"),
		Location: wire.TagValue(ev, "location"),
		Event:    ev,
	}
	d.Public = wire.TagValue(ev, "public") == "true"
	d.ListSupport = wire.TagValue(ev, "list_support") == "true"
	return d, nil
}

// IsAuthoritative reports whether ev is validly owned: signed by the same
// pubkey named in its own "captain" tag (self-consistent) AND equal to the
// pubkey the caller already trusts as captain, when known.
func IsAuthoritative(ev *nostr.Event, knownCaptainHex string) bool {
	if ev.PubKey != wire.TagValue(ev, "captain") {
		return false
	}
	if knownCaptainHex != "" && ev.PubKey != knownCaptainHex {
		return false
	}
	return true
}

// RequireCaptain returns ErrNotCaptain unless actorHexOrNpub equals the
// team's captain. Callers must check this before building any signed
// replacement (spec §7: "must be caught before a signed replacement is
// published").
func RequireCaptain(d Definition, actorHexOrNpub string) error {
	actorHex, err := ToHex(actorHexOrNpub)
	if err != nil {
		return err
	}
	if actorHex != d.Captain {
		return ErrNotCaptain
	}
	return nil
}

// ToHex normalizes a pubkey given as either 64-char hex or bech32 npub to
// hex (spec §9 Open Question resolution: "store hex internally").
func ToHex(pubkey string) (string, error) {
	if len(pubkey) == 64 {
		if _, err := hex.DecodeString(pubkey); err == nil {
			return pubkey, nil
		}
	}
	prefix, value, err := nip19.Decode(pubkey)
	if err != nil {
		return "", errors.New("team: pubkey is neither valid hex nor a valid npub")
	}
	if prefix != "npub" {
		return "", errors.New("team: expected an npub, got " + prefix)
	}
	hex, ok := value.(string)
	if !ok {
		return "", errors.New("team: malformed npub payload")
	}
	return hex, nil
}

// ToNpub renders hex as a bech32 npub for display (spec §9: "render either
// on output").
func ToNpub(hexPubkey string) (string, error) {
	return nip19.EncodePublicKey(hexPubkey)
}

// IsSoftDeleted is the optional, non-authoritative display filter
// preserved from the source's "Deleted" naming convention (spec §9 Open
// Question). It is never treated as a protocol-level deletion.
func IsSoftDeleted(d Definition) bool {
	return d.Name == "Deleted"
}
