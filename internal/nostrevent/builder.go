// Package nostrevent implements component D of the core: construction of
// addressable event templates with canonical tag layouts, d-tag
// generation, and signing.
package nostrevent

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"lukechampine.com/frand"

	"github.com/fitforge/fitcore/internal/wire"
)

// Errors surfaced by the builder (spec §4.D).
var (
	ErrMissingDTag   = errors.New("nostrevent: addressable kind requires exactly one d tag")
	ErrInvalidKind   = errors.New("nostrevent: unsupported kind")
	ErrOversizedTag  = errors.New("nostrevent: tag exceeds 1KB")
	ErrOversizedEvent = errors.New("nostrevent: event exceeds 256KB")
	ErrSignFailed    = errors.New("nostrevent: signing failed")
)

const (
	maxTagBytes   = 1024
	maxEventBytes = 256 * 1024
)

// Template is an unsigned event awaiting Build/Sign.
type Template struct {
	Kind      int
	Tags      nostr.Tags
	Content   string
	CreatedAt nostr.Timestamp // zero means "now" at Build time
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, replaces runs of non-alphanumerics with "-", trims
// leading/trailing "-", and truncates to maxLen.
func Slugify(s string, maxLen int) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	if slug == "" {
		slug = "x"
	}
	return slug
}

// base36 returns n formatted in base 36, lowercase.
func base36(n int64) string {
	return strconv.FormatInt(n, 36)
}

// randomBase36Suffix returns a short cryptographically-random base36 tail
// of length n, sourced from lukechampine.com/frand.
func randomBase36Suffix(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[frand.Intn(len(alphabet))]
	}
	return string(b)
}

// TeamDTag generates a team's d-tag: slugify(name).truncate(30) + "-" +
// base36(now_ms).last(4) (spec §4.D).
func TeamDTag(name string, now time.Time) string {
	slug := Slugify(name, 30)
	ms := base36(now.UnixMilli())
	if len(ms) > 4 {
		ms = ms[len(ms)-4:]
	}
	return slug + "-" + ms
}

// CompetitionDTag generates a league/event d-tag:
// <kind>_<slug>_<ts36>_<rand36> (spec §4.D).
func CompetitionDTag(kind int, name string, now time.Time) string {
	slug := Slugify(name, 30)
	ts := base36(now.Unix())
	return fmt.Sprintf("%d_%s_%s_%s", kind, slug, ts, randomBase36Suffix(6))
}

// Build validates and finalizes a Template into an *nostr.Event ready to
// sign. created_at defaults to time.Now() when tpl.CreatedAt is zero.
func Build(tpl Template) (*nostr.Event, error) {
	if tpl.Kind <= 0 {
		return nil, ErrInvalidKind
	}

	if wire.IsAddressable(tpl.Kind) || tpl.Kind == wire.KindTeamDefinition {
		count := 0
		for _, t := range tpl.Tags {
			if len(t) >= 1 && t[0] == "d" {
				count++
			}
		}
		if count != 1 {
			return nil, ErrMissingDTag
		}
	}

	for _, t := range tpl.Tags {
		size := 0
		for _, v := range t {
			size += len(v)
		}
		if size > maxTagBytes {
			return nil, ErrOversizedTag
		}
	}

	createdAt := tpl.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Timestamp(time.Now().Unix())
	}

	ev := &nostr.Event{
		Kind:      tpl.Kind,
		Tags:      tpl.Tags,
		Content:   tpl.Content,
		CreatedAt: createdAt,
	}

	if len(ev.Serialize()) > maxEventBytes {
		return nil, ErrOversizedEvent
	}

	return ev, nil
}

// Sign finalizes ev with the caller's private key (hex-encoded, 32 bytes).
// Computes id and signature symmetrically with wire.Verify.
func Sign(ev *nostr.Event, privateKeyHex string) error {
	if _, err := hex.DecodeString(privateKeyHex); err != nil {
		return fmt.Errorf("%w: invalid private key encoding: %v", ErrSignFailed, err)
	}
	if err := ev.Sign(privateKeyHex); err != nil {
		return fmt.Errorf("%w: %v", ErrSignFailed, err)
	}
	return nil
}

// BuildAndSign is the common case: build the template then sign it.
func BuildAndSign(tpl Template, privateKeyHex string) (*nostr.Event, error) {
	ev, err := Build(tpl)
	if err != nil {
		return nil, err
	}
	pub, err := nostr.GetPublicKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: derive pubkey: %v", ErrSignFailed, err)
	}
	ev.PubKey = pub
	if err := Sign(ev, privateKeyHex); err != nil {
		return nil, err
	}
	return ev, nil
}
