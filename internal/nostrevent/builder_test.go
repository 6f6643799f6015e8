package nostrevent

import (
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Runners United!!":  "runners-united",
		"  spaced out  ":    "spaced-out",
		"ALLCAPS":           "allcaps",
		"":                  "x",
		"___":                "x",
	}
	for in, want := range cases {
		if got := Slugify(in, 30); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugifyTruncates(t *testing.T) {
	long := strings.Repeat("a", 50)
	got := Slugify(long, 30)
	if len(got) > 30 {
		t.Fatalf("expected truncation to 30 chars, got %d", len(got))
	}
}

func TestTeamDTagShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := TeamDTag("Runners United", now)
	parts := strings.Split(d, "-")
	if len(parts) < 2 {
		t.Fatalf("expected slug-suffix shape, got %q", d)
	}
	suffix := parts[len(parts)-1]
	if len(suffix) != 4 {
		t.Fatalf("expected 4-char base36 suffix, got %q", suffix)
	}
}

func TestCompetitionDTagShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := CompetitionDTag(30100, "Summer 5K League", now)
	if !strings.HasPrefix(d, "30100_summer-5k-league_") {
		t.Fatalf("unexpected d-tag: %q", d)
	}
}

func TestBuildRejectsMissingDTag(t *testing.T) {
	_, err := Build(Template{Kind: 30100, Tags: nostr.Tags{{"name", "x"}}})
	if err != ErrMissingDTag {
		t.Fatalf("expected ErrMissingDTag, got %v", err)
	}
}

func TestBuildRejectsInvalidKind(t *testing.T) {
	_, err := Build(Template{Kind: 0})
	if err != ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestBuildRejectsOversizedTag(t *testing.T) {
	huge := strings.Repeat("a", 2000)
	_, err := Build(Template{Kind: 1301, Tags: nostr.Tags{{"note", huge}}})
	if err != ErrOversizedTag {
		t.Fatalf("expected ErrOversizedTag, got %v", err)
	}
}

func TestBuildAndSignRoundTrip(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev, err := BuildAndSign(Template{
		Kind: 30100,
		Tags: nostr.Tags{{"d", "league-1"}, {"team", "runners-ab12"}},
	}, sk)
	if err != nil {
		t.Fatalf("BuildAndSign: %v", err)
	}
	if ev.ID != ev.GetID() {
		t.Fatalf("id mismatch after signing")
	}
	ok, err := ev.CheckSignature()
	if err != nil || !ok {
		t.Fatalf("signature did not verify: ok=%v err=%v", ok, err)
	}
}

func TestBuildAndSignRejectsBadKey(t *testing.T) {
	_, err := BuildAndSign(Template{Kind: 1301, Tags: nostr.Tags{{"exercise", "running"}}}, "not-hex")
	if err == nil {
		t.Fatal("expected error for malformed private key")
	}
}
