package team

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/nostrevent"
)

const testPriv = "5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f5f4f"

func TestNewThenParseRoundTrip(t *testing.T) {
	priv := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(priv)

	tpl, err := New(Params{Name: "River Runners", About: "weekend 5ks", Public: true, Activity: "running"}, pub, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev, err := nostrevent.BuildAndSign(tpl, priv)
	if err != nil {
		t.Fatalf("BuildAndSign: %v", err)
	}

	d, err := Parse(ev)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Name != "River Runners" || d.Captain != pub || !d.Public {
		t.Fatalf("unexpected definition: %+v", d)
	}
	if !IsAuthoritative(ev, pub) {
		t.Fatal("expected event to be authoritative for its own captain")
	}
}

func TestRequireCaptainRejectsOthers(t *testing.T) {
	captain := nostr.GeneratePrivateKey()
	captainPub, _ := nostr.GetPublicKey(captain)
	impostor := nostr.GeneratePrivateKey()
	impostorPub, _ := nostr.GetPublicKey(impostor)

	d := Definition{Captain: captainPub}
	if err := RequireCaptain(d, captainPub); err != nil {
		t.Fatalf("captain should be allowed: %v", err)
	}
	if err := RequireCaptain(d, impostorPub); err != ErrNotCaptain {
		t.Fatalf("expected ErrNotCaptain, got %v", err)
	}
}

func TestToHexAcceptsNpubAndHex(t *testing.T) {
	priv := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(priv)
	npub, err := ToNpub(pub)
	if err != nil {
		t.Fatalf("ToNpub: %v", err)
	}

	gotFromHex, err := ToHex(pub)
	if err != nil || gotFromHex != pub {
		t.Fatalf("ToHex(hex) = %q, %v", gotFromHex, err)
	}
	gotFromNpub, err := ToHex(npub)
	if err != nil || gotFromNpub != pub {
		t.Fatalf("ToHex(npub) = %q, %v", gotFromNpub, err)
	}
}

func TestIsSoftDeleted(t *testing.T) {
	if !IsSoftDeleted(Definition{Name: "Deleted"}) {
		t.Fatal("expected soft-deleted team to be flagged")
	}
	if IsSoftDeleted(Definition{Name: "River Runners"}) {
		t.Fatal("unexpected soft-deleted flag")
	}
}
