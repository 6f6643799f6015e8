package wire

import (
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func signedTestEvent(t *testing.T) *nostr.Event {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	ev := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      1301,
		Tags:      nostr.Tags{{"exercise", "running"}},
		Content:   "{}",
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return ev
}

func TestParseInboundEvent(t *testing.T) {
	ev := signedTestEvent(t)

	inbound, err := json.Marshal([]interface{}{string(KindEvent), "sub1", ev})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err := ParseInbound(inbound)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if f.Kind != KindEvent || f.SubID != "sub1" || f.Event == nil || f.Event.ID != ev.ID {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if err := Verify(f.Event); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestParseInboundEOSE(t *testing.T) {
	inbound, _ := json.Marshal([]interface{}{string(KindEOSE), "sub1"})
	f, err := ParseInbound(inbound)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if f.Kind != KindEOSE || f.SubID != "sub1" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseInboundOK(t *testing.T) {
	inbound, _ := json.Marshal([]interface{}{string(KindOK), "deadbeef", false, "rate_limited"})
	f, err := ParseInbound(inbound)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if f.Kind != KindOK || f.OK || f.Reason != "rate_limited" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseInboundBadFrame(t *testing.T) {
	if _, err := ParseInbound([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := ParseInbound([]byte(`["WAT"]`)); err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}

func TestVerifyRejectsTamperedEvent(t *testing.T) {
	ev := signedTestEvent(t)
	ev.Content = "tampered"
	if err := Verify(ev); err == nil {
		t.Fatal("expected verification failure on tampered content")
	}
}

func TestSupersedes(t *testing.T) {
	older := &nostr.Event{ID: "bb", CreatedAt: 100}
	newer := &nostr.Event{ID: "aa", CreatedAt: 200}
	if !Supersedes(newer, older) {
		t.Fatal("newer created_at should supersede")
	}
	if Supersedes(older, newer) {
		t.Fatal("older created_at must not supersede")
	}
	tieLower := &nostr.Event{ID: "aa", CreatedAt: 100}
	tieHigher := &nostr.Event{ID: "bb", CreatedAt: 100}
	if !Supersedes(tieLower, tieHigher) {
		t.Fatal("lexicographically smaller id should win on tie")
	}
	if Supersedes(tieHigher, tieLower) {
		t.Fatal("lexicographically larger id must not win on tie")
	}
}
