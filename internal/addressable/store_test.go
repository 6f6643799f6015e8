package addressable

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/kvcache"
	"github.com/fitforge/fitcore/internal/wire"
)

func ev(pubkey string, kind int, dtag string, createdAt int64, id string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		Kind:      kind,
		CreatedAt: nostr.Timestamp(createdAt),
		Tags:      nostr.Tags{{"d", dtag}},
	}
}

func TestPutSupersedesOnNewerTimestamp(t *testing.T) {
	s := New(nil, 0, nil)
	c := wire.Coordinate{Pubkey: "pk", Kind: 30000, DTag: "team-members"}

	old := ev("pk", 30000, "team-members", 100, "bb")
	if !s.Put(old) {
		t.Fatal("first put should be accepted")
	}
	stale := ev("pk", 30000, "team-members", 50, "cc")
	if s.Put(stale) {
		t.Fatal("older created_at must not supersede")
	}
	if s.Get(c).ID != "bb" {
		t.Fatalf("expected bb to remain current, got %s", s.Get(c).ID)
	}

	newer := ev("pk", 30000, "team-members", 200, "aa")
	if !s.Put(newer) {
		t.Fatal("newer created_at should supersede")
	}
	if s.Get(c).ID != "aa" {
		t.Fatalf("expected aa current, got %s", s.Get(c).ID)
	}
}

func TestPutTieBreaksOnLexicographicID(t *testing.T) {
	s := New(nil, 0, nil)
	c := wire.Coordinate{Pubkey: "pk", Kind: 30000, DTag: "x"}

	first := ev("pk", 30000, "x", 100, "bb")
	s.Put(first)
	smaller := ev("pk", 30000, "x", 100, "aa")
	if !s.Put(smaller) {
		t.Fatal("lexicographically smaller id should win on tie")
	}
	if s.Get(c).ID != "aa" {
		t.Fatalf("expected aa, got %s", s.Get(c).ID)
	}
}

func TestPutIgnoresNonAddressableKinds(t *testing.T) {
	s := New(nil, 0, nil)
	workout := ev("pk", 1301, "", 100, "aa")
	if s.Put(workout) {
		t.Fatal("non-addressable kind must not be stored")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := New(nil, 0, nil)
	if s.Get(wire.Coordinate{Pubkey: "pk", Kind: 30000, DTag: "none"}) != nil {
		t.Fatal("expected nil for unseen coordinate")
	}
}

func TestCoalescedPersistenceAndPreload(t *testing.T) {
	cache, err := kvcache.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	s := New(cache, 10*time.Millisecond, nil)
	team := ev("pk", 33404, "runners-ab12", 100, "aa")
	team.Kind = 33404
	s.Put(team)

	time.Sleep(100 * time.Millisecond) // let the coalesced flush fire

	reloaded := New(cache, 0, nil)
	if err := reloaded.Preload(context.Background()); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	got := reloaded.Get(wire.Coordinate{Pubkey: "pk", Kind: 33404, DTag: "runners-ab12"})
	if got == nil || got.ID != "aa" {
		t.Fatalf("expected preloaded event aa, got %+v", got)
	}
}
