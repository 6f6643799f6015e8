package membership

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/addressable"
	"github.com/fitforge/fitcore/internal/wire"
)

func signedMembershipEvent(t *testing.T, priv, teamDTag string, members []string, createdAt int64) *nostr.Event {
	t.Helper()
	tags := nostr.Tags{{"d", teamDTag + "-members"}}
	for _, m := range members {
		tags = append(tags, nostr.Tag{"p", m})
	}
	ev := &nostr.Event{
		Kind:      wire.KindMembershipList,
		Tags:      tags,
		CreatedAt: nostr.Timestamp(createdAt),
	}
	pub, _ := nostr.GetPublicKey(priv)
	ev.PubKey = pub
	if err := ev.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return ev
}

func TestScenarioS1TeamAndListCreation(t *testing.T) {
	priv := nostr.GeneratePrivateKey()
	captain, _ := nostr.GetPublicKey(priv)

	store := addressable.New(nil, 0, nil)
	svc := New(store, nil)

	ev := signedMembershipEvent(t, priv, "runners-ab12", []string{captain}, 100)
	store.Put(ev)

	list, ok := svc.GetList(context.Background(), captain, "runners-ab12")
	if !ok {
		t.Fatal("expected list to be found")
	}
	if !IsMember(list, captain) {
		t.Fatal("captain should be a member")
	}
	if IsMember(list, "someone-else") {
		t.Fatal("unrelated pubkey should not be a member")
	}
}

func TestScenarioS2AddAndRemoveMember(t *testing.T) {
	priv := nostr.GeneratePrivateKey()
	captain, _ := nostr.GetPublicKey(priv)
	store := addressable.New(nil, 0, nil)
	svc := New(store, nil)

	ev := signedMembershipEvent(t, priv, "runners-ab12", []string{captain}, 100)
	store.Put(ev)
	list, _ := svc.GetList(context.Background(), captain, "runners-ab12")

	tpl, ok, err := svc.PrepareAdd(list, "p1")
	if err != nil || !ok {
		t.Fatalf("PrepareAdd: ok=%v err=%v", ok, err)
	}
	added := &nostr.Event{Kind: tpl.Kind, Tags: tpl.Tags, CreatedAt: nostr.Timestamp(200), PubKey: captain}
	added.ID = added.GetID()
	store.Put(added)

	list2, _ := svc.GetList(context.Background(), captain, "runners-ab12")
	if !IsMember(list2, "p1") || !IsMember(list2, captain) {
		t.Fatalf("expected [captain, p1], got %+v", list2.Members)
	}

	if _, ok, _ := svc.PrepareAdd(list2, "p1"); ok {
		t.Fatal("adding an existing member should be a no-op (None)")
	}

	tpl2, ok, err := svc.PrepareRemove(list2, "p1")
	if err != nil || !ok {
		t.Fatalf("PrepareRemove: ok=%v err=%v", ok, err)
	}
	removed := &nostr.Event{Kind: tpl2.Kind, Tags: tpl2.Tags, CreatedAt: nostr.Timestamp(300), PubKey: captain}
	removed.ID = removed.GetID()
	store.Put(removed)

	list3, _ := svc.GetList(context.Background(), captain, "runners-ab12")
	if IsMember(list3, "p1") {
		t.Fatal("p1 should have been removed")
	}
	if !IsMember(list3, captain) {
		t.Fatal("captain must remain")
	}

	if _, ok, _ := svc.PrepareRemove(list3, "p1"); ok {
		t.Fatal("removing an absent member should be a no-op (None)")
	}
}

func TestGetListMissingReturnsFalse(t *testing.T) {
	store := addressable.New(nil, 0, nil)
	svc := New(store, nil)
	if _, ok := svc.GetList(context.Background(), "captain", "no-such-team"); ok {
		t.Fatal("expected no list to be found, not an empty roster")
	}
}

func TestPrepareAddRejectsStaleList(t *testing.T) {
	priv := nostr.GeneratePrivateKey()
	captain, _ := nostr.GetPublicKey(priv)
	store := addressable.New(nil, 0, nil)
	svc := New(store, nil)

	stale := signedMembershipEvent(t, priv, "runners-ab12", []string{captain}, 100)
	staleList := parseList(stale)

	fresh := signedMembershipEvent(t, priv, "runners-ab12", []string{captain, "p1"}, 200)
	store.Put(fresh)

	if _, _, err := svc.PrepareAdd(staleList, "p2"); err != ErrStaleList {
		t.Fatalf("expected ErrStaleList, got %v", err)
	}
}
