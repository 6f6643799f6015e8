package relaypool

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func TestSeenSetDedup(t *testing.T) {
	s := newSeenSet()
	if !s.seeOnce("a") {
		t.Fatal("first sighting should report true")
	}
	if s.seeOnce("a") {
		t.Fatal("second sighting of same id should report false")
	}
	if !s.seeOnce("b") {
		t.Fatal("distinct id should report true")
	}
}

func TestHandleDeliverDedupsByID(t *testing.T) {
	var calls []string
	h := &Handle{
		seen:     newSeenSet(),
		eoseFrom: make(map[string]bool),
		handler: func(ev *nostr.Event, relayURL string) {
			calls = append(calls, relayURL)
		},
	}
	ev := &nostr.Event{ID: "dup"}
	h.deliver(ev, "wss://a")
	h.deliver(ev, "wss://b") // same id from a second relay: must not re-invoke
	if len(calls) != 1 {
		t.Fatalf("expected exactly one handler invocation, got %d: %v", len(calls), calls)
	}
}

func TestEOSEConvergence(t *testing.T) {
	h := &Handle{eoseFrom: map[string]bool{"wss://a": false, "wss://b": false}}
	if h.eoseConverged(2) {
		t.Fatal("should not converge with no EOSE yet")
	}
	h.markEOSE("wss://a")
	if h.eoseConverged(2) {
		t.Fatal("should not converge with only 1 of 2 relays")
	}
	h.markEOSE("wss://b")
	if !h.eoseConverged(2) {
		t.Fatal("should converge once every expected relay has reported EOSE")
	}
}

func TestEOSEConvergenceRequiresEveryConnectedRelay(t *testing.T) {
	// 3 relays connected at subscribe time, minRelays=2: two replying must
	// not be enough while a third connected relay is still silent.
	h := &Handle{eoseFrom: map[string]bool{"wss://a": false, "wss://b": false, "wss://c": false}}
	h.markEOSE("wss://a")
	h.markEOSE("wss://b")
	if h.eoseConverged(2) {
		t.Fatal("must not converge while a connected relay has not sent EOSE, even past minRelays")
	}
	h.markEOSE("wss://c")
	if !h.eoseConverged(2) {
		t.Fatal("should converge once all connected relays have reported EOSE")
	}
}

func TestMarkEOSEIgnoresUnexpectedRelay(t *testing.T) {
	// A relay that connects after subscribe time was never added to
	// eoseFrom; its EOSE must not be recorded or required for convergence.
	h := &Handle{eoseFrom: map[string]bool{"wss://a": false}}
	h.markEOSE("wss://late")
	if _, ok := h.eoseFrom["wss://late"]; ok {
		t.Fatal("late-connecting relay should not be added to the expected set")
	}
	h.markEOSE("wss://a")
	if !h.eoseConverged(1) {
		t.Fatal("should converge once the one expected relay has reported EOSE")
	}
}

func TestPublishNoConnectedRelaysFails(t *testing.T) {
	p := New(context.Background(), Config{}, nil)
	defer p.cancel()

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ev := &nostr.Event{PubKey: pk, CreatedAt: nostr.Now(), Kind: 1301, Tags: nostr.Tags{{"d", "x"}}}
	_ = ev.Sign(sk)

	res, err := p.Publish(context.Background(), ev, 50*time.Millisecond)
	if err != ErrPublishFailed {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if len(res.Accepted) != 0 {
		t.Fatalf("expected no accepted relays, got %v", res.Accepted)
	}
}

func TestStatusEmptyPool(t *testing.T) {
	p := New(context.Background(), Config{}, nil)
	defer p.cancel()
	st := p.Status()
	if st.RelayCount != 0 || st.ConnectedCount != 0 {
		t.Fatalf("expected empty status, got %+v", st)
	}
}
