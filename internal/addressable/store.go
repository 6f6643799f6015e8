// Package addressable implements component F: the in-memory cache of the
// latest observed version of every (pubkey, kind, d_tag) coordinate, with
// coalesced persistence to an external key/value cache.
package addressable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/fitforge/fitcore/internal/kvcache"
	"github.com/fitforge/fitcore/internal/wire"
)

func key(c wire.Coordinate) string {
	return fmt.Sprintf("addressable/%s/%d/%s", c.Pubkey, c.Kind, c.DTag)
}

// Store is the process-wide addressable cache. Single-writer (callers
// invoking Put, typically the relaypool demux handler), multi-reader
// (Get gives a lock-free snapshot) per spec §5.
type Store struct {
	m   *xsync.MapOf[string, *nostr.Event]
	log *slog.Logger

	cache        kvcache.Cache
	coalesce     time.Duration
	dirtyMu      sync.Mutex
	dirty        map[string]*nostr.Event
	flushPending bool
}

// New constructs a Store. cache may be nil to disable persistence
// (useful in tests). coalesce <= 0 defaults to 1 second (spec §4.F).
func New(cache kvcache.Cache, coalesce time.Duration, log *slog.Logger) *Store {
	if coalesce <= 0 {
		coalesce = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		m:        xsync.NewMapOf[string, *nostr.Event](),
		log:      log,
		cache:    cache,
		coalesce: coalesce,
		dirty:    make(map[string]*nostr.Event),
	}
}

// Put applies the supersede rule (spec §3, §8 invariant 2): incoming
// replaces stored iff its created_at is strictly greater, or equal with a
// lexicographically smaller id. Returns true if incoming became current.
func (s *Store) Put(ev *nostr.Event) bool {
	if !wire.IsAddressable(ev.Kind) {
		return false
	}
	c := wire.CoordinateOf(ev)
	k := key(c)

	accepted := false
	s.m.Compute(k, func(old *nostr.Event, loaded bool) (*nostr.Event, bool) {
		if !loaded || wire.Supersedes(ev, old) {
			accepted = true
			return ev, false
		}
		return old, false
	})

	if accepted {
		s.markDirty(k, ev)
	}
	return accepted
}

// Get returns the latest observed event at c, or nil if none has been seen.
func (s *Store) Get(c wire.Coordinate) *nostr.Event {
	ev, _ := s.m.Load(key(c))
	return ev
}

// markDirty schedules a coalesced write-behind; the first dirty key after
// a flush arms a timer so bursts of replaces within the coalesce window
// cost one persistence write.
func (s *Store) markDirty(k string, ev *nostr.Event) {
	s.dirtyMu.Lock()
	s.dirty[k] = ev
	needsTimer := !s.flushPending && s.cache != nil
	if needsTimer {
		s.flushPending = true
	}
	s.dirtyMu.Unlock()

	if needsTimer {
		time.AfterFunc(s.coalesce, s.flush)
	}
}

func (s *Store) flush() {
	s.dirtyMu.Lock()
	batch := s.dirty
	s.dirty = make(map[string]*nostr.Event)
	s.flushPending = false
	s.dirtyMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for k, ev := range batch {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.log.Warn("addressable: marshal failed", "key", k, "err", err)
			continue
		}
		if err := s.cache.Set(ctx, k, payload); err != nil {
			s.log.Warn("addressable: persist failed", "key", k, "err", err)
		}
	}
}

// Preload reads every "addressable/*" key from the cache into memory, for
// warm reads on startup (spec §4.F).
func (s *Store) Preload(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	kvs, err := s.cache.Scan(ctx, "addressable/")
	if err != nil {
		return fmt.Errorf("addressable: preload scan: %w", err)
	}
	for k, raw := range kvs {
		var ev nostr.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.Warn("addressable: skipping corrupt cache entry", "key", k, "err", err)
			continue
		}
		s.m.Store(k, &ev)
	}
	return nil
}
