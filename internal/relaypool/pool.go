// Package relaypool implements the shared connection pool and subscription
// multiplexer: component C of the core (spec §4.C). It owns a set of
// internal/relay connections, fans one logical subscription out to all of
// them, de-duplicates by event id, and aggregates publish acks.
package relaypool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/fitforge/fitcore/internal/relay"
	"github.com/fitforge/fitcore/internal/wire"
)

// Handler receives each distinct inbound event for a subscription, along
// with the relay URL it arrived from. Invoked synchronously on the pool's
// demux loop — handlers must not block (spec §5).
type Handler func(ev *nostr.Event, relayURL string)

// Config mirrors the configuration table in spec §6.
type Config struct {
	DefaultRelays       []string
	ConnectTimeout      time.Duration
	PingInterval        time.Duration
	ReconnectDelay      time.Duration
	MaxReconnectAttempts int
	PublishDeadline     time.Duration
	SubscriptionDeadline time.Duration
	MinRelaysForEOSE    int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.PublishDeadline == 0 {
		c.PublishDeadline = 4 * time.Second
	}
	if c.SubscriptionDeadline == 0 {
		c.SubscriptionDeadline = 10 * time.Second
	}
	return c
}

// relayState wraps one pool-owned connection. The subscriptions replayed on
// reconnect are kept in Pool.subs, not here.
type relayState struct {
	conn *relay.Conn
}

// Pool is the process-wide relay pool. Construct one via New and keep it
// for the process lifetime; it is safe for concurrent use.
type Pool struct {
	cfg Config
	log *slog.Logger

	mu     sync.RWMutex
	relays map[string]*relayState

	subMu sync.Mutex
	subs  map[string]*Handle

	pubMu sync.Mutex
	pubs  map[string]*publishWaiter

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Pool and immediately begins connecting to cfg.DefaultRelays
// in the background. The returned Pool is usable right away (possibly
// degraded) per the warm-up contract in spec §4.C.
func New(ctx context.Context, cfg Config, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	pctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		cfg:    cfg.withDefaults(),
		log:    log,
		relays: make(map[string]*relayState),
		subs:   make(map[string]*Handle),
		pubs:   make(map[string]*publishWaiter),
		ctx:    pctx,
		cancel: cancel,
	}
	for _, url := range cfg.DefaultRelays {
		p.AddRelay(url)
	}
	return p
}

// AddRelay begins connecting to url if it is not already part of the pool.
// Returns false if url was already present.
func (p *Pool) AddRelay(url string) bool {
	p.mu.Lock()
	if _, ok := p.relays[url]; ok {
		p.mu.Unlock()
		return false
	}
	opts := relay.Options{
		ConnectTimeout:       p.cfg.ConnectTimeout,
		PingInterval:         p.cfg.PingInterval,
		ReconnectDelay:       p.cfg.ReconnectDelay,
		MaxReconnectAttempts: p.cfg.MaxReconnectAttempts,
	}
	c := relay.New(url, opts, p.log, p.replaySubscriptions)
	st := &relayState{conn: c}
	p.relays[url] = st
	p.mu.Unlock()

	go c.Run(p.ctx)
	go p.demux(c)
	return true
}

// RemoveRelay disconnects and forgets url.
func (p *Pool) RemoveRelay(url string) bool {
	p.mu.Lock()
	st, ok := p.relays[url]
	if ok {
		delete(p.relays, url)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	st.conn.Close()
	return true
}

// snapshot returns a copy of the current relay connections, safe to
// iterate without holding the pool lock (spec §5 hot-path rule).
func (p *Pool) snapshot() []*relay.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*relay.Conn, 0, len(p.relays))
	for _, st := range p.relays {
		out = append(out, st.conn)
	}
	return out
}

// Status reports connectivity for the outer shell to gate on (spec §4.C).
type Status struct {
	RelayCount     int
	ConnectedCount int
}

func (p *Pool) Status() Status {
	conns := p.snapshot()
	s := Status{RelayCount: len(conns)}
	for _, c := range conns {
		if c.State() == relay.Connected {
			s.ConnectedCount++
		}
	}
	return s
}

// WaitForMinimumConnection blocks until at least min relays are Connected,
// ctx is cancelled, or timeout elapses. Returns whether the floor was met.
func (p *Pool) WaitForMinimumConnection(ctx context.Context, min int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.Status().ConnectedCount >= min {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return p.Status().ConnectedCount >= min
		case <-ticker.C:
		}
	}
}

// replaySubscriptions issues REQ for every active subscription on a
// newly-(re)connected connection.
func (p *Pool) replaySubscriptions(c *relay.Conn) {
	p.subMu.Lock()
	handles := make([]*Handle, 0, len(p.subs))
	for _, h := range p.subs {
		handles = append(handles, h)
	}
	p.subMu.Unlock()

	for _, h := range handles {
		frame, err := wire.EncodeReq(h.id, h.filters...)
		if err != nil {
			continue
		}
		c.Send(frame)
	}
}

// demux reads frames off one connection, verifies and de-duplicates
// EVENT payloads, and routes them to the owning subscription handle.
// This is the pool's single demux task per spec §5 (one per connection,
// feeding the shared subscription handles — writes to the addressable
// store downstream happen inside handler callbacks, which is where the
// single-writer discipline is enforced).
func (p *Pool) demux(c *relay.Conn) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case raw, ok := <-c.Events():
			if !ok {
				return
			}
			frame, err := wire.ParseInbound(raw)
			if err != nil {
				p.log.Warn("dropping malformed frame", "relay", c.URL, "err", err)
				continue
			}
			p.route(c.URL, frame)
		}
	}
}

func (p *Pool) route(relayURL string, frame wire.Frame) {
	switch frame.Kind {
	case wire.KindEvent:
		if err := wire.Verify(frame.Event); err != nil {
			p.log.Warn("dropping unverifiable event", "relay", relayURL, "err", err)
			return
		}
		p.subMu.Lock()
		h := p.subs[frame.SubID]
		p.subMu.Unlock()
		if h == nil {
			return
		}
		h.deliver(frame.Event, relayURL)

	case wire.KindEOSE:
		p.subMu.Lock()
		h := p.subs[frame.SubID]
		p.subMu.Unlock()
		if h == nil {
			return
		}
		h.markEOSE(relayURL)

	case wire.KindOK:
		p.pubMu.Lock()
		w := p.pubs[frame.EventID]
		p.pubMu.Unlock()
		if w != nil {
			w.deliver(ackResult{url: relayURL, ok: frame.OK, reason: frame.Reason})
		}

	case wire.KindNotice:
		p.log.Info("relay notice", "relay", relayURL, "msg", frame.Message)

	case wire.KindAuth:
		p.log.Debug("relay AUTH challenge ignored (no authenticator configured)", "relay", relayURL)
	}
}

// seenSet is a concurrent set of event ids, private to one subscription
// handle (spec §5: "per-subscription seen-id set: private to that handle").
type seenSet struct {
	m *xsync.MapOf[string, struct{}]
}

func newSeenSet() seenSet {
	return seenSet{m: xsync.NewMapOf[string, struct{}]()}
}

func (s seenSet) seeOnce(id string) bool {
	_, loaded := s.m.LoadOrStore(id, struct{}{})
	return !loaded
}
