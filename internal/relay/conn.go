// Package relay implements one relay's connection lifecycle: dialing,
// keep-alive, exponential-backoff reconnect, and a bounded outbound send
// queue. It has no notion of subscriptions — that's internal/relaypool.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State is the connection's lifecycle state (spec §4.B).
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ErrorState
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ErrorState:
		return "error"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Options configures a Conn. Zero values fall back to spec defaults.
type Options struct {
	ConnectTimeout      time.Duration // default 10s
	PingInterval        time.Duration // default 30s
	ReconnectDelay      time.Duration // default 1s, doubles, capped at 10s
	MaxReconnectAttempts int          // 0 == unlimited (pool-owned relays)
	SendQueueCapacity   int           // default 256
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = time.Second
	}
	if o.SendQueueCapacity == 0 {
		o.SendQueueCapacity = 256
	}
	return o
}

// Stats tracks per-connection counters surfaced to the outer shell.
type Stats struct {
	DroppedFrames   int64
	ReconnectCount  int64
	LastError       error
}

// Conn manages one WebSocket connection to a single relay URL.
type Conn struct {
	URL  string
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	state State
	ws    *websocket.Conn
	stats Stats

	sendCh   chan []byte
	recvCh   chan []byte
	resubscribe func(*Conn) // replays active subscriptions on reconnect

	cancel context.CancelFunc
}

// New creates a Conn in the Disconnected state. It does not dial.
func New(url string, opts Options, log *slog.Logger, resubscribe func(*Conn)) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		URL:         url,
		opts:        opts.withDefaults(),
		log:         log,
		state:       Disconnected,
		sendCh:      make(chan []byte, opts.withDefaults().SendQueueCapacity),
		recvCh:      make(chan []byte, 256),
		resubscribe: resubscribe,
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the connection's counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Events returns the channel of raw inbound frames.
func (c *Conn) Events() <-chan []byte {
	return c.recvCh
}

// Send enqueues a frame for transmission. On a full queue the oldest
// pending frame is dropped (spec §4.B/§5 backpressure policy) and the
// counter is incremented; the new frame is still enqueued.
func (c *Conn) Send(frame []byte) {
	select {
	case c.sendCh <- frame:
		return
	default:
	}
	select {
	case <-c.sendCh:
		c.mu.Lock()
		c.stats.DroppedFrames++
		c.mu.Unlock()
	default:
	}
	select {
	case c.sendCh <- frame:
	default:
		// still full (concurrent sender raced us); drop this frame too.
		c.mu.Lock()
		c.stats.DroppedFrames++
		c.mu.Unlock()
	}
}

// Run drives the connect/read/write/reconnect loop until ctx is cancelled.
// It blocks; callers run it in its own goroutine per relay.
func (c *Conn) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	delay := c.opts.ReconnectDelay
	attempts := 0

	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(Connecting)
		ws, err := c.dial(ctx)
		if err != nil {
			c.mu.Lock()
			c.stats.LastError = err
			c.mu.Unlock()
			c.log.Warn("relay dial failed", "url", c.URL, "err", err)
			if !c.backoffOrGiveUp(ctx, &attempts, &delay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(Connected)
		attempts = 0
		delay = c.opts.ReconnectDelay
		c.log.Info("relay connected", "url", c.URL)

		if c.resubscribe != nil {
			c.resubscribe(c)
		}
		c.flushSendQueue(ctx, ws)

		err = c.serve(ctx, ws)
		ws.Close(websocket.StatusNormalClosure, "")
		c.mu.Lock()
		c.ws = nil
		c.stats.LastError = err
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(ErrorState)
		c.log.Warn("relay connection lost", "url", c.URL, "err", err)
		c.setState(Reconnecting)
		c.mu.Lock()
		c.stats.ReconnectCount++
		c.mu.Unlock()
		if !c.backoffOrGiveUp(ctx, &attempts, &delay) {
			return
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}
	ws.SetReadLimit(10 << 20) // 10MiB, generous for relay firehoses
	return ws, nil
}

// backoffOrGiveUp sleeps the current backoff (preemptible by ctx), doubles
// it up to a 10s cap, and returns false once MaxReconnectAttempts is
// exhausted (0 means unlimited).
func (c *Conn) backoffOrGiveUp(ctx context.Context, attempts *int, delay *time.Duration) bool {
	*attempts++
	if c.opts.MaxReconnectAttempts > 0 && *attempts > c.opts.MaxReconnectAttempts {
		c.log.Error("relay permanently failed", "url", c.URL, "attempts", *attempts)
		c.setState(ErrorState)
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*delay):
	}
	*delay *= 2
	if *delay > 10*time.Second {
		*delay = 10 * time.Second
	}
	return true
}

func (c *Conn) flushSendQueue(ctx context.Context, ws *websocket.Conn) {
	for {
		select {
		case frame := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		default:
			return
		}
	}
}

// serve runs the read loop and services outbound sends until the socket
// errors or ctx is cancelled. It returns the terminal error.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			frame := append([]byte(nil), data...)
			select {
			case c.recvCh <- frame:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			default:
				// inbound channel full: better to lose a slow relay than
				// stall the pool (spec §5 backpressure).
				c.log.Warn("relay inbound backlog full, reconnecting", "url", c.URL)
				readErr <- fmt.Errorf("inbound backlog overflow")
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.opts.PingInterval)
	defer pingTicker.Stop()
	silenceDeadline := time.NewTimer(2 * c.opts.PingInterval)
	defer silenceDeadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return err
			}
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			if !silenceDeadline.Stop() {
				select {
				case <-silenceDeadline.C:
				default:
				}
			}
			silenceDeadline.Reset(2 * c.opts.PingInterval)
		case <-silenceDeadline.C:
			return fmt.Errorf("ping timeout: no activity for %s", 2*c.opts.PingInterval)
		}
	}
}

// Close tears down the connection loop started by Run.
func (c *Conn) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
