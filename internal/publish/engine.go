// Package publish implements component E: a thin retry/classification layer
// over relaypool.Publish.
package publish

import (
	"context"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/time/rate"

	"github.com/fitforge/fitcore/internal/relaypool"
)

// Default publish rate: generous enough for normal team activity (workout
// logs, roster updates) while still smoothing out bursty publishers.
const (
	defaultPublishRateLimit = rate.Limit(5)
	defaultPublishRateBurst = 10
)

// RejectionClass buckets a relay's OK-reason string (spec §4.E).
type RejectionClass string

const (
	ClassDuplicate   RejectionClass = "duplicate"
	ClassPoW         RejectionClass = "pow"
	ClassBlocked     RejectionClass = "blocked"
	ClassRateLimited RejectionClass = "rate_limited"
	ClassInvalid     RejectionClass = "invalid"
	ClassOther       RejectionClass = "other"
)

// Classify maps a relay's OK rejection reason onto the closed set of
// rejection classes. Unrecognized reasons fall in ClassOther so future
// relay behavior never breaks classification (spec §9 forward-compat rule).
func Classify(reason string) RejectionClass {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case r == "":
		return ClassOther
	case strings.Contains(r, "duplicate"):
		return ClassDuplicate
	case strings.Contains(r, "pow") || strings.Contains(r, "difficulty"):
		return ClassPoW
	case strings.Contains(r, "block") || strings.Contains(r, "denied") || strings.Contains(r, "banned"):
		return ClassBlocked
	case strings.Contains(r, "rate") || strings.Contains(r, "throttle"):
		return ClassRateLimited
	case strings.Contains(r, "invalid") || strings.Contains(r, "bad"):
		return ClassInvalid
	default:
		return ClassOther
	}
}

// ClassifiedRejection pairs a rejected relay with its classified reason.
type ClassifiedRejection struct {
	URL    string
	Reason string
	Class  RejectionClass
}

// Result is the caller-facing outcome of Engine.Publish.
type Result struct {
	Accepted []string
	Rejected []ClassifiedRejection
	Retried  bool
}

// Engine wraps a relaypool.Pool with the one-shot-retry policy from spec §4.E.
type Engine struct {
	pool     *relaypool.Pool
	deadline time.Duration
	limiter  *rate.Limiter
}

// New constructs a publish Engine. deadline <= 0 uses the pool's default.
// Publishes are throttled by a shared token-bucket limiter so a runaway
// caller (e.g. a backfill script) can't flood every write relay at once.
func New(pool *relaypool.Pool, deadline time.Duration) *Engine {
	return &Engine{
		pool:     pool,
		deadline: deadline,
		limiter:  rate.NewLimiter(defaultPublishRateLimit, defaultPublishRateBurst),
	}
}

// NewWithRateLimit constructs an Engine with a caller-chosen rate/burst,
// for callers that need a tighter or looser publish cadence than the
// default (e.g. a leaderboard-seeding job doing many sequential writes).
func NewWithRateLimit(pool *relaypool.Pool, deadline time.Duration, limit rate.Limit, burst int) *Engine {
	return &Engine{pool: pool, deadline: deadline, limiter: rate.NewLimiter(limit, burst)}
}

// Publish sends ev and, if relaypool.ErrPublishFailed is returned, retries
// exactly once after a 500ms pause. Never retries a publish whose every
// rejection classified as "invalid" (spec §4.E) since retrying cannot help.
func (e *Engine) Publish(ctx context.Context, ev *nostr.Event) (Result, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	res, err := e.pool.Publish(ctx, ev, e.deadline)
	classified := classify(res)

	if err == nil {
		return Result{Accepted: res.Accepted, Rejected: classified}, nil
	}

	if allInvalid(classified) {
		return Result{Accepted: res.Accepted, Rejected: classified}, err
	}

	select {
	case <-ctx.Done():
		return Result{Accepted: res.Accepted, Rejected: classified}, err
	case <-time.After(500 * time.Millisecond):
	}

	res2, err2 := e.pool.Publish(ctx, ev, e.deadline)
	classified2 := classify(res2)
	return Result{Accepted: res2.Accepted, Rejected: classified2, Retried: true}, err2
}

func classify(res relaypool.PublishResult) []ClassifiedRejection {
	out := make([]ClassifiedRejection, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		out = append(out, ClassifiedRejection{URL: r.URL, Reason: r.Reason, Class: Classify(r.Reason)})
	}
	return out
}

func allInvalid(rejections []ClassifiedRejection) bool {
	if len(rejections) == 0 {
		return false
	}
	for _, r := range rejections {
		if r.Class != ClassInvalid {
			return false
		}
	}
	return true
}
