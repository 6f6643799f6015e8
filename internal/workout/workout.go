// Package workout implements component I: time- and author-bounded
// queries for workout records (kind 1301), with tag parsing into typed
// metrics and the fixed activity-type mapping used for competition
// filtering.
package workout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/relaypool"
	"github.com/fitforge/fitcore/internal/wire"
)

const (
	maxDistanceKm    = 1000
	maxDurationHours = 24
)

// Workout is a parsed, validated kind-1301 event.
type Workout struct {
	Author      string
	Exercise    string
	DistanceKm  float64
	DurationSec int
	Calories    int // 0 if absent
	CreatedAt   time.Time
	Event       *nostr.Event
}

// Window bounds a workout query in wall-clock time. Since is inclusive,
// Until is exclusive (spec §8: a workout at exactly window.Until belongs
// to the next window, never this one).
type Window struct {
	Since time.Time
	Until time.Time
}

// filterBounds converts Window to the since/until pair for a relay-side
// nostr.Filter. NIP-01's since/until are both inclusive, so until is
// shifted back one second to keep the exclusive upper bound from landing
// an event in two adjacent windows at once.
func (w Window) filterBounds() (since, until nostr.Timestamp) {
	return nostr.Timestamp(w.Since.Unix()), nostr.Timestamp(w.Until.Unix() - 1)
}

// activityAliases maps the canonical display name of an activity to every
// tag value the core recognizes for it (spec §4.I fixed table). "Any"
// disables filtering entirely.
var activityAliases = map[string][]string{
	"Running":           {"running"},
	"Walking":           {"walking"},
	"Cycling":           {"cycling", "bike"},
	"Strength Training": {"strength_training", "gym"},
}

// MatchesActivity reports whether exercise satisfies activityFilter, per
// the fixed alias table. "Any" (or empty) matches everything.
func MatchesActivity(exercise, activityFilter string) bool {
	if activityFilter == "" || activityFilter == "Any" {
		return true
	}
	aliases, ok := activityAliases[activityFilter]
	if !ok {
		return strings.EqualFold(exercise, activityFilter)
	}
	for _, a := range aliases {
		if strings.EqualFold(exercise, a) {
			return true
		}
	}
	return false
}

// parseDuration converts "HH:MM:SS" to seconds. Fails on malformed input,
// non-positive duration, or duration exceeding 24h (spec §4.I).
func parseDuration(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("workout: malformed duration %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("workout: malformed duration %q", s)
	}
	total := h*3600 + m*60 + sec
	if total <= 0 || total > maxDurationHours*3600 {
		return 0, fmt.Errorf("workout: duration %q out of range", s)
	}
	return total, nil
}

// parseEvent converts ev into a Workout, or returns an error describing
// which required field failed to parse (spec §4.I).
func parseEvent(ev *nostr.Event) (Workout, error) {
	exercise := wire.TagValue(ev, "exercise")
	if exercise == "" {
		return Workout{}, fmt.Errorf("workout: missing exercise tag")
	}

	distance, err := strconv.ParseFloat(wire.TagValue(ev, "distance"), 64)
	if err != nil || distance < 0 || distance > maxDistanceKm {
		return Workout{}, fmt.Errorf("workout: invalid distance tag")
	}

	durationSec, err := parseDuration(wire.TagValue(ev, "duration"))
	if err != nil {
		return Workout{}, err
	}

	calories := 0
	if raw := wire.TagValue(ev, "calories"); raw != "" {
		calories, err = strconv.Atoi(raw)
		if err != nil || calories < 0 {
			return Workout{}, fmt.Errorf("workout: invalid calories tag")
		}
	}

	return Workout{
		Author:      ev.PubKey,
		Exercise:    exercise,
		DistanceKm:  distance,
		DurationSec: durationSec,
		Calories:    calories,
		CreatedAt:   time.Unix(int64(ev.CreatedAt), 0).UTC(),
		Event:       ev,
	}, nil
}

// Service fetches and parses workout records through the relay pool.
type Service struct {
	pool *relaypool.Pool
}

// New constructs a Service.
func New(pool *relaypool.Pool) *Service {
	return &Service{pool: pool}
}

// Stats is a diagnostic count of records dropped during a fetch, surfaced
// alongside the parsed results (spec §4.I: "dropped with a counter").
type Stats struct {
	Fetched int
	Dropped int
}

// FetchWorkouts issues one subscription for authors within window, bounded
// by deadline, filters by activityFilter, and parses every returned event.
// Malformed records are dropped and counted rather than surfacing an error.
func (s *Service) FetchWorkouts(ctx context.Context, authors []string, window Window, activityFilter string, deadline time.Duration) ([]Workout, Stats) {
	since, until := window.filterBounds()

	raw := s.pool.FetchEvents(ctx, deadline, nostr.Filter{
		Kinds:   []int{wire.KindWorkout},
		Authors: authors,
		Since:   &since,
		Until:   &until,
		Limit:   1000,
	})

	stats := Stats{Fetched: len(raw)}
	workouts := make([]Workout, 0, len(raw))
	for _, ev := range raw {
		w, err := parseEvent(ev)
		if err != nil {
			stats.Dropped++
			continue
		}
		if !MatchesActivity(w.Exercise, activityFilter) {
			continue
		}
		workouts = append(workouts, w)
	}
	return workouts, stats
}
