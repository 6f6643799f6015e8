// Package competition implements component H: construction, parsing,
// validation, and status lifecycle of league (kind 30100) and event
// (kind 30101) definitions.
package competition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/fitforge/fitcore/internal/addressable"
	"github.com/fitforge/fitcore/internal/nostrevent"
	"github.com/fitforge/fitcore/internal/relaypool"
	"github.com/fitforge/fitcore/internal/team"
	"github.com/fitforge/fitcore/internal/wire"
)

// Kind distinguishes a league from a single-day event.
type Kind int

const (
	KindLeague Kind = iota
	KindEvent
)

// Status is the advisory lifecycle tag; the authoritative state is always
// derived from the time window (spec §4.H).
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ScoringFrequency controls how often standings are recomputed for display.
type ScoringFrequency string

const (
	ScoringDaily  ScoringFrequency = "daily"
	ScoringWeekly ScoringFrequency = "weekly"
	ScoringTotal  ScoringFrequency = "total"
)

// Validation errors (spec §4.H, §7).
var (
	ErrEndBeforeStart      = errors.New("competition: end_date must be after start_date")
	ErrDurationMismatch    = errors.New("competition: duration inconsistent with date range")
	ErrInvalidCompetitionType = errors.New("competition: competition_type not valid for activity_type")
	ErrNonPositiveDuration = errors.New("competition: duration must be positive")
	ErrNonPositiveMax      = errors.New("competition: max_participants must be positive")
	ErrEventNotFuture      = errors.New("competition: event_date must be strictly in the future")
	ErrInvalidScoringFreq  = errors.New("competition: scoring_frequency not recognized")
)

const dateLayout = "2006-01-02"

// competitionTypesByActivity is the fixed enumeration of valid
// competition_type values per activity_type (spec §4.H invariant).
var competitionTypesByActivity = map[string][]string{
	"running":           {"distance", "speed", "duration", "consistency"},
	"walking":           {"distance", "duration", "consistency"},
	"cycling":           {"distance", "speed", "duration", "consistency"},
	"strength_training": {"duration", "consistency"},
	"any":               {"distance", "speed", "duration", "consistency"},
}

// LeagueParams describes a multi-day league (spec §3).
type LeagueParams struct {
	TeamDTag         string
	ActivityType     string
	CompetitionType  string
	StartDate        time.Time
	EndDate          time.Time
	ScoringFrequency ScoringFrequency
	MaxParticipants  int
}

// EventParams describes a single-day event (spec §3).
type EventParams struct {
	TeamDTag        string
	ActivityType    string
	CompetitionType string
	EventDate       time.Time
	TargetDistance  float64 // km, optional (0 means unset)
	TargetUnit      string
	MaxParticipants int
}

// Definition is the parsed view of a league or event, enough to answer
// is_currently_active and drive the leaderboard engine.
type Definition struct {
	Kind             Kind
	DTag             string
	TeamDTag         string
	Captain          string
	ActivityType     string
	CompetitionType  string
	Status           Status
	StartDate        time.Time
	EndDate          time.Time // for events, EventDate+24h
	ScoringFrequency ScoringFrequency
	MaxParticipants  int
	TargetDistanceKm float64
	TargetUnit       string
	Event            *nostr.Event
}

func validateCompetitionType(activityType, competitionType string) error {
	allowed, ok := competitionTypesByActivity[activityType]
	if !ok {
		allowed = competitionTypesByActivity["any"]
	}
	for _, a := range allowed {
		if a == competitionType {
			return nil
		}
	}
	return ErrInvalidCompetitionType
}

// NewLeague validates params and builds an unsigned kind-30100 template.
func NewLeague(params LeagueParams, captainHexOrNpub string, now time.Time) (nostrevent.Template, error) {
	if _, err := team.ToHex(captainHexOrNpub); err != nil {
		return nostrevent.Template{}, err
	}
	if !params.EndDate.After(params.StartDate) {
		return nostrevent.Template{}, ErrEndBeforeStart
	}
	duration := int(params.EndDate.Sub(params.StartDate).Hours() / 24)
	if duration <= 0 {
		return nostrevent.Template{}, ErrNonPositiveDuration
	}
	if diff := params.EndDate.Sub(params.StartDate) - time.Duration(duration)*24*time.Hour; diff < -time.Hour || diff > time.Hour {
		return nostrevent.Template{}, ErrDurationMismatch
	}
	if params.MaxParticipants <= 0 {
		return nostrevent.Template{}, ErrNonPositiveMax
	}
	if err := validateCompetitionType(params.ActivityType, params.CompetitionType); err != nil {
		return nostrevent.Template{}, err
	}
	switch params.ScoringFrequency {
	case ScoringDaily, ScoringWeekly, ScoringTotal:
	default:
		return nostrevent.Template{}, ErrInvalidScoringFreq
	}

	dTag := nostrevent.CompetitionDTag(wire.KindLeague, params.TeamDTag+"-"+params.ActivityType, now)
	tags := nostr.Tags{
		{"d", dTag},
		{"team", params.TeamDTag},
		{"activity_type", params.ActivityType},
		{"competition_type", params.CompetitionType},
		{"start_date", params.StartDate.Format(dateLayout)},
		{"end_date", params.EndDate.Format(dateLayout)},
		{"duration", fmt.Sprintf("%d", duration)},
		{"scoring_frequency", string(params.ScoringFrequency)},
		{"status", string(StatusUpcoming)},
		{"max_participants", fmt.Sprintf("%d", params.MaxParticipants)},
	}
	return nostrevent.Template{Kind: wire.KindLeague, Tags: tags, Content: "{}"}, nil
}

// NewEvent validates params and builds an unsigned kind-30101 template.
// event_date must be strictly in the future relative to now.
func NewEvent(params EventParams, captainHexOrNpub string, now time.Time) (nostrevent.Template, error) {
	if _, err := team.ToHex(captainHexOrNpub); err != nil {
		return nostrevent.Template{}, err
	}
	if !params.EventDate.After(now) {
		return nostrevent.Template{}, ErrEventNotFuture
	}
	if params.MaxParticipants <= 0 {
		return nostrevent.Template{}, ErrNonPositiveMax
	}
	if err := validateCompetitionType(params.ActivityType, params.CompetitionType); err != nil {
		return nostrevent.Template{}, err
	}

	dTag := nostrevent.CompetitionDTag(wire.KindEventDefinition, params.TeamDTag+"-"+params.ActivityType, now)
	tags := nostr.Tags{
		{"d", dTag},
		{"team", params.TeamDTag},
		{"activity_type", params.ActivityType},
		{"competition_type", params.CompetitionType},
		{"event_date", params.EventDate.Format(dateLayout)},
		{"status", string(StatusUpcoming)},
		{"max_participants", fmt.Sprintf("%d", params.MaxParticipants)},
	}
	if params.TargetDistance > 0 {
		tags = append(tags, nostr.Tag{"target_value", fmt.Sprintf("%g", params.TargetDistance)})
		tags = append(tags, nostr.Tag{"target_unit", params.TargetUnit})
	}
	return nostrevent.Template{Kind: wire.KindEventDefinition, Tags: tags, Content: "{}"}, nil
}

// Parse extracts a Definition from a league or event event.
func Parse(ev *nostr.Event) (Definition, error) {
	d := Definition{
		DTag:             wire.DTag(ev),
		TeamDTag:         wire.TagValue(ev, "team"),
		Captain:          ev.PubKey,
		ActivityType:     wire.TagValue(ev, "activity_type"),
		CompetitionType:  wire.TagValue(ev, "competition_type"),
		Status:           Status(wire.TagValue(ev, "status")),
		ScoringFrequency: ScoringFrequency(wire.TagValue(ev, "scoring_frequency")),
		Event:            ev,
	}
	var maxP int
	fmt.Sscanf(wire.TagValue(ev, "max_participants"), "%d", &maxP)
	d.MaxParticipants = maxP

	switch ev.Kind {
	case wire.KindLeague:
		d.Kind = KindLeague
		d.StartDate, _ = time.Parse(dateLayout, wire.TagValue(ev, "start_date"))
		d.EndDate, _ = time.Parse(dateLayout, wire.TagValue(ev, "end_date"))
	case wire.KindEventDefinition:
		d.Kind = KindEvent
		eventDate, _ := time.Parse(dateLayout, wire.TagValue(ev, "event_date"))
		d.StartDate = eventDate
		d.EndDate = eventDate.Add(24 * time.Hour)
		fmt.Sscanf(wire.TagValue(ev, "target_value"), "%g", &d.TargetDistanceKm)
		d.TargetUnit = wire.TagValue(ev, "target_unit")
	default:
		return Definition{}, errors.New("competition: not a league or event definition")
	}
	return d, nil
}

// IsCurrentlyActive reports whether the time window contains now. The
// status tag is advisory only — the window is authoritative (spec §4.H).
func IsCurrentlyActive(d Definition, now time.Time) bool {
	switch d.Kind {
	case KindLeague:
		return !now.Before(d.StartDate) && !now.After(d.EndDate)
	case KindEvent:
		return !now.Before(d.StartDate) && now.Before(d.EndDate)
	default:
		return false
	}
}

// UpdateStatus rebuilds d's event with a new status tag and fresh
// created_at, ready for the caller to re-sign and publish. The replace
// rule in the addressable store ensures convergence (spec §4.H).
func UpdateStatus(d Definition, newStatus Status, now time.Time) nostrevent.Template {
	tags := make(nostr.Tags, 0, len(d.Event.Tags))
	for _, t := range d.Event.Tags {
		if len(t) >= 1 && t[0] == "status" {
			continue
		}
		tags = append(tags, t)
	}
	tags = append(tags, nostr.Tag{"status", string(newStatus)})
	kind := wire.KindLeague
	if d.Kind == KindEvent {
		kind = wire.KindEventDefinition
	}
	return nostrevent.Template{
		Kind:      kind,
		Tags:      tags,
		Content:   d.Event.Content,
		CreatedAt: nostr.Timestamp(now.Unix()),
	}
}

// Service queries leagues and events for a team through the relay pool,
// deduplicated via the addressable store.
type Service struct {
	store *addressable.Store
	pool  *relaypool.Pool
}

// New constructs a Service.
func New(store *addressable.Store, pool *relaypool.Pool) *Service {
	return &Service{store: store, pool: pool}
}

// QueryForTeam fetches every league and event definition tagged with
// teamDTag, deduplicated and superseded through the addressable store.
func (s *Service) QueryForTeam(ctx context.Context, teamDTag string, deadline time.Duration) (leagues, events []Definition, err error) {
	raw := s.pool.FetchEvents(ctx, deadline, nostr.Filter{
		Kinds: []int{wire.KindLeague, wire.KindEventDefinition},
		Tags:  nostr.TagMap{"team": []string{teamDTag}},
	})
	for _, ev := range raw {
		s.store.Put(ev)
	}

	seen := make(map[string]bool)
	for _, ev := range raw {
		coord := wire.CoordinateOf(ev)
		k := coord.Pubkey + "/" + coord.DTag
		if seen[k] {
			continue
		}
		seen[k] = true
		latest := s.store.Get(coord)
		if latest == nil {
			latest = ev
		}
		d, parseErr := Parse(latest)
		if parseErr != nil {
			continue
		}
		if d.Kind == KindLeague {
			leagues = append(leagues, d)
		} else {
			events = append(events, d)
		}
	}
	return leagues, events, nil
}
