// Package leaderboard implements component J: deterministic scoring of a
// cohort of authors over a time window against a competition's goal type,
// with fixed tie-breaks and display formatting.
package leaderboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fitforge/fitcore/internal/workout"
)

// GoalType is the scoring mode a competition evaluates against.
type GoalType string

const (
	GoalDistance    GoalType = "distance"
	GoalSpeed       GoalType = "speed"
	GoalDuration    GoalType = "duration"
	GoalConsistency GoalType = "consistency"
	GoalFastestTime GoalType = "fastest_time"
	GoalAveragePace GoalType = "average_pace"
)

// lowerIsBetter reports whether a smaller score wins for goal.
func lowerIsBetter(goal GoalType) bool {
	return goal == GoalFastestTime || goal == GoalAveragePace
}

// Entry is one participant's computed result (spec §4.J).
type Entry struct {
	Pubkey         string
	Rank           int
	Score          float64 // unrounded, used for ranking
	FormattedScore string
	WorkoutCount   int
	TotalDistanceM float64
	TotalDuration  time.Duration
	LastActivity   time.Time
	Qualified      bool // false if the participant has no valid score for this goal
}

// Result is the full computed leaderboard.
type Result struct {
	Goal          GoalType
	Entries       []Entry
	ScoringMethod string
}

const (
	minValidPaceMinPerKm = 0.0
	maxValidPaceMinPerKm = 30.0
	fastestTimeTolerance = 0.95
)

func paceMinPerKm(w workout.Workout) (float64, bool) {
	if w.DistanceKm <= 0 {
		return 0, false
	}
	pace := (float64(w.DurationSec) / 60.0) / w.DistanceKm
	if pace <= minValidPaceMinPerKm || pace >= maxValidPaceMinPerKm {
		return 0, false
	}
	return pace, true
}

// Compute aggregates workouts per participant in cohort and ranks them
// according to goal. workouts may include entries for pubkeys outside
// cohort; those are ignored. targetDistanceKm is only consulted for
// fastest_time.
func Compute(cohort []string, goal GoalType, workouts []workout.Workout, targetDistanceKm float64) Result {
	byAuthor := make(map[string][]workout.Workout, len(cohort))
	for _, pk := range cohort {
		byAuthor[pk] = nil
	}
	for _, w := range workouts {
		if _, ok := byAuthor[w.Author]; ok {
			byAuthor[w.Author] = append(byAuthor[w.Author], w)
		}
	}

	entries := make([]Entry, 0, len(cohort))
	for _, pk := range cohort {
		entries = append(entries, computeEntry(pk, byAuthor[pk], goal, targetDistanceKm))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j], goal)
	})
	assignDenseRanks(entries, goal)

	return Result{
		Goal:          goal,
		Entries:       entries,
		ScoringMethod: scoringMethodDescription(goal),
	}
}

func computeEntry(pubkey string, workouts []workout.Workout, goal GoalType, targetDistanceKm float64) Entry {
	e := Entry{Pubkey: pubkey, WorkoutCount: len(workouts)}
	for _, w := range workouts {
		e.TotalDistanceM += w.DistanceKm * 1000
		e.TotalDuration += time.Duration(w.DurationSec) * time.Second
		if w.CreatedAt.After(e.LastActivity) {
			e.LastActivity = w.CreatedAt
		}
	}

	switch goal {
	case GoalDistance:
		e.Score = e.TotalDistanceM
		e.Qualified = true

	case GoalDuration:
		e.Score = e.TotalDuration.Seconds()
		e.Qualified = true

	case GoalConsistency:
		e.Score = float64(len(workouts))
		e.Qualified = true

	case GoalSpeed:
		var paces []float64
		for _, w := range workouts {
			if p, ok := paceMinPerKm(w); ok {
				paces = append(paces, p)
			}
		}
		if len(paces) == 0 {
			e.Qualified = false
			break
		}
		var sum float64
		for _, p := range paces {
			sum += p
		}
		mean := sum / float64(len(paces))
		e.Score = 1000.0 / mean
		e.Qualified = true

	case GoalFastestTime:
		best := math.Inf(1)
		for _, w := range workouts {
			if w.DistanceKm >= fastestTimeTolerance*targetDistanceKm {
				if float64(w.DurationSec) < best {
					best = float64(w.DurationSec)
				}
			}
		}
		if math.IsInf(best, 1) {
			e.Qualified = false
			break
		}
		e.Score = best
		e.Qualified = true

	case GoalAveragePace:
		best := math.Inf(1)
		for _, w := range workouts {
			if p, ok := paceMinPerKm(w); ok && p < best {
				best = p
			}
		}
		if math.IsInf(best, 1) {
			e.Qualified = false
			break
		}
		e.Score = best
		e.Qualified = true
	}

	e.FormattedScore = format(goal, e)
	return e
}

// less implements the ranking order for goal: unqualified participants
// sort last; among qualified participants, better score wins, ties break
// by workout_count desc, then last_activity asc, then pubkey asc (spec
// §4.J).
func less(a, b Entry, goal GoalType) bool {
	if a.Qualified != b.Qualified {
		return a.Qualified // qualified sorts before unqualified
	}
	if !a.Qualified {
		return a.Pubkey < b.Pubkey
	}
	if a.Score != b.Score {
		if lowerIsBetter(goal) {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	if a.WorkoutCount != b.WorkoutCount {
		return a.WorkoutCount > b.WorkoutCount
	}
	if !a.LastActivity.Equal(b.LastActivity) {
		return a.LastActivity.Before(b.LastActivity)
	}
	return a.Pubkey < b.Pubkey
}

// assignDenseRanks assigns 1,2,3,... sharing a rank only when all three
// tie-break keys are equal (spec §4.J).
func assignDenseRanks(entries []Entry, goal GoalType) {
	rank := 0
	for i := range entries {
		if i == 0 || !tiedExactly(entries[i-1], entries[i]) {
			rank++
		}
		entries[i].Rank = rank
	}
}

func tiedExactly(a, b Entry) bool {
	return a.Qualified == b.Qualified &&
		a.Score == b.Score &&
		a.WorkoutCount == b.WorkoutCount &&
		a.LastActivity.Equal(b.LastActivity)
}

func format(goal GoalType, e Entry) string {
	if !e.Qualified {
		return "--"
	}
	switch goal {
	case GoalDistance:
		return fmt.Sprintf("%.2f km", e.Score/1000.0)
	case GoalDuration:
		return formatHoursMinutes(e.Score)
	case GoalConsistency:
		return fmt.Sprintf("%d workouts", int(e.Score))
	case GoalSpeed:
		return formatPace(1000.0 / e.Score)
	case GoalFastestTime:
		return formatClock(e.Score)
	case GoalAveragePace:
		return formatPace(e.Score)
	default:
		return fmt.Sprintf("%.2f", e.Score)
	}
}

func formatHoursMinutes(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	return fmt.Sprintf("%dh %dm", h, m)
}

func formatClock(seconds float64) string {
	total := int(seconds)
	m := total / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatPace(paceMinPerKm float64) string {
	m := int(paceMinPerKm)
	s := int((paceMinPerKm - float64(m)) * 60)
	return fmt.Sprintf("%d:%02d /km", m, s)
}

func scoringMethodDescription(goal GoalType) string {
	switch goal {
	case GoalDistance:
		return "Total distance covered, highest wins"
	case GoalSpeed:
		return "Average pace across qualifying workouts, fastest wins"
	case GoalDuration:
		return "Total time spent, highest wins"
	case GoalConsistency:
		return "Number of workouts logged, most wins"
	case GoalFastestTime:
		return "Fastest single workout meeting the target distance"
	case GoalAveragePace:
		return "Best single-workout pace"
	default:
		return "Unknown scoring method"
	}
}
