// Package ops carries fitcore's operational concerns: structured
// logging and backup of the addressable cache's file.
package ops

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fitforge/fitcore/internal/config"
)

// Logger is a structured logger wrapper around log/slog.
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a Logger writing to stdout per cfg.
func NewLogger(cfg config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter builds a Logger writing to w, for tests and for the
// outer shell's own log routing.
func NewLoggerWithWriter(cfg config.Logging, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler), level: level, format: cfg.Format}
}

// WithComponent tags every subsequent message with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component), level: l.level, format: l.format}
}

// IsDebugEnabled reports whether debug-level messages are emitted.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// LogRelayConnection logs a relay connection state transition (component B).
func (l *Logger) LogRelayConnection(relay string, connected bool, err error) {
	if err != nil {
		l.Warn("relay connection failed", "relay", relay, "error", err)
		return
	}
	if connected {
		l.Info("relay connected", "relay", relay)
	} else {
		l.Info("relay disconnected", "relay", relay)
	}
}

// LogSubscriptionConverged logs a subscription reaching EOSE convergence
// or deadline (component C).
func (l *Logger) LogSubscriptionConverged(subID string, connectedRelays, totalRelays int, viaDeadline bool) {
	l.Debug("subscription converged",
		"sub_id", subID,
		"connected_relays", connectedRelays,
		"total_relays", totalRelays,
		"via_deadline", viaDeadline)
}

// LogPublishOutcome logs a publish attempt's accepted/rejected split
// (component E).
func (l *Logger) LogPublishOutcome(eventID string, accepted, rejected int, retried bool) {
	l.Info("publish outcome",
		"event_id", eventID,
		"accepted", accepted,
		"rejected", rejected,
		"retried", retried)
}

// LogCacheOperation logs a key/value cache read or write (component F).
func (l *Logger) LogCacheOperation(op string, key string, hit bool, err error) {
	if err != nil {
		l.Warn("cache operation failed", "operation", op, "key", key, "error", err)
		return
	}
	l.Debug("cache operation", "operation", op, "key", key, "hit", hit)
}

// LogMembershipMutation logs a membership add/remove preparation
// (component G).
func (l *Logger) LogMembershipMutation(teamDTag, action, member string) {
	l.Info("membership mutation prepared", "team", teamDTag, "action", action, "member", member)
}

// LogLeaderboardComputed logs a completed leaderboard computation
// (component J).
func (l *Logger) LogLeaderboardComputed(competitionDTag string, goal string, participants int, duration time.Duration) {
	l.Debug("leaderboard computed",
		"competition", competitionDTag,
		"goal", goal,
		"participants", participants,
		"duration_ms", duration.Milliseconds())
}
