package ops

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fitforge/fitcore/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Logging
	}{
		{"text format", config.Logging{Level: "info", Format: "text"}},
		{"json format", config.Logging{Level: "debug", Format: "json"}},
		{"warn level", config.Logging{Level: "warn", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.cfg)
			if logger == nil {
				t.Fatal("expected logger to be created")
			}
			if logger.format != tt.cfg.Format {
				t.Errorf("expected format %s, got %s", tt.cfg.Format, logger.format)
			}
		})
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.Logging{Level: "info", Format: "text"}, &buf)
	componentLogger := logger.WithComponent("relaypool")

	componentLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected log output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, "component=relaypool") {
		t.Errorf("expected log output to contain component=relaypool, got: %s", output)
	}
}

func TestIsDebugEnabled(t *testing.T) {
	tests := []struct {
		level    string
		expected bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(config.Logging{Level: tt.level, Format: "text"})
			if logger.IsDebugEnabled() != tt.expected {
				t.Errorf("expected IsDebugEnabled=%v for level %s", tt.expected, tt.level)
			}
		})
	}
}

func TestLoggerHelpersDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.Logging{Level: "debug", Format: "text"}, &buf)

	logger.LogRelayConnection("wss://relay.test", true, nil)
	logger.LogSubscriptionConverged("sub1", 2, 3, false)
	logger.LogPublishOutcome("event123", 2, 1, true)
	logger.LogCacheOperation("get", "addressable/pk/30000/x", true, nil)
	logger.LogMembershipMutation("runners-ab12", "add", "p1")
	logger.LogLeaderboardComputed("30100_runners_abc_123", "distance", 3, 5*time.Millisecond)

	if buf.Len() == 0 {
		t.Error("expected log output, got empty buffer")
	}
}
