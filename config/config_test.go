package config

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.Logger == nil {
		t.Errorf("expected a default logger")
	}
	if c.PatchRateLimit != DefaultPatchRateLimit {
		t.Errorf("PatchRateLimit = %v, want %v", c.PatchRateLimit, DefaultPatchRateLimit)
	}
	if c.FetchPageSize != 100 {
		t.Errorf("FetchPageSize = %d, want 100", c.FetchPageSize)
	}
	if c.RateLimitDisabled || c.LeaderElectionEnabled || c.MetricsEnabled {
		t.Errorf("expected all opt-in flags to default to false")
	}
}

func TestOptionsAreApplied(t *testing.T) {
	c := NewConfig(
		WithPatchRateLimit(250*time.Millisecond),
		WithRateLimitDisabled(true),
		WithFetchPageSize(50),
		WithScriptMaxExecutionTime(time.Second),
		WithLeaderElection(true, 2*time.Second),
		WithMQTTEventBridge("tcp://broker:1883", "client-1"),
	)
	if c.PatchRateLimit != 250*time.Millisecond {
		t.Errorf("PatchRateLimit = %v", c.PatchRateLimit)
	}
	if !c.RateLimitDisabled {
		t.Errorf("expected RateLimitDisabled to be true")
	}
	if c.FetchPageSize != 50 {
		t.Errorf("FetchPageSize = %d", c.FetchPageSize)
	}
	if !c.LeaderElectionEnabled || c.HeartbeatInterval != 2*time.Second {
		t.Errorf("leader election option not applied: enabled=%v heartbeat=%v", c.LeaderElectionEnabled, c.HeartbeatInterval)
	}
	if c.MQTTBrokerURL != "tcp://broker:1883" || c.MQTTClientID != "client-1" {
		t.Errorf("MQTT option not applied: %q %q", c.MQTTBrokerURL, c.MQTTClientID)
	}
}

func TestWithLeaderElectionKeepsDefaultHeartbeatWhenZero(t *testing.T) {
	c := NewConfig(WithLeaderElection(true, 0))
	if c.HeartbeatInterval != 5*time.Second {
		t.Errorf("expected a zero heartbeat override to keep the default, got %v", c.HeartbeatInterval)
	}
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("RegisterMetrics should tolerate repeated calls, panicked: %v", r)
		}
	}()
	RegisterMetrics()
	RegisterMetrics()
}
