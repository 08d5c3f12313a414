// Package config holds the engine-wide Config struct and its functional
// options, following the same pattern as the teacher's types.Config/
// types.Option (types/config.go, types/options.go): a struct of sane
// defaults built by NewConfig, customized via With* option funcs.
package config

import (
	"time"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// DefaultPatchRateLimit is the minimum interval between outbound patches
// for the same entity (spec.md §6, "the engine MUST NOT transmit patches
// for the same entity more often than every 90ms by default").
const DefaultPatchRateLimit = 90 * time.Millisecond

// Config is passed to csp.NewFoundation and threaded down into the
// multiplayer/online and multiplayer/offline engines, the script host, and
// the optional telemetry bridge.
type Config struct {
	Logger common.Logger

	// PatchRateLimit is the minimum interval between outbound patches for a
	// given entity. RateLimitDisabled overrides it entirely.
	PatchRateLimit    time.Duration
	RateLimitDisabled bool

	// FetchPageSize is the page size used by the online engine's initial
	// scoped-object fetch (spec.md §4.7).
	FetchPageSize int

	// ScriptMaxExecutionTime is the wall-time budget for one dispatched
	// script message (script.Host); an overrun is logged after the
	// callbacks return, and the script is not interrupted.
	ScriptMaxExecutionTime time.Duration

	// LeaderElectionEnabled turns on the bully-algorithm leader election
	// (election.LeaderElection) once the initial fetch completes.
	LeaderElectionEnabled bool
	HeartbeatInterval     time.Duration

	// MetricsEnabled registers the engine's prometheus collectors. Off by
	// default so importing this module never has a process-global side
	// effect the caller did not ask for.
	MetricsEnabled bool

	// MQTTBrokerURL, if non-empty, starts a telemetry.MQTTEventBridge
	// relaying entity lifecycle events to the given broker. Empty leaves
	// telemetry inert (config package, §6.2 EXPANSION).
	MQTTBrokerURL string
	MQTTClientID  string

	AssetSystem common.AssetSystem
}

// Option customizes a Config built by NewConfig.
type Option func(*Config)

// NewConfig returns a Config with production defaults, then applies opts in
// order.
func NewConfig(opts ...Option) Config {
	c := Config{
		Logger:                 common.DefaultLogger(),
		PatchRateLimit:         DefaultPatchRateLimit,
		FetchPageSize:          100,
		ScriptMaxExecutionTime: 2 * time.Second,
		HeartbeatInterval:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	common.WithMismatchLogger(c.Logger)
	if c.MetricsEnabled {
		RegisterMetrics()
	}
	return c
}

func WithLogger(l common.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithPatchRateLimit(d time.Duration) Option {
	return func(c *Config) { c.PatchRateLimit = d }
}

func WithRateLimitDisabled(disabled bool) Option {
	return func(c *Config) { c.RateLimitDisabled = disabled }
}

func WithFetchPageSize(n int) Option {
	return func(c *Config) { c.FetchPageSize = n }
}

func WithScriptMaxExecutionTime(d time.Duration) Option {
	return func(c *Config) { c.ScriptMaxExecutionTime = d }
}

func WithLeaderElection(enabled bool, heartbeat time.Duration) Option {
	return func(c *Config) {
		c.LeaderElectionEnabled = enabled
		if heartbeat > 0 {
			c.HeartbeatInterval = heartbeat
		}
	}
}

func WithMetricsEnabled(enabled bool) Option {
	return func(c *Config) { c.MetricsEnabled = enabled }
}

func WithMQTTEventBridge(brokerURL, clientID string) Option {
	return func(c *Config) {
		c.MQTTBrokerURL = brokerURL
		c.MQTTClientID = clientID
	}
}

func WithAssetSystem(a common.AssetSystem) Option {
	return func(c *Config) { c.AssetSystem = a }
}
