// Package config is the collaborator the core receives an already-
// validated configuration value from: it is explicitly out of the hard
// core's scope per spec §1 ("configuration file reading/validation"),
// but this module still ships it so the hub runs end-to-end. Grounded
// on the teacher's internal/config/loader.go (YAML parsing + upsert
// shape), narrowed to the tagged-variant ServerConfig spec §6/§9
// describes instead of the teacher's duck-typed downstream-server row.
package config

import "time"

// ServerKind discriminates the three upstream transport kinds, per spec
// §9's "tagged variant, not duck typing" redesign note.
type ServerKind string

const (
	KindStdio ServerKind = "stdio"
	KindHTTP  ServerKind = "http"
	KindSSE   ServerKind = "sse"
)

// ActivationPolicy mirrors internal/supervisor.ActivationPolicy's three
// values; kept as a separate string type here so this package never
// needs to import the core to describe configuration shape.
type ActivationPolicy string

const (
	ActivationAlways   ActivationPolicy = "always"
	ActivationOnDemand ActivationPolicy = "onDemand"
	ActivationManual   ActivationPolicy = "manual"
)

// ActivityReset selects which edge of a call resets lastActivityAt, per
// spec §3.
type ActivityReset string

const (
	ActivityResetOnCallStart ActivityReset = "onCallStart"
	ActivityResetOnCallEnd   ActivityReset = "onCallEnd"
)

// Timeouts bounds the three durations spec §3 associates with an
// upstream connection.
type Timeouts struct {
	ConnectMs   int `yaml:"connect_ms"`
	RequestMs   int `yaml:"request_ms"`
	KeepAliveMs int `yaml:"keep_alive_ms"`
}

// IdlePolicy governs when an idle upstream may be stopped, per spec §3.
type IdlePolicy struct {
	IdleTimeoutMs int           `yaml:"idle_timeout_ms"`
	MinLingerMs   int           `yaml:"min_linger_ms"`
	ActivityReset ActivityReset `yaml:"activity_reset"`
}

// ServerConfig is one upstream's immutable-after-registration
// description, per spec §3's "Config (immutable after registration)".
type ServerConfig struct {
	ID   string
	Kind ServerKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string

	// http | sse
	URL     string
	Headers map[string]string

	Timeouts         Timeouts
	ActivationPolicy ActivationPolicy
	IdlePolicy       IdlePolicy
	MaxRestarts      int
	Tags             []string
}

// ToolNaming configures the registry's public-name generation, per spec
// §4.2.
type ToolNaming struct {
	Strategy  string                       `yaml:"strategy"`
	Separator string                       `yaml:"separator"`
	Aliases   map[string]map[string]string `yaml:"aliases,omitempty"`
}

// HubConfig is the validated value the core receives, per spec §6's
// "Configuration (collaborator-provided)" shape.
type HubConfig struct {
	Version    int
	LogLevel   string
	McpServers map[string]ServerConfig
	ToolNaming ToolNaming
	Timeouts   Timeouts
	ShutdownMs int
}

// DefaultShutdownDuration is spec §4.1's default shutdown deadline.
const DefaultShutdownDuration = 5 * time.Second

// ShutdownDuration returns the configured shutdown deadline, falling
// back to the spec default when unset.
func (c HubConfig) ShutdownDuration() time.Duration {
	if c.ShutdownMs <= 0 {
		return DefaultShutdownDuration
	}
	return time.Duration(c.ShutdownMs) * time.Millisecond
}

func msOr(ms, fallbackMs int) time.Duration {
	if ms <= 0 {
		return time.Duration(fallbackMs) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// ConnectTimeout returns sc's connect deadline, falling back to hub-wide
// defaults from cfg.Timeouts, then a hardcoded 30s.
func (sc ServerConfig) ConnectTimeout(cfg HubConfig) time.Duration {
	if sc.Timeouts.ConnectMs > 0 {
		return time.Duration(sc.Timeouts.ConnectMs) * time.Millisecond
	}
	return msOr(cfg.Timeouts.ConnectMs, 30000)
}

// RequestTimeout returns sc's per-call deadline, falling back to
// hub-wide defaults from cfg.Timeouts, then a hardcoded 60s.
func (sc ServerConfig) RequestTimeout(cfg HubConfig) time.Duration {
	if sc.Timeouts.RequestMs > 0 {
		return time.Duration(sc.Timeouts.RequestMs) * time.Millisecond
	}
	return msOr(cfg.Timeouts.RequestMs, 60000)
}
