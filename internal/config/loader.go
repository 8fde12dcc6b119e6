package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the raw YAML shape, pre-expansion and pre-validation.
// Field names mirror spec §6's wire shape directly, unlike the
// teacher's flatter downstreamServerConfig (which dropped tool/resource
// namespacing concerns this hub needs).
type fileConfig struct {
	Version    int                     `yaml:"version"`
	LogLevel   string                  `yaml:"logLevel"`
	McpServers map[string]fileServer   `yaml:"mcpServers"`
	ToolNaming *fileToolNaming         `yaml:"toolNaming,omitempty"`
	Timeouts   *fileTimeouts           `yaml:"timeouts,omitempty"`
	ShutdownMs int                     `yaml:"shutdownMs,omitempty"`
}

type fileToolNaming struct {
	Strategy  string                       `yaml:"strategy"`
	Separator string                       `yaml:"separator"`
	Aliases   map[string]map[string]string `yaml:"aliases,omitempty"`
}

type fileTimeouts struct {
	ConnectMs   int `yaml:"connectMs"`
	RequestMs   int `yaml:"requestMs"`
	KeepAliveMs int `yaml:"keepAliveMs"`
}

type fileIdlePolicy struct {
	IdleTimeoutMs int    `yaml:"idleTimeoutMs"`
	MinLingerMs   int    `yaml:"minLingerMs"`
	ActivityReset string `yaml:"activityReset"`
}

// fileServer is the duck-typed union the spec's collaborator contract
// describes ("one of a stdio spec, an http spec, or an sse spec");
// Type disambiguates explicitly rather than inferring from which fields
// are set, per spec §9's tagged-variant redesign note.
type fileServer struct {
	Type             string            `yaml:"type,omitempty"` // "stdio" (default), "http", "sse"
	Command          string            `yaml:"command,omitempty"`
	Args             []string          `yaml:"args,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	Cwd              string            `yaml:"cwd,omitempty"`
	URL              string            `yaml:"url,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty"`
	Timeouts         *fileTimeouts     `yaml:"timeouts,omitempty"`
	ActivationPolicy string            `yaml:"activationPolicy,omitempty"`
	IdlePolicy       *fileIdlePolicy   `yaml:"idlePolicy,omitempty"`
	MaxRestarts      int               `yaml:"maxRestarts,omitempty"`
	Tags             []string          `yaml:"tags,omitempty"`
}

// LoadFile reads, expands, parses, and validates a YAML config file into
// a HubConfig ready for the core to consume.
func LoadFile(path string) (HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HubConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR}/${VAR:-default} references, parses YAML, and
// validates the result.
func Parse(data []byte) (HubConfig, error) {
	expanded := expandVars(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return HubConfig{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(&fc); err != nil {
		return HubConfig{}, err
	}
	return toHubConfig(fc), nil
}

// expandVars performs ${VAR} and ${VAR:-default} substitution against
// the process environment, mirroring internal/downstream/env.go's
// expandVars idiom with os.Expand as its engine.
func expandVars(s string) string {
	return os.Expand(s, func(key string) string {
		if name, def, ok := strings.Cut(key, ":-"); ok {
			if v, present := os.LookupEnv(name); present {
				return v
			}
			return def
		}
		return os.Getenv(key)
	})
}

func toHubConfig(fc fileConfig) HubConfig {
	cfg := HubConfig{
		Version:    fc.Version,
		LogLevel:   fc.LogLevel,
		McpServers: make(map[string]ServerConfig, len(fc.McpServers)),
		ShutdownMs: fc.ShutdownMs,
	}
	if fc.ToolNaming != nil {
		cfg.ToolNaming = ToolNaming{
			Strategy:  fc.ToolNaming.Strategy,
			Separator: fc.ToolNaming.Separator,
			Aliases:   fc.ToolNaming.Aliases,
		}
	}
	if fc.Timeouts != nil {
		cfg.Timeouts = Timeouts{
			ConnectMs:   fc.Timeouts.ConnectMs,
			RequestMs:   fc.Timeouts.RequestMs,
			KeepAliveMs: fc.Timeouts.KeepAliveMs,
		}
	}
	for id, fs := range fc.McpServers {
		cfg.McpServers[id] = toServerConfig(id, fs)
	}
	return cfg
}

func toServerConfig(id string, fs fileServer) ServerConfig {
	kind := KindStdio
	switch fs.Type {
	case "http":
		kind = KindHTTP
	case "sse":
		kind = KindSSE
	case "stdio", "":
		kind = KindStdio
	}

	sc := ServerConfig{
		ID:               id,
		Kind:             kind,
		Command:          fs.Command,
		Args:             fs.Args,
		Env:              fs.Env,
		Cwd:              fs.Cwd,
		URL:              fs.URL,
		Headers:          fs.Headers,
		ActivationPolicy: ActivationPolicy(fs.ActivationPolicy),
		MaxRestarts:      fs.MaxRestarts,
		Tags:             fs.Tags,
	}
	if fs.Timeouts != nil {
		sc.Timeouts = Timeouts{
			ConnectMs:   fs.Timeouts.ConnectMs,
			RequestMs:   fs.Timeouts.RequestMs,
			KeepAliveMs: fs.Timeouts.KeepAliveMs,
		}
	}
	if fs.IdlePolicy != nil {
		sc.IdlePolicy = IdlePolicy{
			IdleTimeoutMs: fs.IdlePolicy.IdleTimeoutMs,
			MinLingerMs:   fs.IdlePolicy.MinLingerMs,
			ActivityReset: ActivityReset(fs.IdlePolicy.ActivityReset),
		}
	}
	return sc
}
