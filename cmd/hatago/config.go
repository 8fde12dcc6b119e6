package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Config is the composition root's env-var-driven configuration,
// narrowed from the teacher's cmd/mcplexer/config.go (which also
// carries DB driver/DSN, age key paths, and a control socket this hub
// has no use for).
type Config struct {
	Mode       string // "stdio" or "http"
	HTTPAddr   string
	ConfigFile string
	DBPath     string // empty selects the in-memory store
	LogLevel   string
	Stateless  bool
}

func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".hatago", filename)
}

func loadConfig() Config {
	return Config{
		Mode:       envOr("HATAGO_MODE", "stdio"),
		HTTPAddr:   envOr("HATAGO_ADDR", ":8765"),
		ConfigFile: envOr("HATAGO_CONFIG", defaultDataPath("hatago.yaml")),
		DBPath:     os.Getenv("HATAGO_DB"),
		LogLevel:   envOr("HATAGO_LOG_LEVEL", "info"),
		Stateless:  envOr("HATAGO_STATELESS", "") == "1",
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
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

// applyFlags overrides cfg with any "--flag=value" arguments in args,
// mirroring the teacher's minimal hand-rolled flag parsing rather than
// pulling in a CLI framework for half a dozen knobs.
func applyFlags(cfg *Config, args []string) error {
	for _, arg := range args {
		if len(arg) < 2 || arg[:2] != "--" {
			continue
		}
		name, value, ok := cutFlag(arg[2:])
		if !ok {
			return fmt.Errorf("invalid flag %q, expected --name=value", arg)
		}
		switch name {
		case "mode":
			cfg.Mode = value
		case "addr":
			cfg.HTTPAddr = value
		case "config":
			cfg.ConfigFile = value
		case "db":
			cfg.DBPath = value
		case "log-level":
			cfg.LogLevel = value
		case "stateless":
			cfg.Stateless = value == "" || value == "1" || value == "true"
		default:
			return fmt.Errorf("unknown flag --%s", name)
		}
	}
	return nil
}

func cutFlag(s string) (name, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", true
}
