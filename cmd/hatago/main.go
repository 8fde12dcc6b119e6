// Command hatago runs the MCP hub: it federates the upstream servers
// named in a YAML config file behind a single stdio or streamable-HTTP
// endpoint, narrowed from the teacher's cmd/mcplexer multi-subcommand
// CLI (connect/init/status/dry-run/secret/daemon/setup are all tied to
// workspace, oauth, and approval concerns this hub doesn't have) down to
// the one verb that matters here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hatago:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := loadConfig()
	if err := applyFlags(&cfg, args); err != nil {
		return err
	}

	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(logHandler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmdServe(ctx, cfg)
}
