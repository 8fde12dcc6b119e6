package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hatago/hatago/internal/config"
	"github.com/hatago/hatago/internal/hub"
	"github.com/hatago/hatago/internal/httpapi"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/router"
	"github.com/hatago/hatago/internal/session"
	"github.com/hatago/hatago/internal/store"
	"github.com/hatago/hatago/internal/store/sqlite"
	"github.com/hatago/hatago/internal/supervisor"
	"github.com/hatago/hatago/internal/transport"
	"golang.org/x/sync/errgroup"
)

// fleet is everything cmdServe builds from a HubConfig, kept together so
// shutdown can unwind it in the right order.
type fleet struct {
	reg       *registry.Registry
	bus       *supervisor.Bus
	upstreams map[string]*supervisor.Upstream
	rt        *router.Router
	sessions  *session.Manager
	hub       *hub.Hub
	st        store.Store
	writer    *store.Writer
}

func buildFleet(cfg Config, hc config.HubConfig) *fleet {
	naming := registry.NamingConfig{
		Strategy:        registry.Strategy(hc.ToolNaming.Strategy),
		Separator:       hc.ToolNaming.Separator,
		Aliases:         hc.ToolNaming.Aliases,
		CollisionPolicy: registry.CollisionError,
	}
	if naming.Strategy == "" {
		naming = registry.DefaultNamingConfig()
	}

	bus := supervisor.NewBus()
	reg := registry.New(naming, nil)

	upstreams := make(map[string]*supervisor.Upstream, len(hc.McpServers))
	for id, sc := range hc.McpServers {
		upstreams[id] = supervisor.New(supervisor.Config{
			ServerID:         id,
			NewTransport:     transportFactory(sc),
			ActivationPolicy: supervisor.ActivationPolicy(sc.ActivationPolicy),
			ConnectTimeout:   sc.ConnectTimeout(hc),
			CallTimeout:      sc.RequestTimeout(hc),
			IdleTimeout:      time.Duration(sc.IdlePolicy.IdleTimeoutMs) * time.Millisecond,
			MinLinger:        time.Duration(sc.IdlePolicy.MinLingerMs) * time.Millisecond,
			MaxRestarts:      sc.MaxRestarts,
		}, bus, reg)
	}

	rt := router.New(reg, upstreams)
	sessions := session.NewManager()
	h := hub.New(reg, rt, sessions)

	st, err := openStore(cfg.DBPath)
	if err != nil {
		slog.Warn("falling back to in-memory store", "error", err)
		st = store.NewMemory()
	}
	writer := store.NewWriter(st, store.DefaultFlushInterval)
	store.WireUpstreamPersistence(bus, reg, writer)

	return &fleet{
		reg:       reg,
		bus:       bus,
		upstreams: upstreams,
		rt:        rt,
		sessions:  sessions,
		hub:       h,
		st:        st,
		writer:    writer,
	}
}

func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	db, err := sqlite.New(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store at %s: %w", path, err)
	}
	return db, nil
}

func transportFactory(sc config.ServerConfig) supervisor.TransportFactory {
	switch sc.Kind {
	case config.KindHTTP:
		return func() transport.Transport {
			return transport.NewHTTP(sc.ID, sc.URL, toHeader(sc.Headers))
		}
	case config.KindSSE:
		return func() transport.Transport {
			return transport.NewSSE(sc.ID, sc.URL, toHeader(sc.Headers))
		}
	default:
		return func() transport.Transport {
			return transport.NewStdio(sc.ID, sc.Command, sc.Args, sc.Env).WithCwd(sc.Cwd)
		}
	}
}

func toHeader(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// activateAlways activates every upstream configured with the "always"
// policy before the hub starts serving, per the hub config's startup
// activation semantics.
func activateAlways(ctx context.Context, hc config.HubConfig, f *fleet) {
	for id, sc := range hc.McpServers {
		if sc.ActivationPolicy != config.ActivationAlways {
			continue
		}
		up := f.upstreams[id]
		if err := up.Activate(ctx, supervisor.SourceStartup); err != nil {
			slog.Error("startup activation failed", "server", id, "error", err)
		}
	}
}

func (f *fleet) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var g errgroup.Group
	for id, up := range f.upstreams {
		id, up := id, up
		g.Go(func() error {
			if err := up.Shutdown(ctx); err != nil {
				slog.Warn("upstream shutdown error", "server", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := f.writer.Close(); err != nil {
		slog.Warn("store writer close error", "error", err)
	}
	if err := f.st.Close(); err != nil {
		slog.Warn("store close error", "error", err)
	}
}

func runStdio(ctx context.Context, f *fleet) error {
	srv := hub.NewServer(f.hub, f.sessions)
	return srv.RunStdio(ctx)
}

func runHTTP(ctx context.Context, cfg Config, f *fleet) error {
	httpSrv := httpapi.NewServer(httpapi.Deps{
		Hub:       f.hub,
		Sessions:  f.sessions,
		Stateless: cfg.Stateless,
	})
	httpSrv.WireRetryCounter(f.bus)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpSrv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func cmdServe(ctx context.Context, cfg Config) error {
	hc, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f := buildFleet(cfg, hc)
	defer f.Close()

	activateAlways(ctx, hc, f)

	switch cfg.Mode {
	case "http":
		return runHTTP(ctx, cfg, f)
	case "stdio":
		return runStdio(ctx, f)
	default:
		return fmt.Errorf("unknown mode %q (want stdio or http)", cfg.Mode)
	}
}
