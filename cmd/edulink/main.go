package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"edulink/internal/auth"
	"edulink/internal/backend"
	"edulink/internal/cache"
	"edulink/internal/cli"
	"edulink/internal/config"
	apphttp "edulink/internal/http"
	"edulink/internal/inflight"
	"edulink/internal/log"
	"edulink/internal/tokenstore"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Warn("Failed to load .env", log.FieldError, err.Error())
	}

	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	logger.Info("Starting edulink", "port", cfg.Port, "backend", cfg.BackendType)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to create backend", err)
	}

	if result.Processor != nil {
		if err := result.Processor.Start(ctx); err != nil {
			cli.Fatal(logger, "Failed to start sync processor", err)
		}
	}

	var readiness []apphttp.ReadinessCheck
	if result.Outbox != nil {
		readiness = append(readiness, apphttp.ReadinessCheck{Name: "outbox", Check: result.Outbox.Ping})
	}

	var guard inflight.Guard = inflight.NewLocal()
	redisClient, err := cli.InitRedis(ctx, cfg)
	switch {
	case err != nil:
		logger.Warn("Redis unavailable, in-flight guard is per instance", log.FieldError, err.Error())
	case redisClient != nil:
		rg := inflight.NewRedis(redisClient, "")
		guard = rg
		readiness = append(readiness, apphttp.ReadinessCheck{Name: "redis", Check: rg.Ping})
	}

	caches := cache.NewManager()
	linkCache := cache.NewLRUCache[string](1000, cfg.ParentLinkCacheTTL)
	caches.Register(linkCache)
	caches.StartCleanup(5 * time.Minute)

	var verifier *auth.Verifier
	if cfg.StaffAPIEnabled() {
		verifier = auth.NewVerifier(cfg.SupabaseJWTSecret)
	} else {
		logger.Warn("SUPABASE_JWT_SECRET not set, staff API disabled")
	}

	loc, _ := cfg.Location()
	srv, err := apphttp.NewServer(apphttp.Deps{
		Backend:   result.Backend,
		Recorder:  result.Recorder,
		Links:     cache.NewParentLinks(result.Backend, linkCache),
		Tokens:    tokenstore.NewCookie(cfg.CookieSecure),
		Inflight:  guard,
		Verifier:  verifier,
		Readiness: readiness,
		Logger:    logger.WithComponent(log.ComponentHTTP),
	}, apphttp.Options{
		Addr:               ":" + cfg.Port,
		ParentWebOrigin:    cfg.ParentWebOrigin,
		Location:           loc,
		RecentLimit:        cfg.RecentLimit,
		InflightTTL:        cfg.InflightTTL,
		OverviewTimeout:    cfg.SupabaseTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to build HTTP server", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", log.FieldError, err.Error())
		}
	}

	err = cli.Shutdown(logger, 30*time.Second,
		srv.Shutdown,
		func(ctx context.Context) error {
			if result.Processor == nil {
				return nil
			}
			return result.Processor.Stop(ctx)
		},
		func(context.Context) error {
			caches.Stop()
			return nil
		},
		func(context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
		func(context.Context) error { return result.Close() },
	)
	if err != nil {
		logger.Error("Shutdown finished with errors", log.FieldError, err.Error())
	}
	logger.Info("Server stopped")
}
