package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/catalog"
	"github.com/xenking/crm-dashboard/internal/domain/auth"
	"github.com/xenking/crm-dashboard/internal/domain/product"
	"github.com/xenking/crm-dashboard/internal/dummyjson"
	"github.com/xenking/crm-dashboard/internal/handler"
	"github.com/xenking/crm-dashboard/pkg/health"
	"github.com/xenking/crm-dashboard/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	// Upstream API client.
	client, err := dummyjson.New(cfg.Upstream.BaseURL, dummyjson.Options{
		Timeout:        cfg.Upstream.Timeout,
		SessionMinutes: cfg.Upstream.SessionMinutes,
		Logger:         lg.Named("upstream"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create upstream client")
	}

	// Optimistic product cache.
	cache, err := catalog.New(client, catalog.Options{
		Logger:         lg.Named("catalog"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create catalog")
	}
	if pages := warmPages(cfg.Catalog); len(pages) > 0 {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.Upstream.Timeout)
		if err := cache.Warm(warmCtx, pages...); err != nil {
			lg.Warn("Cache warm-up failed, serving cold", zap.Error(err))
		}
		cancel()
	}

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Register(health.Readiness, health.Check{
		Name:    "upstream",
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(client),
	})
	healthSvc.Register(health.Liveness, health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})
	healthSvc.Register(health.Liveness, health.Check{
		Name: "gc_pause",
		Func: health.GCPauseCheck(time.Second),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	sessions := auth.NewSessions(client, []byte(cfg.Auth.Pepper), cfg.Auth.SessionTTL)
	go sessions.Run(ctx, time.Minute)
	h := handler.New(
		handler.Config{
			PageSize:    cfg.Catalog.PageSize,
			EventBuffer: cfg.Catalog.EventBuffer,
		},
		cache,
		sessions,
		product.NewValidator(),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.Handler(health.Liveness))
	mux.HandleFunc("/readyz", healthSvc.Handler(health.Readiness))
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					Origins:     cfg.CORS.Origins,
					Headers:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
					Expose:      []string{httpmiddleware.RequestIDHeader, "Location", "Retry-After"},
					Credentials: cfg.CORS.Credentials,
					MaxAge:      86400,
				}),
				httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
					RPS:   cfg.RateLimit.RPS,
					Burst: cfg.RateLimit.Burst,
				}),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"crm-api",
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", cfg.Graceful.ShutdownTimeout),
			zap.Int("pending_mutations", cache.Pending()),
		)
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// warmPages lists the leading pages fetched at startup.
func warmPages(cfg CatalogConfig) []product.Page {
	pages := make([]product.Page, 0, cfg.WarmPages)
	for i := range cfg.WarmPages {
		pages = append(pages, product.Page{Limit: cfg.PageSize, Skip: i * cfg.PageSize})
	}
	return pages
}
