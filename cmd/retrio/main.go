package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/backend"
	graphBackend "github.com/kailas-cloud/retrio/internal/backend/graph"
	keywordBackend "github.com/kailas-cloud/retrio/internal/backend/keyword"
	vectorBackend "github.com/kailas-cloud/retrio/internal/backend/vector"
	"github.com/kailas-cloud/retrio/internal/config"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	logpkg "github.com/kailas-cloud/retrio/internal/logger"
	"github.com/kailas-cloud/retrio/internal/metrics"
	chiTransport "github.com/kailas-cloud/retrio/internal/transport/chi"
	"github.com/kailas-cloud/retrio/internal/usecase/dispatch"
	"github.com/kailas-cloud/retrio/internal/usecase/fusion"
	plannerpkg "github.com/kailas-cloud/retrio/internal/usecase/planner"
	searchuc "github.com/kailas-cloud/retrio/internal/usecase/search"
	"github.com/kailas-cloud/retrio/internal/usecase/verify"
	"github.com/kailas-cloud/retrio/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrio API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("vector_enabled", cfg.Backends.Vector.Enabled),
		zap.Bool("keyword_enabled", cfg.Backends.Keyword.Enabled),
		zap.Bool("graph_enabled", cfg.Backends.Graph.Enabled),
	)

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Build backend adapters — composition root
	adapters, timeouts, embeddingModels, closers := buildBackends(cfg, logger)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	trackers := make(map[string]*backend.LatencyTracker, len(adapters))
	instrumented := make([]backend.Adapter, 0, len(adapters))
	for _, a := range adapters {
		tracker := backend.NewLatencyTracker(backend.DefaultLatencyWindow)
		trackers[a.ID()] = tracker
		instrumented = append(instrumented, backend.NewInstrumented(a, tracker))
	}

	registry, err := backend.NewRegistry(instrumented...)
	if err != nil {
		logger.Fatal("Failed to build backend registry", zap.Error(err))
	}
	backendIDs := make([]string, 0, len(registry.All()))
	for _, a := range registry.All() {
		backendIDs = append(backendIDs, a.ID())
	}
	logger.Info("Backends registered", zap.Strings("backends", backendIDs))

	// Health board + verification loop
	board := health.NewBoard()
	verifySvc := verify.New(registry, board, trackers, verify.Config{
		Interval:      time.Duration(cfg.Verification.IntervalSec) * time.Second,
		LatencyBudget: time.Duration(cfg.Verification.LatencyBudgetMS) * time.Millisecond,
		ProbeTimeout:  time.Duration(cfg.Verification.TimeoutMS) * time.Millisecond,
		Probes:        probesFromConfig(cfg.Verification.Probes),
	})
	verifyCtx := logpkg.ContextWithLogger(context.Background(), logger)
	verifySvc.Start(verifyCtx)
	defer verifySvc.Stop()

	// Planner, dispatcher, fusion engine
	planner := plannerpkg.New(registry, plannerpkg.Config{
		TopK:            cfg.Search.TopK,
		Timeouts:        timeouts,
		EmbeddingModels: embeddingModels,
	})

	dispatcher, err := dispatch.New(registry, cfg.Search.WorkerPool)
	if err != nil {
		logger.Fatal("Failed to create dispatcher", zap.Error(err))
	}
	defer dispatcher.Close()

	// TF-IDF scores are unbounded; compress them instead of min-max scaling.
	engine := fusion.NewEngine(
		fusion.WithNormalizer(keywordBackend.BackendID, fusion.LogMax),
	)

	maxWait := time.Duration(cfg.Search.MaxWaitMS) * time.Millisecond
	if ceiling := time.Duration(cfg.Search.HardCeilingMS) * time.Millisecond; maxWait > ceiling {
		maxWait = ceiling
	}
	searchOpts := []searchuc.Option{searchuc.WithMaxWait(maxWait)}
	if cfg.Cache.Enabled {
		cache, err := searchuc.NewCache(cfg.Cache.MaxCost, cfg.Cache.Counters,
			time.Duration(cfg.Cache.TTLSec)*time.Second)
		if err != nil {
			logger.Fatal("Failed to create response cache", zap.Error(err))
		}
		defer cache.Close()
		searchOpts = append(searchOpts, searchuc.WithCache(cache))
	}
	searchSvc := searchuc.New(planner, dispatcher, engine, board, searchOpts...)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, verifySvc, board, backendIDs, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildBackends assembles the enabled adapters plus their per-backend
// timeouts, embedding models, and close hooks.
func buildBackends(cfg config.Config, logger *zap.Logger) (
	adapters []backend.Adapter,
	timeouts map[string]time.Duration,
	embeddingModels map[string]string,
	closers []func(),
) {
	timeouts = make(map[string]time.Duration)
	embeddingModels = make(map[string]string)

	if vc := cfg.Backends.Vector; vc.Enabled {
		embedder := vectorBackend.NewOpenAIEmbedder(vectorBackend.EmbedderConfig{
			APIKey:     vc.Embedding.APIKey,
			BaseURL:    vc.Embedding.BaseURL,
			Model:      vc.Embedding.Model,
			Dimensions: vc.Embedding.Dimensions,
		})
		adapter, err := vectorBackend.New(vectorBackend.Config{
			Addrs:     vc.Addrs,
			Password:  vc.Password,
			Index:     vc.Index,
			KeyPrefix: vc.KeyPrefix,
		}, embedder)
		if err != nil {
			logger.Fatal("Failed to create vector backend", zap.Error(err))
		}
		adapters = append(adapters, adapter)
		closers = append(closers, adapter.Close)
		timeouts[adapter.ID()] = time.Duration(vc.TimeoutMS) * time.Millisecond
		embeddingModels[adapter.ID()] = vc.Embedding.Model
	}

	if kc := cfg.Backends.Keyword; kc.Enabled {
		var adapter *keywordBackend.Adapter
		var err error
		if kc.Path == "" {
			adapter, err = keywordBackend.NewMem()
		} else {
			adapter, err = keywordBackend.New(kc.Path)
		}
		if err != nil {
			logger.Fatal("Failed to create keyword backend", zap.Error(err))
		}
		adapters = append(adapters, adapter)
		closers = append(closers, func() { _ = adapter.Close() })
		timeouts[adapter.ID()] = time.Duration(kc.TimeoutMS) * time.Millisecond
	}

	if gc := cfg.Backends.Graph; gc.Enabled {
		var store *graphBackend.Store
		var err error
		if gc.Path == "" {
			store, err = graphBackend.OpenInMemory()
		} else {
			store, err = graphBackend.Open(gc.Path)
		}
		if err != nil {
			logger.Fatal("Failed to create graph backend", zap.Error(err))
		}
		adapter := graphBackend.New(store, gc.MaxDepth)
		adapters = append(adapters, adapter)
		closers = append(closers, func() { _ = adapter.Close() })
		timeouts[adapter.ID()] = time.Duration(gc.TimeoutMS) * time.Millisecond
	}

	return adapters, timeouts, embeddingModels, closers
}

func probesFromConfig(probes []config.ProbeConfig) []verify.Probe {
	out := make([]verify.Probe, len(probes))
	for i, p := range probes {
		out[i] = verify.Probe{
			BackendID:       p.Backend,
			Query:           p.Query,
			MinResults:      p.MinResults,
			ExpectContentID: p.ExpectContentID,
		}
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
