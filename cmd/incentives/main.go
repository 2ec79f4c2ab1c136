// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/hirelift/hirelift/services/incentives"
	"github.com/hirelift/hirelift/services/incentives/cache"
	"github.com/hirelift/hirelift/services/incentives/config"
	"github.com/hirelift/hirelift/services/incentives/extract"
	"github.com/hirelift/hirelift/services/incentives/ratelimit"
	"github.com/hirelift/hirelift/services/incentives/roi"
	"github.com/hirelift/hirelift/services/incentives/router"
	"github.com/hirelift/hirelift/services/incentives/search"
	"github.com/hirelift/hirelift/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("incentives-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// openStore selects the cache backend: Postgres when DATABASE_URL is
// set, the embedded SQLite file otherwise.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.DatabaseURL != "" {
		slog.Info("Using Postgres program cache")
		return cache.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	slog.Info("Using SQLite program cache", "path", cfg.SQLitePath)
	return cache.NewSQLiteStore(cfg.SQLitePath)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.DisableTelemetry {
		cleanup, err := initTracer()
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open program cache: %v", err)
	}
	defer store.Close()

	if err := store.SeedFederal(ctx, cache.FederalPrograms()); err != nil {
		log.Fatalf("failed to seed federal programs: %v", err)
	}

	// The LLM is optional: without it, routing falls back to the regex
	// parser and discovery serves cache and seeds only.
	var llmClient llm.Client
	var llmFactory llm.Factory
	factory, err := llm.NewFactory(cfg.LLMBackend)
	if err != nil {
		slog.Warn("Unknown LLM backend, running without LLM", "backend", cfg.LLMBackend)
	} else if client, err := factory(); err != nil {
		slog.Warn("LLM client unavailable, running without LLM", "error", err)
	} else {
		llmClient = client
		llmFactory = factory
		slog.Info("LLM backend configured", "backend", cfg.LLMBackend)
	}

	var searcher search.Client
	if exa, err := search.NewExaClient(cfg.ExaAPIKey); err != nil {
		slog.Warn("Search client unavailable, discovery degrades to cache", "error", err)
	} else {
		searcher = exa
	}

	var extractor *extract.Extractor
	var analyzer *roi.Analyzer
	if llmClient != nil {
		extractor = extract.New(llmClient)
		analyzer = roi.NewAnalyzer(llmClient)
	}

	limiter := ratelimit.New(ratelimit.Limits{
		MaxConcurrentSessions: cfg.RateLimits.MaxConcurrentSessions,
		MaxSessionsPerDay:     cfg.RateLimits.MaxSessionsPerDay,
		MaxSearchesPerSession: cfg.RateLimits.MaxSearchesPerSession,
		MaxLLMCallsPerSession: cfg.RateLimits.MaxLLMCallsPerSession,
	})

	svc := incentives.NewService(incentives.Deps{
		Store:        store,
		Limiter:      limiter,
		Router:       router.New(llmClient, cfg.DefaultState),
		Searcher:     searcher,
		Extractor:    extractor,
		Analyzer:     analyzer,
		LLMFactory:   llmFactory,
		TTLDays:      cfg.TTLDays(),
		MaxROIRounds: cfg.MaxROIRounds,
		DemoMode:     cfg.DemoMode,
		Logger:       logger,
	})

	engine := gin.Default()
	engine.Use(otelgin.Middleware("incentives-service"))
	incentives.SetupRoutes(engine, svc)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		slog.Info("Starting the incentives server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
