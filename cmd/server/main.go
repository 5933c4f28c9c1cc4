package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onepointltd/kbserver/internal/bus"
	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/db"
	"github.com/onepointltd/kbserver/internal/engine"
	"github.com/onepointltd/kbserver/internal/handlers"
	"github.com/onepointltd/kbserver/internal/ingest"
	"github.com/onepointltd/kbserver/internal/linkedin"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/middleware"
	"github.com/onepointltd/kbserver/internal/observability"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/search"
	"github.com/onepointltd/kbserver/internal/server"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/snippet"
	"github.com/onepointltd/kbserver/internal/tenant"
	"github.com/onepointltd/kbserver/internal/ws"
)

const serviceName = "kbserver"

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Env
	log.Info("Loading configuration from main...")
	cfg := config.Load(log)

	// Tracing
	otelShutdown := observability.InitOTel(ctx, serviceName, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("OTel shutdown failed", "error", err)
		}
	}()

	// Administrators file
	adminFile, err := config.LoadAdminFile(cfg.Paths.ConfigDir)
	if err != nil {
		log.Error("Could not load administrators file", "error", err)
		os.Exit(1)
	}

	// Postgres
	pool := db.NewPool(cfg.DB, log)
	defer pool.Close()

	// Repos
	log.Info("Setting up repos from main...")
	rp := repos.New(pool, log)

	// Tenant filesystem
	tenants := tenant.NewService(cfg.Paths.GraphragRoot, log)

	// Services
	log.Info("Setting up services from main...")
	authService, err := services.NewAuthService(cfg.JWT, cfg.Paths.ConfigDir, adminFile, rp.AdminUsers, tenants, log)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}
	if _, err := authService.Bootstrap(ctx); err != nil {
		log.Warn("Admin bootstrap failed", "error", err)
	}

	llmClient, err := services.NewLLMClient(cfg.LLM, log)
	if err != nil {
		log.Error("Could not init LLMClient", "error", err)
		os.Exit(1)
	}

	// Engines
	retriever := engine.NewFileRetriever(llmClient, log)
	graphEngine := engine.NewGraphEngine(retriever, llmClient, cfg.Tuning, log)
	lightEngine := engine.NewLightEngine(retriever, llmClient, cfg.Tuning, log)
	cacheEngine := engine.NewCacheEngine(llmClient, log)
	facade := engine.NewFacade(graphEngine, lightEngine, cacheEngine, log)

	// Search pipeline
	matcher := search.NewMatcher(llmClient, rp.ExpandedEntities, rp.CentralityTopics, log)
	summarizer := search.NewSummarizer(llmClient, log)
	pipeline := search.NewPipeline(facade, matcher, summarizer, rp.SearchHistory, rp.Keywords, log)
	linkExtractor := search.NewLinkExtractor(log)

	// Ingestion
	var converter ingest.Converter
	docAI, err := ingest.NewDocumentAIConverter(log)
	if err != nil {
		log.Warn("Document AI unavailable, PDFs will not be OCRed", "error", err)
		converter = ingest.PassthroughConverter{}
	} else {
		converter = docAI
		defer docAI.Close()
	}
	indexer := ingest.NewCommandIndexer(log)
	ingestService := ingest.NewService(tenants, converter, indexer, rp.Projects, rp.CentralityTopics, rp.ExpandedEntities, log)

	// LinkedIn
	scraper := linkedin.NewScraper(log)
	profileService := linkedin.NewService(scraper, rp.Profiles, log)

	// Snippets
	snippets := snippet.NewGenerator(cfg.Server.BaseURL, cfg.Server.FrontendAssetsDir, log)

	// Progress bus (optional)
	var progressBus bus.ProgressBus
	if b, err := bus.NewRedisBus(log); err != nil {
		log.Warn("Progress bus disabled", "error", err)
	} else {
		progressBus = b
		defer progressBus.Close()
	}

	// WebSocket hub
	hub := ws.NewHub(cfg.Server.WSAllowedOrigins, authService, tenants, rp, pipeline, facade, profileService, progressBus, log)
	if progressBus != nil {
		if err := hub.StartForwarder(ctx); err != nil {
			log.Warn("Progress forwarder failed to start", "error", err)
		}
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	rt := &handlers.Runtime{
		Cfg:       cfg,
		Log:       log,
		Auth:      authService,
		AdminFile: adminFile,
		Tenants:   tenants,
		Repos:     rp,
		Facade:    facade,
		Retriever: retriever,
		LLM:       llmClient,
		Pipeline:  pipeline,
		Matcher:   matcher,
		Links:     linkExtractor,
		LinkedIn:  profileService,
		Ingest:    ingestService,
		Snippets:  snippets,
		Bus:       progressBus,
	}
	adminHandler := handlers.NewAdminHandler(rt)
	tenantHandler := handlers.NewTenantHandler(rt)
	projectHandler := handlers.NewProjectHandler(rt)
	searchHandler := handlers.NewSearchHandler(rt)
	snippetHandler := handlers.NewSnippetHandler(rt)
	tokenHandler := handlers.NewTokenHandler(rt)
	pdfHandler := handlers.NewPDFHandler(rt, handlers.NewCommandRenderer(log))
	linkedInHandler := handlers.NewLinkedInHandler(rt)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService, adminFile, log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:     serviceName,
		AllowedOrigins:  cfg.Server.WSAllowedOrigins,
		AuthMiddleware:  authMiddleware,
		AdminHandler:    adminHandler,
		TenantHandler:   tenantHandler,
		ProjectHandler:  projectHandler,
		SearchHandler:   searchHandler,
		SnippetHandler:  snippetHandler,
		TokenHandler:    tokenHandler,
		PDFHandler:      pdfHandler,
		LinkedInHandler: linkedInHandler,
		Hub:             hub,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed", "error", err)
	}
}
