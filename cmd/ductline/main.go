package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ductline/ductline/internal/app"
	"github.com/ductline/ductline/internal/auth"
	"github.com/ductline/ductline/internal/boq"
	"github.com/ductline/ductline/internal/committee"
	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/observability"
	"github.com/ductline/ductline/internal/platform/broker"
	"github.com/ductline/ductline/internal/platform/cache"
	"github.com/ductline/ductline/internal/platform/db"
	"github.com/ductline/ductline/internal/pricelist"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/users"
	"github.com/ductline/ductline/internal/view"
	"github.com/ductline/ductline/jobs"
	"github.com/ductline/ductline/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "ductline_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	authz := rbac.Authorizer{Observer: metrics}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, authz, auditLogger, logger)
	rbacMiddleware := rbac.Middleware{Loader: usersRepo, Authorizer: authz, Logger: logger, LoginPath: "/auth/login"}
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, rbacMiddleware)

	authAdapter := users.AuthAdapter{Service: usersService}
	authService := auth.NewService(auth.NewRepository(dbpool), authAdapter)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, authAdapter)

	priceService := pricelist.NewService(pricelist.NewRepository(dbpool), authz, auditLogger, logger)
	priceHandler := pricelist.NewHandler(logger, priceService, templates, csrfManager, rbacMiddleware)

	factorService := factor.NewService(factor.NewRepository(dbpool), factor.NewCache(redisClient, cfg.FactorCacheTTL), logger)
	factorHandler := factor.NewHandler(logger, factorService, templates, csrfManager, rbacMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	opts := boq.Options{
		Prices:      priceService,
		Approvals:   approvalRecorder,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Notifier: &jobs.Notifier{
			Queue:     jobsClient,
			Directory: usersService,
			BaseURL:   cfg.PublicBaseURL,
			Logger:    logger,
		},
		Logger: logger,
	}
	if cfg.EventsEnabled() {
		producer := broker.NewProducer(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		opts.Events = producer
	}

	boqService := boq.NewService(boq.NewRepository(dbpool), factorService, authz, opts)
	assignees := users.DirectoryAdapter{Service: usersService}

	reportClient := report.NewClient(cfg.GotenbergURL)
	boqHandler := boq.NewHandler(logger, boqService, templates, csrfManager, rbacMiddleware, reportClient.WithPage(report.A4Landscape), assignees)

	committeeService := committee.NewService(committee.NewRepository(dbpool), boqService, authz, auditLogger, logger)
	committeeHandler := committee.NewHandler(logger, committeeService, boqService, templates, csrfManager, rbacMiddleware, assignees)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		PriceListHandler:   priceHandler,
		FactorHandler:      factorHandler,
		BOQHandler:         boqHandler,
		CommitteeHandler:   committeeHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, templates, csrfManager, rbacMiddleware),
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
